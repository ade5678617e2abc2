package memory

import (
	"context"
	"sync"
	"time"

	"agencysite/backend/internal/storage"
)

// Store 使用内存保存键值数据，主要用于开发验证和测试。
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		data: make(map[string][]byte),
	}
}

// Get 读取键对应的值
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, storage.ErrKeyNotFound
	}

	// 返回副本，避免调用方修改内部数据
	copied := make([]byte, len(value))
	copy(copied, value)
	return copied, nil
}

// Set 写入键值
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]byte, len(value))
	copy(copied, value)
	s.data[key] = copied
	return nil
}

// Remove 删除键，键不存在时静默成功
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// lockEntry 进程内锁条目
type lockEntry struct {
	expiresAt time.Time
}

// Locker 进程内单写者仲裁实现。
//
// 仅在单进程部署下有效；多实例部署应使用 redis 或 postgres 仲裁。
type Locker struct {
	mu    sync.Mutex
	locks map[string]lockEntry
	now   func() time.Time
}

// NewLocker 创建进程内锁
func NewLocker() *Locker {
	return &Locker{
		locks: make(map[string]lockEntry),
		now:   time.Now,
	}
}

// TryLock 尝试获取命名锁，已被持有且未过期时返回 false
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.locks[name]; ok && l.now().Before(entry.expiresAt) {
		return false, nil
	}
	l.locks[name] = lockEntry{expiresAt: l.now().Add(ttl)}
	return true, nil
}

// Unlock 释放命名锁
func (l *Locker) Unlock(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.locks[name]; !ok {
		return storage.ErrLockNotHeld
	}
	delete(l.locks, name)
	return nil
}
