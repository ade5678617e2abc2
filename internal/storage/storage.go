package storage

import (
	"context"
	"errors"
	"time"

	"agencysite/backend/internal/domain"
)

var (
	// ErrKeyNotFound 键不存在错误
	ErrKeyNotFound = errors.New("key not found")
	// ErrLockNotHeld 释放未持有的锁错误
	ErrLockNotHeld = errors.New("lock not held")
)

// KeyValueStore 定义发件箱与冷却锁依赖的持久化键值操作。
//
// 实现必须保证单键读写的原子性；跨键事务不做要求。
// Get 在键不存在时返回 ErrKeyNotFound。
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// Locker 定义跨进程单写者仲裁操作。
//
// TryLock 非阻塞：锁被他人持有时返回 false, nil。
// 锁到期自动释放，持有者崩溃不会永久阻塞冲刷。
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name string) error
}

// ArchiveRepository 定义已投递提交的归档操作。
//
// 归档只记录确认投递成功的提交，发件箱中的待发项不落库。
type ArchiveRepository interface {
	ArchiveDelivered(ctx context.Context, sub *domain.Submission, deliveredAt time.Time) error
	ListDelivered(ctx context.Context, limit int) ([]domain.Submission, error)
	Health() error
	Close() error
}
