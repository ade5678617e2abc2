package postgres

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"agencysite/backend/internal/storage"
)

// AdvisoryLocker 基于 PostgreSQL 会话级咨询锁的单写者仲裁实现。
//
// 每个命名锁独占一条池内连接：pg_try_advisory_lock 成功后连接被
// 保留到 Unlock，会话断开时数据库自动释放锁，天然防止持有者崩溃
// 导致的死锁。TTL 参数在此实现中被忽略。
type AdvisoryLocker struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	held map[string]*pgxpool.Conn
}

// NewAdvisoryLocker 创建咨询锁仲裁器
func NewAdvisoryLocker(ctx context.Context, dsn string) (*AdvisoryLocker, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	return &AdvisoryLocker{
		pool: pool,
		held: make(map[string]*pgxpool.Conn),
	}, nil
}

// TryLock 尝试获取命名咨询锁
func (l *AdvisoryLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	if _, ok := l.held[name]; ok {
		l.mu.Unlock()
		return false, nil
	}
	l.mu.Unlock()

	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", lockID(name)).Scan(&acquired); err != nil {
		conn.Release()
		return false, fmt.Errorf("advisory lock query failed: %w", err)
	}
	if !acquired {
		conn.Release()
		return false, nil
	}

	l.mu.Lock()
	l.held[name] = conn
	l.mu.Unlock()
	return true, nil
}

// Unlock 释放命名咨询锁并归还连接
func (l *AdvisoryLocker) Unlock(ctx context.Context, name string) error {
	l.mu.Lock()
	conn, ok := l.held[name]
	delete(l.held, name)
	l.mu.Unlock()

	if !ok {
		return storage.ErrLockNotHeld
	}

	_, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", lockID(name))
	conn.Release()
	if err != nil {
		return fmt.Errorf("advisory unlock failed: %w", err)
	}
	return nil
}

// Close 释放所有持有的锁并关闭连接池
func (l *AdvisoryLocker) Close() {
	l.mu.Lock()
	for name, conn := range l.held {
		delete(l.held, name)
		conn.Release()
	}
	l.mu.Unlock()
	l.pool.Close()
}

// lockID 把锁名哈希为咨询锁要求的 64 位整数键
func lockID(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return int64(h.Sum64())
}
