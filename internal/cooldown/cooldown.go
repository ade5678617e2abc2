package cooldown

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"agencysite/backend/internal/storage"
)

// lockKey 冷却时间戳在键值存储中的固定键
const lockKey = "contact:last_success"

// Lock 成功投递后的防重复提交冷却锁。
//
// 记录上次成功投递的时刻，冷却期内的后续提交被拦截。
// 纯劝阻性质，不提供安全保证；服务端校验是最终防线。
type Lock struct {
	store    storage.KeyValueStore
	cooldown time.Duration
	log      *zap.Logger
	now      func() time.Time
}

// New 创建冷却锁
func New(store storage.KeyValueStore, cooldown time.Duration, log *zap.Logger) *Lock {
	return &Lock{
		store:    store,
		cooldown: cooldown,
		log:      log,
		now:      time.Now,
	}
}

// IsLocked 判断当前是否处于冷却期
//
// 时间戳缺失或无法解析时视为未锁定，损坏的记录会被清除。
func (l *Lock) IsLocked(ctx context.Context) bool {
	last, ok := l.lastSuccess(ctx)
	if !ok {
		return false
	}
	return l.now().Sub(last) < l.cooldown
}

// RemainingCooldown 返回冷却期剩余时长，未锁定时返回 0
func (l *Lock) RemainingCooldown(ctx context.Context) time.Duration {
	last, ok := l.lastSuccess(ctx)
	if !ok {
		return 0
	}
	remaining := l.cooldown - l.now().Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordSuccess 记录一次成功投递，开启新的冷却期
func (l *Lock) RecordSuccess(ctx context.Context) {
	stamp := l.now().UTC().Format(time.RFC3339)
	if err := l.store.Set(ctx, lockKey, []byte(stamp)); err != nil {
		l.log.Warn("冷却时间戳写入失败", zap.Error(err))
	}
}

// Clear 清除冷却记录，仅用于测试和运维
func (l *Lock) Clear(ctx context.Context) {
	if err := l.store.Remove(ctx, lockKey); err != nil {
		l.log.Warn("冷却时间戳清除失败", zap.Error(err))
	}
}

// lastSuccess 读取上次成功时刻
func (l *Lock) lastSuccess(ctx context.Context) (time.Time, bool) {
	raw, err := l.store.Get(ctx, lockKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			l.log.Warn("冷却时间戳读取失败", zap.Error(err))
		}
		return time.Time{}, false
	}

	last, err := time.Parse(time.RFC3339, string(raw))
	if err != nil {
		// 无法解析的时间戳视为未锁定，顺手清掉
		l.log.Warn("冷却时间戳损坏，已清除", zap.String("value", string(raw)))
		_ = l.store.Remove(ctx, lockKey)
		return time.Time{}, false
	}
	return last, true
}
