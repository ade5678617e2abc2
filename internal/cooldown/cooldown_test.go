package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"agencysite/backend/internal/storage/memory"
)

func TestLock(t *testing.T) {
	ctx := context.Background()

	newLock := func() *Lock {
		return New(memory.NewStore(), time.Hour, zap.NewNop())
	}

	t.Run("无记录时未锁定", func(t *testing.T) {
		lock := newLock()

		assert.False(t, lock.IsLocked(ctx))
		assert.Equal(t, time.Duration(0), lock.RemainingCooldown(ctx))
	})

	t.Run("记录成功后进入冷却期", func(t *testing.T) {
		lock := newLock()

		lock.RecordSuccess(ctx)

		assert.True(t, lock.IsLocked(ctx))
		assert.Greater(t, lock.RemainingCooldown(ctx), 59*time.Minute)
	})

	t.Run("冷却期边界判定", func(t *testing.T) {
		lock := newLock()
		base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
		lock.now = func() time.Time { return base }

		lock.RecordSuccess(ctx)

		// 冷却期最后一秒仍然锁定
		lock.now = func() time.Time { return base.Add(time.Hour - time.Second) }
		assert.True(t, lock.IsLocked(ctx))
		assert.Equal(t, time.Second, lock.RemainingCooldown(ctx))

		// 整点到期后解锁
		lock.now = func() time.Time { return base.Add(time.Hour) }
		assert.False(t, lock.IsLocked(ctx))
		assert.Equal(t, time.Duration(0), lock.RemainingCooldown(ctx))
	})

	t.Run("损坏的时间戳视为未锁定并被清除", func(t *testing.T) {
		store := memory.NewStore()
		_ = store.Set(ctx, "contact:last_success", []byte("not-a-timestamp"))
		lock := New(store, time.Hour, zap.NewNop())

		assert.False(t, lock.IsLocked(ctx))

		// 损坏记录已被清除
		_, err := store.Get(ctx, "contact:last_success")
		assert.Error(t, err)
	})

	t.Run("清除记录后解锁", func(t *testing.T) {
		lock := newLock()
		lock.RecordSuccess(ctx)
		assert.True(t, lock.IsLocked(ctx))

		lock.Clear(ctx)

		assert.False(t, lock.IsLocked(ctx))
	})
}
