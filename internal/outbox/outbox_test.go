package outbox

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"agencysite/backend/internal/domain"
	"agencysite/backend/internal/storage/memory"
)

func TestOutbox(t *testing.T) {
	ctx := context.Background()

	newOutbox := func() *Outbox {
		return New(memory.NewStore(), zap.NewNop())
	}

	t.Run("新建队列为空", func(t *testing.T) {
		ob := newOutbox()

		assert.True(t, ob.IsEmpty(ctx))
		assert.Equal(t, 0, ob.Size(ctx))

		_, ok := ob.DequeueFront(ctx)
		assert.False(t, ok)
	})

	t.Run("入队出队保持先进先出", func(t *testing.T) {
		ob := newOutbox()
		first := domain.NewSubmission("Ann", "a@b.co", "first message")
		second := domain.NewSubmission("Ben", "b@c.co", "second message")

		ob.Enqueue(ctx, first)
		ob.Enqueue(ctx, second)
		assert.Equal(t, 2, ob.Size(ctx))

		got, ok := ob.DequeueFront(ctx)
		assert.True(t, ok)
		assert.Equal(t, first.ID, got.ID)

		got, ok = ob.DequeueFront(ctx)
		assert.True(t, ok)
		assert.Equal(t, second.ID, got.ID)

		assert.True(t, ob.IsEmpty(ctx))
	})

	t.Run("回退队首恢复原有顺序", func(t *testing.T) {
		ob := newOutbox()
		first := domain.NewSubmission("Ann", "a@b.co", "first message")
		second := domain.NewSubmission("Ben", "b@c.co", "second message")
		ob.Enqueue(ctx, first)
		ob.Enqueue(ctx, second)

		got, _ := ob.DequeueFront(ctx)
		ob.RequeueFront(ctx, got)

		snapshot := ob.PeekAll(ctx)
		assert.Len(t, snapshot, 2)
		assert.Equal(t, first.ID, snapshot[0].ID)
		assert.Equal(t, second.ID, snapshot[1].ID)
	})

	t.Run("快照不影响队列内容", func(t *testing.T) {
		ob := newOutbox()
		ob.Enqueue(ctx, domain.NewSubmission("Ann", "a@b.co", "hello there"))

		_ = ob.PeekAll(ctx)

		assert.Equal(t, 1, ob.Size(ctx))
	})

	t.Run("损坏数据按空队列处理", func(t *testing.T) {
		store := memory.NewStore()
		_ = store.Set(ctx, "contact:outbox", []byte("{{{not json"))
		ob := New(store, zap.NewNop())

		assert.True(t, ob.IsEmpty(ctx))

		// 损坏后仍可正常入队
		ob.Enqueue(ctx, domain.NewSubmission("Ann", "a@b.co", "hello there"))
		assert.Equal(t, 1, ob.Size(ctx))
	})

	t.Run("写入失败不中断流程", func(t *testing.T) {
		ob := New(&failingStore{}, zap.NewNop())

		// 不应 panic，也不应向调用方暴露错误
		ob.Enqueue(ctx, domain.NewSubmission("Ann", "a@b.co", "hello there"))

		assert.True(t, ob.IsEmpty(ctx))
	})
}

// failingStore 所有操作都失败的存储，模拟持久化不可用
type failingStore struct{}

func (f *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("storage unavailable")
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("storage unavailable")
}

func (f *failingStore) Remove(ctx context.Context, key string) error {
	return errors.New("storage unavailable")
}
