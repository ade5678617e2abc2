package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"agencysite/backend/internal/domain"
	"agencysite/backend/internal/storage"
)

// outboxKey 发件箱在键值存储中的固定键
const outboxKey = "contact:outbox"

// Outbox 持久化的先进先出发件队列。
//
// 整个队列序列化为单键下的 JSON 数组，队首在下标 0。
// 读到损坏数据时按空队列处理；写入失败只记日志不上抛，
// 持久化是尽力而为的，失败不能打断提交流程。
type Outbox struct {
	mu    sync.Mutex
	store storage.KeyValueStore
	log   *zap.Logger
}

// New 创建发件箱
func New(store storage.KeyValueStore, log *zap.Logger) *Outbox {
	return &Outbox{
		store: store,
		log:   log,
	}
}

// Enqueue 把提交追加到队尾
func (o *Outbox) Enqueue(ctx context.Context, sub *domain.Submission) {
	o.mu.Lock()
	defer o.mu.Unlock()

	items := o.load(ctx)
	items = append(items, *sub)
	o.save(ctx, items)
}

// DequeueFront 取出并移除队首提交，队列为空时返回 false
func (o *Outbox) DequeueFront(ctx context.Context) (*domain.Submission, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	items := o.load(ctx)
	if len(items) == 0 {
		return nil, false
	}

	front := items[0]
	o.save(ctx, items[1:])
	return &front, true
}

// RequeueFront 把提交放回队首，保持原有顺序
//
// 冲刷失败时调用，失败项重新成为下一轮的第一个投递对象。
func (o *Outbox) RequeueFront(ctx context.Context, sub *domain.Submission) {
	o.mu.Lock()
	defer o.mu.Unlock()

	items := o.load(ctx)
	items = append([]domain.Submission{*sub}, items...)
	o.save(ctx, items)
}

// IsEmpty 判断队列是否为空
func (o *Outbox) IsEmpty(ctx context.Context) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.load(ctx)) == 0
}

// Size 返回队列长度
func (o *Outbox) Size(ctx context.Context) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.load(ctx))
}

// PeekAll 返回队列快照，不修改队列，用于诊断
func (o *Outbox) PeekAll(ctx context.Context) []domain.Submission {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.load(ctx)
}

// load 从存储读取整个队列
func (o *Outbox) load(ctx context.Context) []domain.Submission {
	raw, err := o.store.Get(ctx, outboxKey)
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			o.log.Warn("发件箱读取失败，按空队列处理", zap.Error(err))
		}
		return nil
	}

	var items []domain.Submission
	if err := json.Unmarshal(raw, &items); err != nil {
		// 损坏的数据无法恢复，丢弃并从空队列重新开始
		o.log.Warn("发件箱数据损坏，已重置为空队列", zap.Error(err))
		return nil
	}
	return items
}

// save 把整个队列写回存储，失败只记日志
func (o *Outbox) save(ctx context.Context, items []domain.Submission) {
	if items == nil {
		items = []domain.Submission{}
	}

	raw, err := json.Marshal(items)
	if err != nil {
		o.log.Error("发件箱序列化失败", zap.Error(err))
		return
	}
	if err := o.store.Set(ctx, outboxKey, raw); err != nil {
		o.log.Warn("发件箱写入失败", zap.Error(err), zap.Int("items", len(items)))
	}
}
