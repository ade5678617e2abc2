package flusher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"agencysite/backend/internal/domain"
	"agencysite/backend/internal/outbox"
	"agencysite/backend/internal/storage/memory"
)

// stubProbe 固定返回预设连通状态
type stubProbe struct {
	online bool
}

func (s *stubProbe) IsOnline(ctx context.Context) bool {
	return s.online
}

// flakyProbe 前若干次查询在线，之后离线
type flakyProbe struct {
	mu        sync.Mutex
	onlineFor int
}

func (s *flakyProbe) IsOnline(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onlineFor > 0 {
		s.onlineFor--
		return true
	}
	return false
}

// stubSender 按预设脚本响应投递请求
type stubSender struct {
	mu       sync.Mutex
	failIDs  map[string]bool // 这些提交投递失败
	sent     []string
	attempts int
}

func newStubSender() *stubSender {
	return &stubSender{failIDs: make(map[string]bool)}
}

func (s *stubSender) Send(ctx context.Context, sub *domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.failIDs[sub.ID] {
		return errors.New("provider unavailable")
	}
	s.sent = append(s.sent, sub.ID)
	return nil
}

// stubCooldown 记录是否被调用
type stubCooldown struct {
	recorded int
}

func (s *stubCooldown) RecordSuccess(ctx context.Context) {
	s.recorded++
}

// stubSink 收集发布的事件
type stubSink struct {
	mu     sync.Mutex
	events []domain.OutcomeEvent
}

func (s *stubSink) PublishOutcome(event domain.OutcomeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func TestFlusher(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	newOutbox := func() *outbox.Outbox {
		return outbox.New(memory.NewStore(), log)
	}

	t.Run("在线时排空整个队列", func(t *testing.T) {
		ob := newOutbox()
		first := domain.NewSubmission("Ann", "a@b.co", "first message")
		second := domain.NewSubmission("Ben", "b@c.co", "second message")
		ob.Enqueue(ctx, first)
		ob.Enqueue(ctx, second)

		sender := newStubSender()
		cd := &stubCooldown{}
		f := New(ob, sender, &stubProbe{online: true}, cd, 8*time.Second, log)

		delivered := f.Flush(ctx)

		assert.Equal(t, 2, delivered)
		assert.Equal(t, []string{first.ID, second.ID}, sender.sent)
		assert.True(t, ob.IsEmpty(ctx))
		assert.Equal(t, 1, cd.recorded)
	})

	t.Run("离线时不投递", func(t *testing.T) {
		ob := newOutbox()
		ob.Enqueue(ctx, domain.NewSubmission("Ann", "a@b.co", "hello there"))

		sender := newStubSender()
		f := New(ob, sender, &stubProbe{online: false}, &stubCooldown{}, 8*time.Second, log)

		delivered := f.Flush(ctx)

		assert.Equal(t, 0, delivered)
		assert.Equal(t, 0, sender.attempts)
		assert.Equal(t, 1, ob.Size(ctx))
	})

	t.Run("排空中途断网立即停止", func(t *testing.T) {
		ob := newOutbox()
		first := domain.NewSubmission("Ann", "a@b.co", "first message")
		second := domain.NewSubmission("Ben", "b@c.co", "second message")
		third := domain.NewSubmission("Cat", "c@d.co", "third message")
		ob.Enqueue(ctx, first)
		ob.Enqueue(ctx, second)
		ob.Enqueue(ctx, third)

		sender := newStubSender()
		// 周期入口查一次，第一条投递前查一次，第二条投递前断网
		probe := &flakyProbe{onlineFor: 2}
		f := New(ob, sender, probe, &stubCooldown{}, 8*time.Second, log)

		delivered := f.Flush(ctx)

		assert.Equal(t, 1, delivered)
		assert.Equal(t, []string{first.ID}, sender.sent)

		snapshot := ob.PeekAll(ctx)
		assert.Len(t, snapshot, 2)
		assert.Equal(t, second.ID, snapshot[0].ID)
	})

	t.Run("首个失败停止周期并回退队首", func(t *testing.T) {
		ob := newOutbox()
		first := domain.NewSubmission("Ann", "a@b.co", "first message")
		second := domain.NewSubmission("Ben", "b@c.co", "second message")
		third := domain.NewSubmission("Cat", "c@d.co", "third message")
		ob.Enqueue(ctx, first)
		ob.Enqueue(ctx, second)
		ob.Enqueue(ctx, third)

		sender := newStubSender()
		sender.failIDs[second.ID] = true
		cd := &stubCooldown{}
		f := New(ob, sender, &stubProbe{online: true}, cd, 8*time.Second, log)

		delivered := f.Flush(ctx)

		// 第一条成功，第二条失败后停止，第三条未被尝试
		assert.Equal(t, 1, delivered)
		assert.Equal(t, []string{first.ID}, sender.sent)

		snapshot := ob.PeekAll(ctx)
		assert.Len(t, snapshot, 2)
		assert.Equal(t, second.ID, snapshot[0].ID)
		assert.Equal(t, third.ID, snapshot[1].ID)

		// 部分成功也记录冷却
		assert.Equal(t, 1, cd.recorded)
	})

	t.Run("全部失败不记录冷却", func(t *testing.T) {
		ob := newOutbox()
		sub := domain.NewSubmission("Ann", "a@b.co", "hello there")
		ob.Enqueue(ctx, sub)

		sender := newStubSender()
		sender.failIDs[sub.ID] = true
		cd := &stubCooldown{}
		f := New(ob, sender, &stubProbe{online: true}, cd, 8*time.Second, log)

		delivered := f.Flush(ctx)

		assert.Equal(t, 0, delivered)
		assert.Equal(t, 0, cd.recorded)
		assert.Equal(t, 1, ob.Size(ctx))
	})

	t.Run("补发成功发布紧凑结果事件", func(t *testing.T) {
		ob := newOutbox()
		ob.Enqueue(ctx, domain.NewSubmission("Ann", "a@b.co", "first message"))
		ob.Enqueue(ctx, domain.NewSubmission("Ben", "b@c.co", "second message"))

		sink := &stubSink{}
		f := New(ob, newStubSender(), &stubProbe{online: true}, &stubCooldown{},
			8*time.Second, log, WithEventSink(sink))

		f.Flush(ctx)

		assert.Len(t, sink.events, 1)
		assert.Equal(t, domain.OutcomeSentQueued, sink.events[0].Outcome)
		assert.Equal(t, 2, sink.events[0].Count)
	})

	t.Run("失败重试累计尝试次数", func(t *testing.T) {
		ob := newOutbox()
		sub := domain.NewSubmission("Ann", "a@b.co", "hello there")
		ob.Enqueue(ctx, sub)

		sender := newStubSender()
		sender.failIDs[sub.ID] = true
		f := New(ob, sender, &stubProbe{online: true}, &stubCooldown{}, 8*time.Second, log)

		f.Flush(ctx)
		f.Flush(ctx)

		snapshot := ob.PeekAll(ctx)
		assert.Len(t, snapshot, 1)
		assert.Equal(t, 2, snapshot[0].Attempts)
	})

	t.Run("锁被他人持有时跳过周期", func(t *testing.T) {
		ob := newOutbox()
		ob.Enqueue(ctx, domain.NewSubmission("Ann", "a@b.co", "hello there"))

		locker := memory.NewLocker()
		held, _ := locker.TryLock(ctx, "outbox-flush", time.Minute)
		assert.True(t, held)

		sender := newStubSender()
		f := New(ob, sender, &stubProbe{online: true}, &stubCooldown{},
			8*time.Second, log, WithLocker(locker, 30*time.Second))

		delivered := f.Flush(ctx)

		assert.Equal(t, 0, delivered)
		assert.Equal(t, 0, sender.attempts)
	})

	t.Run("唤醒信号触发冲刷", func(t *testing.T) {
		ob := newOutbox()
		ob.Enqueue(ctx, domain.NewSubmission("Ann", "a@b.co", "hello there"))

		sender := newStubSender()
		f := New(ob, sender, &stubProbe{online: true}, &stubCooldown{}, time.Hour, log)

		runCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			_ = f.Run(runCtx)
			close(done)
		}()

		// Run 启动时先冲刷一次，队列已排空；再入队并用唤醒信号触发
		assert.Eventually(t, func() bool { return ob.IsEmpty(ctx) },
			time.Second, 10*time.Millisecond)

		ob.Enqueue(ctx, domain.NewSubmission("Ben", "b@c.co", "second message"))
		f.NotifyOnline()

		assert.Eventually(t, func() bool { return ob.IsEmpty(ctx) },
			time.Second, 10*time.Millisecond)

		// 页面回到前台的信号走同一条唤醒路径
		ob.Enqueue(ctx, domain.NewSubmission("Cat", "c@d.co", "third message"))
		f.NotifyVisible()

		assert.Eventually(t, func() bool { return ob.IsEmpty(ctx) },
			time.Second, 10*time.Millisecond)

		cancel()
		<-done
	})
}
