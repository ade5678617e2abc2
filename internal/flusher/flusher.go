package flusher

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"agencysite/backend/internal/domain"
	"agencysite/backend/internal/mailer"
	"agencysite/backend/internal/monitoring"
	"agencysite/backend/internal/outbox"
	"agencysite/backend/internal/storage"
)

// flushLockName 跨进程冲刷锁的名称
const flushLockName = "outbox-flush"

// OnlineChecker 连通性查询操作
type OnlineChecker interface {
	IsOnline(ctx context.Context) bool
}

// CooldownRecorder 冷却锁写入操作
type CooldownRecorder interface {
	RecordSuccess(ctx context.Context)
}

// EventSink 结果事件的发布出口
type EventSink interface {
	PublishOutcome(event domain.OutcomeEvent)
}

// Flusher 发件箱冲刷器。
//
// 单实例排空循环：同一时刻最多一个冲刷周期在执行，并发触发只会
// 被已运行的周期吸收。按先进先出逐条投递，遇到第一个失败立即
// 停止并把失败项放回队首，留待下一轮重试。除确认投递成功外，
// 任何路径都不丢弃队列中的提交。
type Flusher struct {
	outbox   *outbox.Outbox
	sender   mailer.Sender
	probe    OnlineChecker
	cooldown CooldownRecorder
	log      *zap.Logger

	interval time.Duration
	running  atomic.Bool
	wake     chan struct{}

	// 可选协作方
	locker  storage.Locker // 跨进程单写者仲裁，nil 表示单进程部署
	lockTTL time.Duration
	archive storage.ArchiveRepository // 投递成功后的归档，nil 表示不归档
	sink    EventSink                 // 结果事件出口，nil 表示不发布
	metrics *monitoring.Metrics
}

// Option 冲刷器可选配置
type Option func(*Flusher)

// WithLocker 启用跨进程单写者仲裁
func WithLocker(locker storage.Locker, ttl time.Duration) Option {
	return func(f *Flusher) {
		f.locker = locker
		f.lockTTL = ttl
	}
}

// WithArchive 启用投递成功归档
func WithArchive(archive storage.ArchiveRepository) Option {
	return func(f *Flusher) {
		f.archive = archive
	}
}

// WithEventSink 启用结果事件发布
func WithEventSink(sink EventSink) Option {
	return func(f *Flusher) {
		f.sink = sink
	}
}

// WithMetrics 启用指标采集
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(f *Flusher) {
		f.metrics = metrics
	}
}

// New 创建冲刷器
func New(ob *outbox.Outbox, sender mailer.Sender, probe OnlineChecker,
	cd CooldownRecorder, interval time.Duration, log *zap.Logger, opts ...Option) *Flusher {
	f := &Flusher{
		outbox:   ob,
		sender:   sender,
		probe:    probe,
		cooldown: cd,
		log:      log,
		interval: interval,
		wake:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NotifyOnline 连通性恢复时触发一次冲刷
func (f *Flusher) NotifyOnline() {
	f.poke()
}

// NotifyVisible 页面回到前台时触发一次冲刷
func (f *Flusher) NotifyVisible() {
	f.poke()
}

// poke 向唤醒通道投递信号，通道已满说明冲刷即将发生，直接丢弃
func (f *Flusher) poke() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Run 启动冲刷循环，阻塞到上下文取消
//
// 启动即尝试一次冲刷，之后由唤醒信号和定时器驱动。
// 定时器只在队列非空时才触发实际冲刷。
func (f *Flusher) Run(ctx context.Context) error {
	f.log.Info("发件箱冲刷循环启动", zap.Duration("interval", f.interval))

	f.Flush(ctx)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.log.Info("发件箱冲刷循环退出")
			return ctx.Err()
		case <-f.wake:
			f.Flush(ctx)
		case <-ticker.C:
			if !f.outbox.IsEmpty(ctx) {
				f.Flush(ctx)
			}
		}
	}
}

// Flush 执行一次冲刷周期，返回本周期投递成功的条数
func (f *Flusher) Flush(ctx context.Context) int {
	// 已有周期在运行，本次触发被吸收
	if !f.running.CompareAndSwap(false, true) {
		return 0
	}
	defer f.running.Store(false)

	if f.outbox.IsEmpty(ctx) {
		return 0
	}
	if !f.probe.IsOnline(ctx) {
		return 0
	}

	// 多实例部署时先抢跨进程锁，抢不到说明别的实例正在冲刷
	if f.locker != nil {
		ok, err := f.locker.TryLock(ctx, flushLockName, f.lockTTL)
		if err != nil {
			f.log.Warn("冲刷锁获取失败，跳过本周期", zap.Error(err))
			return 0
		}
		if !ok {
			if f.metrics != nil {
				f.metrics.FlushLockMissed.Inc()
			}
			return 0
		}
		defer func() {
			if err := f.locker.Unlock(ctx, flushLockName); err != nil {
				f.log.Warn("冲刷锁释放失败", zap.Error(err))
			}
		}()
	}

	if f.metrics != nil {
		f.metrics.FlushCycles.Inc()
	}

	delivered := f.drain(ctx)

	if delivered > 0 {
		f.cooldown.RecordSuccess(ctx)
		// 积压补发成功对用户是一条紧凑的成功通知，不逐条打扰
		if f.sink != nil {
			f.sink.PublishOutcome(domain.OutcomeEvent{
				Outcome:   domain.OutcomeSentQueued,
				Count:     delivered,
				Timestamp: time.Now(),
			})
		}
	}

	if f.metrics != nil {
		f.metrics.OutboxDepth.Set(float64(f.outbox.Size(ctx)))
	}
	return delivered
}

// drain 按先进先出逐条投递，遇到失败停止并回退
func (f *Flusher) drain(ctx context.Context) int {
	delivered := 0
	for {
		if ctx.Err() != nil {
			return delivered
		}
		// 每条投递前重新确认连通性，断网瞬间直接停止，
		// 不用投递失败来发现网络没了
		if !f.probe.IsOnline(ctx) {
			return delivered
		}

		sub, ok := f.outbox.DequeueFront(ctx)
		if !ok {
			return delivered
		}

		sub.Attempts++
		if err := f.sender.Send(ctx, sub); err != nil {
			// 失败项回到队首，顺序不变，下一轮从它继续
			f.outbox.RequeueFront(ctx, sub)
			f.log.Warn("积压提交投递失败，停止本周期",
				zap.String("submissionId", sub.ID),
				zap.Int("attempts", sub.Attempts),
				zap.Error(err))
			if f.metrics != nil {
				f.metrics.FlushFailures.Inc()
			}
			return delivered
		}

		delivered++
		f.log.Info("积压提交补发成功",
			zap.String("submissionId", sub.ID),
			zap.Int("attempts", sub.Attempts))
		if f.metrics != nil {
			f.metrics.FlushDelivered.Inc()
		}

		if f.archive != nil {
			if err := f.archive.ArchiveDelivered(ctx, sub, time.Now()); err != nil {
				// 归档失败不影响投递结果
				f.log.Warn("投递归档失败", zap.String("submissionId", sub.ID), zap.Error(err))
			}
		}
	}
}
