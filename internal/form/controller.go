package form

import (
	"context"
	"time"

	"go.uber.org/zap"

	"agencysite/backend/internal/domain"
	"agencysite/backend/internal/monitoring"
)

// Sender 投递操作，由 mailer 实现
type Sender interface {
	Send(ctx context.Context, sub *domain.Submission) error
}

// OnlineChecker 连通性查询操作
type OnlineChecker interface {
	IsOnline(ctx context.Context) bool
}

// CooldownLock 冷却锁操作
type CooldownLock interface {
	IsLocked(ctx context.Context) bool
	RemainingCooldown(ctx context.Context) time.Duration
	RecordSuccess(ctx context.Context)
}

// Enqueuer 发件箱入队操作
type Enqueuer interface {
	Enqueue(ctx context.Context, sub *domain.Submission)
}

// EventSink 结果事件的发布出口
type EventSink interface {
	PublishOutcome(event domain.OutcomeEvent)
}

// Result 一次提交流程的最终结果
type Result struct {
	Outcome   domain.Outcome
	State     domain.SubmitState
	Err       error         // 验证或投递错误，成功路径为 nil
	Remaining time.Duration // 被冷却拦截时的剩余时长
}

// Controller 联系表单提交控制器。
//
// 状态机按固定顺序推进：冷却拦截，蜜罐判定，字段验证，
// 然后根据连通性选择直发或入队。蜜罐命中时伪装成功，
// 不发网络请求也不入队，机器人无从得知被识破。
type Controller struct {
	sender  Sender
	probe   OnlineChecker
	lock    CooldownLock
	outbox  Enqueuer
	log     *zap.Logger
	sink    EventSink
	metrics *monitoring.Metrics
	now     func() time.Time

	// 在线直发失败时是否转入发件箱。默认关闭：失败原因可能是
	// 服务商拒绝（内容问题），入队重试只会反复失败。
	enqueueOnFailure bool
}

// Option 控制器可选配置
type Option func(*Controller)

// WithEnqueueOnFailure 开启直发失败转入队
func WithEnqueueOnFailure() Option {
	return func(c *Controller) {
		c.enqueueOnFailure = true
	}
}

// WithEventSink 启用结果事件发布
func WithEventSink(sink EventSink) Option {
	return func(c *Controller) {
		c.sink = sink
	}
}

// WithMetrics 启用指标采集
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(c *Controller) {
		c.metrics = metrics
	}
}

// New 创建提交控制器
func New(sender Sender, probe OnlineChecker, lock CooldownLock,
	ob Enqueuer, log *zap.Logger, opts ...Option) *Controller {
	c := &Controller{
		sender: sender,
		probe:  probe,
		lock:   lock,
		outbox: ob,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Submit 处理一次表单提交
func (c *Controller) Submit(ctx context.Context, sub *domain.Submission) Result {
	// 冷却期内直接拦截，不碰网络也不碰队列
	if c.lock.IsLocked(ctx) {
		c.record("blocked")
		return Result{
			Outcome:   domain.OutcomeAlreadySent,
			State:     domain.StateBlocked,
			Remaining: c.lock.RemainingCooldown(ctx),
		}
	}

	// 蜜罐命中：对机器人伪装成功，什么都不做
	if sub.IsBot() {
		c.log.Info("蜜罐命中，丢弃提交", zap.String("submissionId", sub.ID))
		c.record("bot")
		return Result{
			Outcome: domain.OutcomeSuccess,
			State:   domain.StateSuccess,
		}
	}

	if err := sub.Validate(); err != nil {
		c.record("invalid")
		return Result{
			Outcome: domain.OutcomeError,
			State:   domain.StateError,
			Err:     err,
		}
	}

	// 离线走排队路径
	if !c.probe.IsOnline(ctx) {
		sub.QueuedAt = c.now()
		c.outbox.Enqueue(ctx, sub)
		c.log.Info("离线提交已入队", zap.String("submissionId", sub.ID))
		c.record("queued")
		c.publish(domain.OutcomeQueued)
		return Result{
			Outcome: domain.OutcomeQueued,
			State:   domain.StateQueued,
		}
	}

	// 在线直发
	sub.Attempts++
	if err := c.sender.Send(ctx, sub); err != nil {
		if c.enqueueOnFailure {
			sub.QueuedAt = c.now()
			c.outbox.Enqueue(ctx, sub)
			c.log.Warn("直发失败，已转入发件箱",
				zap.String("submissionId", sub.ID), zap.Error(err))
			c.record("queued")
			c.publish(domain.OutcomeQueued)
			return Result{
				Outcome: domain.OutcomeQueued,
				State:   domain.StateQueued,
			}
		}

		c.log.Warn("直发失败", zap.String("submissionId", sub.ID), zap.Error(err))
		c.record("error")
		c.publish(domain.OutcomeError)
		return Result{
			Outcome: domain.OutcomeError,
			State:   domain.StateError,
			Err:     err,
		}
	}

	c.lock.RecordSuccess(ctx)
	c.record("success")
	c.publish(domain.OutcomeSuccess)
	return Result{
		Outcome: domain.OutcomeSuccess,
		State:   domain.StateSuccess,
	}
}

func (c *Controller) record(outcome string) {
	if c.metrics != nil {
		c.metrics.RecordSubmission(outcome)
	}
}

func (c *Controller) publish(outcome domain.Outcome) {
	if c.sink != nil {
		c.sink.PublishOutcome(domain.OutcomeEvent{
			Outcome:   outcome,
			Timestamp: c.now(),
		})
	}
}
