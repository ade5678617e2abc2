package banner

import (
	"sync"
	"time"

	"agencysite/backend/internal/domain"
)

// Phase 横幅展示阶段
type Phase string

const (
	PhaseNone      Phase = "none"
	PhaseShowing   Phase = "showing"
	PhaseFadingOut Phase = "fading_out"
)

// 各结果的停留时长，错误类停留更久让用户来得及读完
var dwellByOutcome = map[domain.Outcome]time.Duration{
	domain.OutcomeSuccess:     4 * time.Second,
	domain.OutcomeSentQueued:  4 * time.Second,
	domain.OutcomeQueued:      6 * time.Second,
	domain.OutcomeAlreadySent: 6 * time.Second,
	domain.OutcomeError:       8 * time.Second,
}

// fadeDuration 淡出动画时长
const fadeDuration = 400 * time.Millisecond

// defaultDwell 未知结果的兜底停留时长
const defaultDwell = 4 * time.Second

// Banner 状态横幅。
//
// 生命周期 None -> Showing -> FadingOut -> None 由时间驱动，
// 新结果到来会直接重置为 Showing 并重新计时。阶段是按当前
// 时刻惰性计算的，没有后台定时器。
type Banner struct {
	mu      sync.Mutex
	outcome domain.Outcome
	shownAt time.Time
	now     func() time.Time

	// onClear 在横幅回到 None 时回调一次，用于清理共享展示标记
	onClear func()
	cleared bool
}

// Option 横幅可选配置
type Option func(*Banner)

// WithClock 注入时钟，用于测试
func WithClock(now func() time.Time) Option {
	return func(b *Banner) {
		b.now = now
	}
}

// WithOnClear 注册横幅消失时的清理回调
func WithOnClear(fn func()) Option {
	return func(b *Banner) {
		b.onClear = fn
	}
}

// New 创建状态横幅
func New(opts ...Option) *Banner {
	b := &Banner{
		now:     time.Now,
		cleared: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Show 展示一个新结果，重置展示计时
func (b *Banner) Show(outcome domain.Outcome) {
	if outcome == domain.OutcomeNone {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.outcome = outcome
	b.shownAt = b.now()
	b.cleared = false
}

// PublishOutcome 把结果事件转为横幅展示，实现提交与冲刷的事件出口
func (b *Banner) PublishOutcome(event domain.OutcomeEvent) {
	b.Show(event.Outcome)
}

// Phase 返回当前展示阶段
func (b *Banner) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()

	phase := b.phaseLocked()
	if phase == PhaseNone && !b.cleared {
		b.cleared = true
		b.outcome = domain.OutcomeNone
		if b.onClear != nil {
			b.onClear()
		}
	}
	return phase
}

// Outcome 返回当前展示的结果，横幅已消失时返回 None
func (b *Banner) Outcome() domain.Outcome {
	if b.Phase() == PhaseNone {
		return domain.OutcomeNone
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.outcome
}

// phaseLocked 按 shownAt 与当前时刻推算阶段，调用方必须持锁
func (b *Banner) phaseLocked() Phase {
	if b.outcome == domain.OutcomeNone || b.shownAt.IsZero() {
		return PhaseNone
	}

	dwell, ok := dwellByOutcome[b.outcome]
	if !ok {
		dwell = defaultDwell
	}

	elapsed := b.now().Sub(b.shownAt)
	switch {
	case elapsed < dwell:
		return PhaseShowing
	case elapsed < dwell+fadeDuration:
		return PhaseFadingOut
	default:
		return PhaseNone
	}
}
