package banner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"agencysite/backend/internal/domain"
)

func TestBanner(t *testing.T) {
	base := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	newBanner := func(opts ...Option) (*Banner, *time.Time) {
		current := base
		all := append([]Option{WithClock(func() time.Time { return current })}, opts...)
		b := New(all...)
		return b, &current
	}

	t.Run("初始阶段为None", func(t *testing.T) {
		b, _ := newBanner()

		assert.Equal(t, PhaseNone, b.Phase())
		assert.Equal(t, domain.OutcomeNone, b.Outcome())
	})

	t.Run("展示结果后进入Showing", func(t *testing.T) {
		b, _ := newBanner()

		b.Show(domain.OutcomeSuccess)

		assert.Equal(t, PhaseShowing, b.Phase())
		assert.Equal(t, domain.OutcomeSuccess, b.Outcome())
	})

	t.Run("停留期结束后淡出再消失", func(t *testing.T) {
		b, current := newBanner()
		b.Show(domain.OutcomeSuccess)

		// 成功结果停留 4s
		*current = base.Add(4*time.Second - time.Millisecond)
		assert.Equal(t, PhaseShowing, b.Phase())

		*current = base.Add(4*time.Second + 100*time.Millisecond)
		assert.Equal(t, PhaseFadingOut, b.Phase())

		*current = base.Add(4*time.Second + 500*time.Millisecond)
		assert.Equal(t, PhaseNone, b.Phase())
		assert.Equal(t, domain.OutcomeNone, b.Outcome())
	})

	t.Run("错误结果停留更久", func(t *testing.T) {
		b, current := newBanner()
		b.Show(domain.OutcomeError)

		*current = base.Add(7 * time.Second)
		assert.Equal(t, PhaseShowing, b.Phase())

		*current = base.Add(8*time.Second + 100*time.Millisecond)
		assert.Equal(t, PhaseFadingOut, b.Phase())
	})

	t.Run("新结果重置展示计时", func(t *testing.T) {
		b, current := newBanner()
		b.Show(domain.OutcomeSuccess)

		*current = base.Add(3 * time.Second)
		b.Show(domain.OutcomeError)

		// 如果没有重置，成功结果 4s 后就该淡出了
		*current = base.Add(5 * time.Second)
		assert.Equal(t, PhaseShowing, b.Phase())
		assert.Equal(t, domain.OutcomeError, b.Outcome())
	})

	t.Run("消失时触发清理回调", func(t *testing.T) {
		cleared := 0
		b, current := newBanner(WithOnClear(func() { cleared++ }))
		b.Show(domain.OutcomeSuccess)

		*current = base.Add(10 * time.Second)

		// 多次查询只回调一次
		assert.Equal(t, PhaseNone, b.Phase())
		assert.Equal(t, PhaseNone, b.Phase())
		assert.Equal(t, 1, cleared)
	})

	t.Run("结果事件直接驱动横幅", func(t *testing.T) {
		b, _ := newBanner()

		b.PublishOutcome(domain.OutcomeEvent{Outcome: domain.OutcomeSentQueued, Count: 2})

		assert.Equal(t, PhaseShowing, b.Phase())
		assert.Equal(t, domain.OutcomeSentQueued, b.Outcome())
	})

	t.Run("展示None结果被忽略", func(t *testing.T) {
		b, _ := newBanner()

		b.Show(domain.OutcomeNone)

		assert.Equal(t, PhaseNone, b.Phase())
	})
}
