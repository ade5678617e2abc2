package domain

import (
	"time"

	"github.com/google/uuid"
)

// Submission 一条联系表单提交记录
//
// QueuedAt 记录进入发件箱的时刻（直发成功的提交该字段为零值）。
// Honeypot 是表单中对人类不可见的诱饵字段，正常提交时必须为空。
type Submission struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Message  string    `json:"message"`
	Honeypot string    `json:"honeypot,omitempty"`
	QueuedAt time.Time `json:"queuedAt,omitempty"`
	Attempts int       `json:"attempts,omitempty"` // 投递尝试次数，仅用于诊断
}

// NewSubmission 创建新的表单提交记录
func NewSubmission(name, email, message string) *Submission {
	return &Submission{
		ID:      uuid.New().String(),
		Name:    name,
		Email:   email,
		Message: message,
	}
}

// Outcome 表示一次提交流程的最终结果，驱动状态横幅的展示
type Outcome string

const (
	OutcomeNone        Outcome = ""             // 无结果，横幅不展示
	OutcomeSuccess     Outcome = "success"      // 直发成功
	OutcomeQueued      Outcome = "queued"       // 已入队，等待联网后补发
	OutcomeSentQueued  Outcome = "sent_queued"  // 积压提交补发成功（入队后转成功的紧凑表示）
	OutcomeError       Outcome = "error"        // 投递失败
	OutcomeAlreadySent Outcome = "already_sent" // 冷却期内重复提交被拦截
)

// SubmitState 表示提交控制器的瞬时状态
type SubmitState string

const (
	StateIdle       SubmitState = "idle"
	StateValidating SubmitState = "validating"
	StateBlocked    SubmitState = "blocked"
	StateQueuing    SubmitState = "queuing"
	StateSending    SubmitState = "sending"
	StateSuccess    SubmitState = "success"
	StateQueued     SubmitState = "queued"
	StateError      SubmitState = "error"
)
