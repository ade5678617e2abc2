package domain

import "time"

// OutcomeEvent 提交结果事件，驱动状态横幅和在线页面的即时反馈
type OutcomeEvent struct {
	Outcome   Outcome   `json:"outcome"`
	Count     int       `json:"count,omitempty"` // 一次冲刷中补发成功的条数
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectivityEvent 连通性状态变化事件
type ConnectivityEvent struct {
	Online    bool      `json:"online"`
	Timestamp time.Time `json:"timestamp"`
}
