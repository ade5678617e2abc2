package mailer

import (
	"context"
	"errors"

	"agencysite/backend/internal/domain"
)

// ErrDeliveryFailed 投递失败错误，涵盖传输失败和服务商拒绝
var ErrDeliveryFailed = errors.New("submission delivery failed")

// Sender 定义把提交投递给邮件服务的操作。
//
// 服务商是黑盒：实现只需回答成功或失败，调用方不关心内部细节。
type Sender interface {
	Send(ctx context.Context, sub *domain.Submission) error
}
