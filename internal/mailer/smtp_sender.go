package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"agencysite/backend/internal/domain"
)

// SMTPSender 通过 SMTP 直投工作室收件箱的发送器。
//
// 适合自建邮件基础设施的部署，不经过第三方表单服务。
type SMTPSender struct {
	addr string // SMTP 服务地址 "host:port"
	from string
	to   string
	log  *zap.Logger
}

// NewSMTPSender 创建 SMTP 投递发送器
func NewSMTPSender(addr, from, to string, log *zap.Logger) *SMTPSender {
	return &SMTPSender{
		addr: addr,
		from: from,
		to:   to,
		log:  log,
	}
}

// Send 投递一条提交
func (s *SMTPSender) Send(ctx context.Context, sub *domain.Submission) error {
	msg := s.buildMessage(sub)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(s.addr, nil, s.from, []string{s.to}, strings.NewReader(msg))
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Warn("SMTP 投递失败",
				zap.String("submissionId", sub.ID),
				zap.Error(err))
			return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
		}
		s.log.Info("提交已通过 SMTP 投递", zap.String("submissionId", sub.ID))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, ctx.Err())
	}
}

// buildMessage 把提交渲染为邮件正文
func (s *SMTPSender) buildMessage(sub *domain.Submission) string {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.from)
	fmt.Fprintf(&b, "To: %s\r\n", s.to)
	fmt.Fprintf(&b, "Reply-To: %s\r\n", sub.Email)
	fmt.Fprintf(&b, "Subject: Contact form: %s\r\n", sub.Name)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Name: %s\r\n", sub.Name)
	fmt.Fprintf(&b, "Email: %s\r\n", sub.Email)
	b.WriteString("\r\n")
	b.WriteString(sub.Message)
	b.WriteString("\r\n")
	return b.String()
}
