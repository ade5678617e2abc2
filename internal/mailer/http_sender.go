package mailer

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"agencysite/backend/internal/domain"
)

// HTTPSender 通过 HTTP 表单提交端点投递的发送器。
//
// 面向 Formspree 一类的托管表单服务：POST 表单编码数据，
// 2xx 和 3xx 响应都算成功（部分服务商用重定向表示接收成功）。
type HTTPSender struct {
	client      *http.Client
	providerURL string
	log         *zap.Logger
}

// NewHTTPSender 创建 HTTP 投递发送器
func NewHTTPSender(providerURL string, timeout time.Duration, log *zap.Logger) *HTTPSender {
	return &HTTPSender{
		client: &http.Client{
			Timeout: timeout,
			// 不跟随重定向，3xx 本身就是服务商的成功应答
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		providerURL: providerURL,
		log:         log,
	}
}

// Send 投递一条提交
func (s *HTTPSender) Send(ctx context.Context, sub *domain.Submission) error {
	form := url.Values{}
	form.Set("name", sub.Name)
	form.Set("email", sub.Email)
	form.Set("message", sub.Message)
	// 蜜罐字段原样带上（到这里必然为空），和页面表单的字段集保持一致
	form.Set("website", sub.Honeypot)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.providerURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		s.log.Info("提交已投递",
			zap.String("submissionId", sub.ID),
			zap.Int("status", resp.StatusCode))
		return nil
	}

	s.log.Warn("服务商拒绝投递",
		zap.String("submissionId", sub.ID),
		zap.Int("status", resp.StatusCode))
	return fmt.Errorf("%w: provider returned status %d", ErrDeliveryFailed, resp.StatusCode)
}
