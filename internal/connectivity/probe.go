package connectivity

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Probe 主动连通性探测器。
//
// 判定规则：环境提示说离线则直接离线；否则向轻量探测端点发一次
// 带缓存破坏参数的请求，任何 HTTP 响应（包括 4xx/5xx）都算在线，
// 只有传输层失败或超时才算离线。探测端点不可达时回退探测站点根。
type Probe struct {
	client      *http.Client
	pingURL     string
	fallbackURL string
	timeout     time.Duration
	log         *zap.Logger

	// hint 返回环境连通性提示；nil 表示无提示来源。
	// 提示只能单向短路到离线，说在线仍需实测验证。
	hint func() (online bool, ok bool)

	now func() time.Time
}

// Option 探测器可选配置
type Option func(*Probe)

// WithHint 注入环境连通性提示来源
func WithHint(hint func() (online bool, ok bool)) Option {
	return func(p *Probe) {
		p.hint = hint
	}
}

// WithClient 注入自定义 HTTP 客户端，用于测试
func WithClient(client *http.Client) Option {
	return func(p *Probe) {
		p.client = client
	}
}

// New 创建连通性探测器
//
// 参数:
//   - pingURL: 轻量探测端点，期望返回空 204
//   - fallbackURL: 探测端点请求失败后回退的站点根地址
//   - timeout: 单次探测超时
func New(pingURL, fallbackURL string, timeout time.Duration, log *zap.Logger, opts ...Option) *Probe {
	p := &Probe{
		client:      &http.Client{},
		pingURL:     pingURL,
		fallbackURL: fallbackURL,
		timeout:     timeout,
		log:         log,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IsOnline 探测当前是否在线，从不返回错误
func (p *Probe) IsOnline(ctx context.Context) bool {
	// 环境提示说离线时不必发请求
	if p.hint != nil {
		if online, ok := p.hint(); ok && !online {
			return false
		}
	}

	if p.reachable(ctx, p.pingURL) {
		return true
	}

	// 探测端点本身可能挂了，站点根能通也算在线
	if p.fallbackURL != "" && p.fallbackURL != p.pingURL {
		return p.reachable(ctx, p.fallbackURL)
	}
	return false
}

// reachable 对单个地址做一次带超时的探测
func (p *Probe) reachable(ctx context.Context, rawURL string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, p.bustCache(rawURL), nil)
	if err != nil {
		p.log.Warn("构造探测请求失败", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := p.client.Do(req)
	if err != nil {
		// 传输失败或超时，这才是离线
		return false
	}
	defer resp.Body.Close()

	// 收到任何状态码都证明链路是通的
	return true
}

// bustCache 附加时间戳查询参数，绕过中间缓存
func (p *Probe) bustCache(rawURL string) string {
	sep := "?"
	for _, r := range rawURL {
		if r == '?' {
			sep = "&"
			break
		}
	}
	return fmt.Sprintf("%s%st=%d", rawURL, sep, p.now().UnixNano())
}
