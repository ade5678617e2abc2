package health

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/heptiolabs/healthcheck"

	"agencysite/backend/internal/storage"
)

// Checker 健康检查器
type Checker struct {
	health healthcheck.Handler
}

// NewChecker 创建健康检查器
//
// 参数:
//   - providerURL: 邮件服务商端点，可达性作为就绪条件；留空跳过
//   - archive: 归档数据库，nil 表示未启用归档
func NewChecker(providerURL string, archive storage.ArchiveRepository) *Checker {
	c := &Checker{health: healthcheck.NewHandler()}

	// 协程数失控通常意味着冲刷或缓存协程泄漏
	c.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(500))

	if providerURL != "" {
		if host := hostOf(providerURL); host != "" {
			c.health.AddReadinessCheck("mail-provider",
				healthcheck.TCPDialCheck(host, 5*time.Second))
		}
	}

	if archive != nil {
		c.health.AddReadinessCheck("archive-database", archive.Health)
	}

	return c
}

// AddReadinessCheck 追加就绪检查
func (c *Checker) AddReadinessCheck(name string, check func() error) {
	c.health.AddReadinessCheck(name, check)
}

// Handler 返回健康检查处理器，提供 /live 和 /ready
func (c *Checker) Handler() http.Handler {
	return c.health
}

// Snapshot 返回当前进程的概要状态，用于诊断接口
func Snapshot() map[string]string {
	return map[string]string{
		"goroutines": fmt.Sprintf("%d", runtime.NumGoroutine()),
		"timestamp":  time.Now().Format(time.RFC3339),
	}
}

// hostOf 从 URL 提取 host:port，缺省端口按协议补齐
func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	switch u.Scheme {
	case "https":
		return u.Host + ":443"
	case "http":
		return u.Host + ":80"
	}
	return u.Host
}

// ProbeReadiness 把连通性探测接入就绪检查
func ProbeReadiness(probe interface {
	IsOnline(ctx context.Context) bool
}) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if !probe.IsOnline(ctx) {
			return fmt.Errorf("connectivity probe reports offline")
		}
		return nil
	}
}
