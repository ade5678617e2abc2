package httptransport

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agencysite/backend/internal/offlinecache"
)

// CacheHandler 把站点资源请求交给离线缓存工作协程应答
type CacheHandler struct {
	worker *offlinecache.Worker
	log    *zap.Logger
}

// NewCacheHandler 创建资源处理器
func NewCacheHandler(worker *offlinecache.Worker, log *zap.Logger) *CacheHandler {
	return &CacheHandler{worker: worker, log: log}
}

// Serve 处理站点资源请求
//
// 工作协程返回 nil 表示直通类请求（非 GET），资源层没有
// 可转发的上游处理器，按 502 处理。
func (h *CacheHandler) Serve(c *gin.Context) {
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	resp := h.worker.HandleFetch(ctx,
		c.Request.Method,
		c.Request.URL.Path,
		c.GetHeader("Accept"))
	if resp == nil {
		c.Status(http.StatusBadGateway)
		return
	}

	for key, values := range resp.Header {
		for _, value := range values {
			c.Header(key, value)
		}
	}
	c.Data(resp.Status, resp.Header.Get("Content-Type"), resp.Body)
}
