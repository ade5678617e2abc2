package httptransport

import (
	"github.com/gin-gonic/gin"

	"agencysite/backend/internal/banner"
)

// BannerHandler 状态横幅查询接口
//
// 站点页面轮询这里决定横幅的展示与淡出，阶段完全由服务端推算。
type BannerHandler struct {
	banner *banner.Banner
}

// NewBannerHandler 创建横幅查询处理器
func NewBannerHandler(b *banner.Banner) *BannerHandler {
	return &BannerHandler{banner: b}
}

// State 处理 GET /v1/banner，返回横幅当前阶段与结果
func (h *BannerHandler) State(c *gin.Context) {
	phase := h.banner.Phase()
	Success(c, gin.H{
		"phase":   phase,
		"outcome": h.banner.Outcome(),
	})
}
