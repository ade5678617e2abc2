package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agencysite/backend/internal/storage"
)

// ArchiveHandler 投递归档查询接口
type ArchiveHandler struct {
	archive storage.ArchiveRepository
	log     *zap.Logger
}

// NewArchiveHandler 创建归档查询处理器
func NewArchiveHandler(archive storage.ArchiveRepository, log *zap.Logger) *ArchiveHandler {
	return &ArchiveHandler{archive: archive, log: log}
}

// Delivered 处理 GET /v1/delivered，返回最近确认投递成功的提交
func (h *ArchiveHandler) Delivered(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	items, err := h.archive.ListDelivered(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("归档查询失败", zap.Error(err))
		InternalError(c, MsgInternalError)
		return
	}

	Success(c, gin.H{
		"size":  len(items),
		"items": items,
	})
}
