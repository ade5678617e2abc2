package httptransport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agencysite/backend/internal/domain"
	"agencysite/backend/internal/form"
	"agencysite/backend/internal/health"
	"agencysite/backend/internal/monitoring"
)

// OutboxReader 发件箱只读诊断操作
type OutboxReader interface {
	PeekAll(ctx context.Context) []domain.Submission
	Size(ctx context.Context) int
}

// ContactHandler 联系表单 HTTP 处理器
type ContactHandler struct {
	controller *form.Controller
	outbox     OutboxReader
	log        *zap.Logger
	metrics    *monitoring.Metrics
}

// NewContactHandler 创建联系表单处理器
func NewContactHandler(controller *form.Controller, ob OutboxReader,
	log *zap.Logger, metrics *monitoring.Metrics) *ContactHandler {
	return &ContactHandler{
		controller: controller,
		outbox:     ob,
		log:        log,
		metrics:    metrics,
	}
}

// Submit 处理 POST /contact
//
// 浏览器表单提交走 303 重定向回来源页并带上结果标记；
// 程序化调用（JSON 或 Accept: application/json）返回统一响应体。
func (h *ContactHandler) Submit(c *gin.Context) {
	start := time.Now()
	defer func() {
		if h.metrics != nil {
			h.metrics.SubmissionLatency.Observe(time.Since(start).Seconds())
		}
	}()

	sub, parseErr := h.parseSubmission(c)
	if parseErr != nil {
		if h.wantsJSON(c) {
			BadRequest(c, MsgInvalidRequest)
		} else {
			h.redirectBack(c, "error", "invalid")
		}
		return
	}

	result := h.controller.Submit(c.Request.Context(), sub)

	if h.wantsJSON(c) {
		h.respondJSON(c, result)
		return
	}
	h.respondRedirect(c, result)
}

// Ping 处理 GET /ping，连通性探测专用
//
// 空 204 加 no-store：探测要的是真实网络往返，不能命中缓存。
func (h *ContactHandler) Ping(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Status(http.StatusNoContent)
}

// OutboxSnapshot 处理 GET /v1/outbox，只读诊断接口
func (h *ContactHandler) OutboxSnapshot(c *gin.Context) {
	items := h.outbox.PeekAll(c.Request.Context())
	Success(c, gin.H{
		"size":    len(items),
		"items":   items,
		"process": health.Snapshot(),
	})
}

// parseSubmission 按 Content-Type 解析请求体为类型化提交
func (h *ContactHandler) parseSubmission(c *gin.Context) (*domain.Submission, error) {
	contentType := c.ContentType()

	if strings.HasPrefix(contentType, "application/json") {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			return nil, domain.ErrMalformedPayload
		}
		return domain.ParseJSON(body)
	}

	if err := c.Request.ParseForm(); err != nil {
		return nil, domain.ErrMalformedPayload
	}
	return domain.ParseForm(c.Request.PostForm)
}

// wantsJSON 判断调用方是否期望 JSON 响应
func (h *ContactHandler) wantsJSON(c *gin.Context) bool {
	if strings.HasPrefix(c.ContentType(), "application/json") {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

// respondJSON 把提交结果映射为统一响应体
func (h *ContactHandler) respondJSON(c *gin.Context, result form.Result) {
	switch result.Outcome {
	case domain.OutcomeSuccess:
		SuccessWithMsg(c, MsgSubmitSuccess, gin.H{"outcome": result.Outcome})
	case domain.OutcomeQueued:
		Accepted(c, MsgSubmitQueued, gin.H{"outcome": result.Outcome})
	case domain.OutcomeAlreadySent:
		TooManyRequests(c, MsgAlreadySent, gin.H{
			"outcome":          result.Outcome,
			"retryAfterSecond": int(result.Remaining.Seconds()),
		})
	case domain.OutcomeError:
		if result.Err == nil {
			InternalError(c, MsgInternalError)
			return
		}
		if isValidationError(result.Err) {
			UnprocessableEntity(c, GetErrorMessage(result.Err))
			return
		}
		BadGateway(c, GetErrorMessage(result.Err))
	default:
		InternalError(c, MsgInternalError)
	}
}

// respondRedirect 浏览器表单提交的 303 回跳
func (h *ContactHandler) respondRedirect(c *gin.Context, result form.Result) {
	switch result.Outcome {
	case domain.OutcomeSuccess:
		h.redirectBack(c, "sent", "1")
	case domain.OutcomeQueued:
		h.redirectBack(c, "queued", "1")
	case domain.OutcomeAlreadySent:
		h.redirectBack(c, "error", "already_sent")
	default:
		h.redirectBack(c, "error", "send_failed")
	}
}

// redirectBack 303 重定向回来源页并附加结果查询参数
func (h *ContactHandler) redirectBack(c *gin.Context, key, value string) {
	target := c.GetHeader("Referer")
	if target == "" {
		target = "/"
	}

	u, err := url.Parse(target)
	if err != nil {
		u = &url.URL{Path: "/"}
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()

	c.Redirect(http.StatusSeeOther, u.String())
}

// isValidationError 判断是否是字段验证错误
func isValidationError(err error) bool {
	validationErrors := []error{
		domain.ErrNameRequired,
		domain.ErrNameTooLong,
		domain.ErrInvalidEmail,
		domain.ErrEmailTooLong,
		domain.ErrMessageTooShort,
		domain.ErrMessageTooLong,
	}
	for _, sentinel := range validationErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
