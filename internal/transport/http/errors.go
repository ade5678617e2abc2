package httptransport

import (
	"errors"

	"agencysite/backend/internal/domain"
	"agencysite/backend/internal/mailer"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	domain.ErrNameRequired:     "请填写姓名",
	domain.ErrNameTooLong:      "姓名过长（最多120个字符）",
	domain.ErrInvalidEmail:     "邮箱格式无效",
	domain.ErrEmailTooLong:     "邮箱地址过长",
	domain.ErrMessageTooShort:  "留言内容太短（至少2个字符）",
	domain.ErrMessageTooLong:   "留言内容过长（最多4000个字符）",
	domain.ErrMalformedPayload: "请求体格式错误",
	mailer.ErrDeliveryFailed:   "消息发送失败，请稍后重试",
}

// GetErrorMessage 获取错误的中文消息
//
// 按 errors.Is 匹配，包装过的底层错误也能映射到对应消息。
func GetErrorMessage(err error) string {
	for sentinel, msg := range errorMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return err.Error()
}

// 通用消息
const (
	MsgSubmitSuccess  = "消息已发送，我们会尽快回复您"
	MsgSubmitQueued   = "当前网络不可用，消息已保存，联网后自动发送"
	MsgAlreadySent    = "您刚刚已经提交过，请稍后再试"
	MsgInvalidRequest = "请求参数格式错误"
	MsgInternalError  = "服务器内部错误，请稍后重试"
)
