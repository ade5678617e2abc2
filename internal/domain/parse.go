package domain

import (
	"encoding/json"
	"errors"
	"net/url"
)

// ErrMalformedPayload 请求体无法解析为表单提交
var ErrMalformedPayload = errors.New("malformed submission payload")

// submissionPayload JSON 请求体的线格式
type submissionPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Message  string `json:"message"`
	Honeypot string `json:"website"` // 蜜罐字段对外伪装成 website
}

// ParseForm 从表单编码的键值对解析提交
//
// 解析是显式的单独一步：原始输入在这里一次性转换为类型化的
// Submission，后续所有环节只处理结构体，不再接触原始键值。
func ParseForm(values url.Values) (*Submission, error) {
	if values == nil {
		return nil, ErrMalformedPayload
	}
	sub := NewSubmission(values.Get("name"), values.Get("email"), values.Get("message"))
	sub.Honeypot = values.Get("website")
	sub.Normalize()
	return sub, nil
}

// ParseJSON 从 JSON 请求体解析提交
func ParseJSON(body []byte) (*Submission, error) {
	var payload submissionPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, ErrMalformedPayload
	}
	sub := NewSubmission(payload.Name, payload.Email, payload.Message)
	sub.Honeypot = payload.Honeypot
	sub.Normalize()
	return sub, nil
}
