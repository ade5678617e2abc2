package domain

import (
	"errors"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrNameRequired    = errors.New("name is required")
	ErrNameTooLong     = errors.New("name too long (max 120 chars)")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrEmailTooLong    = errors.New("email address too long (max 254 chars)")
	ErrMessageTooShort = errors.New("message too short (min 2 chars)")
	ErrMessageTooLong  = errors.New("message too long (max 4000 chars)")
	ErrHoneypotFilled  = errors.New("honeypot field must be empty")
)

// 验证常量
const (
	MaxNameLength = 120

	// RFC 5322 邮箱地址长度上限
	MaxEmailLength = 254

	MinMessageLength = 2
	MaxMessageLength = 4000
)

// 邮箱格式只做基础校验：非空本地部分 @ 非空域名 . 非空后缀。
// 更严格的判定交给邮件服务商，过度校验只会拒绝合法地址。
var emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidateName 验证姓名字段
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return ErrNameRequired
	}
	if len(trimmed) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// ValidateEmail 验证邮箱字段
func ValidateEmail(email string) error {
	trimmed := strings.TrimSpace(email)
	if len(trimmed) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if !emailRegex.MatchString(trimmed) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateMessage 验证留言正文
func ValidateMessage(message string) error {
	trimmed := strings.TrimSpace(message)
	if len(trimmed) < MinMessageLength {
		return ErrMessageTooShort
	}
	if len(trimmed) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// Validate 按字段顺序验证整条提交，返回第一个失败项
//
// 注意：蜜罐字段不在此处检查。蜜罐命中需要伪装成功而不是返回错误，
// 由提交控制器在验证之前单独判定。
func (s *Submission) Validate() error {
	if err := ValidateName(s.Name); err != nil {
		return err
	}
	if err := ValidateEmail(s.Email); err != nil {
		return err
	}
	if err := ValidateMessage(s.Message); err != nil {
		return err
	}
	return nil
}

// IsBot 判断提交是否命中蜜罐
func (s *Submission) IsBot() bool {
	return strings.TrimSpace(s.Honeypot) != ""
}

// Normalize 去除各字段首尾空白
func (s *Submission) Normalize() {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	s.Message = strings.TrimSpace(s.Message)
}
