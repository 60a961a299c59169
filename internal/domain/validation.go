package domain

import (
	"errors"
	"regexp"
	"strings"
)

var (
	// ErrUsernameInvalid 用户名格式无效
	ErrUsernameInvalid = errors.New("username invalid")
	// ErrProxyStringInvalid 代理串格式无效
	ErrProxyStringInvalid = errors.New("proxy string invalid")
)

// maxProxyStringLength 与 proxy_string 列宽保持一致
const maxProxyStringLength = 255

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-]{2,100}$`)

// ValidateUsername 校验用户名：2-100 位字母数字及 _.- 字符
func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrUsernameInvalid
	}
	return nil
}

// NormalizeProxyLine 清洗一行上传内容，返回可入库的代理串
//
// 空行返回空串（调用方跳过），超长的行视为非法。
func NormalizeProxyLine(line string) (string, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", nil
	}
	if len(trimmed) > maxProxyStringLength {
		return "", ErrProxyStringInvalid
	}
	return trimmed, nil
}
