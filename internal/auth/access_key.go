package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// 访问密钥格式: pk_ 前缀 + 48 位十六进制随机串
const (
	accessKeyPrefix    = "pk_"
	accessKeyRandBytes = 24
)

// GenerateAccessKey 生成新的访问密钥。
// 明文只在创建时返回一次，存储中只保留摘要。
func GenerateAccessKey() (string, error) {
	buf := make([]byte, accessKeyRandBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate access key: %w", err)
	}
	return accessKeyPrefix + hex.EncodeToString(buf), nil
}

// HashAccessKey 计算访问密钥的 SHA-256 摘要（十六进制小写）。
// 登录需要按密钥值反查账户，所以使用确定性摘要而不是加盐哈希。
func HashAccessKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// MaskAccessKey 返回适合写入日志的脱敏形式
func MaskAccessKey(key string) string {
	if len(key) <= len(accessKeyPrefix)+4 {
		return "***"
	}
	return key[:len(accessKeyPrefix)+4] + strings.Repeat("*", 6)
}
