package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"proxypool/backend/internal/auth"
	"proxypool/backend/internal/domain"
	"proxypool/backend/internal/service"
	"proxypool/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 认证错误
	auth.ErrInvalidAccessKey: "访问密钥无效",
	auth.ErrUserInactive:     "账户已被停用",

	// 代理池错误
	storage.ErrNotEnoughProxies: "可用代理数量不足",
	storage.ErrBatchConflict:    "部分 IP 已被其他用户占用，请重新生成",
	service.ErrInvalidAmount:    "申请数量超出允许范围",
	service.ErrBatchNotFound:    "没有待交付的批次，请先生成",

	// 用户管理错误
	storage.ErrUserNotFound:         "用户不存在",
	storage.ErrUserExists:           "用户名或访问密钥已存在",
	service.ErrSelfModification:     "不能删除或停用自己的账户",
	service.ErrInvalidRole:          "角色取值无效",
	service.ErrConfirmationMismatch: "确认短语不匹配，请输入 DELETE ALL",

	// 上传错误
	storage.ErrProxyExists: "部分代理记录已存在，请检查文件内容",

	// 校验错误
	domain.ErrUsernameInvalid:    "用户名格式无效",
	domain.ErrProxyStringInvalid: "代理串格式无效",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for target, msg := range errorMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}

// RespondError 把业务错误翻译为统一的 HTTP 响应。
//
// 状态码约定：认证失败 401、权限不足 403、资源不存在 404、
// 冲突 409、库存不足 422、参数校验 400，其余按 500 处理。
func RespondError(c *gin.Context, err error) {
	msg := GetErrorMessage(err)
	switch {
	case errors.Is(err, auth.ErrInvalidAccessKey), errors.Is(err, auth.ErrUserInactive):
		Unauthorized(c, msg)
	case errors.Is(err, service.ErrSelfModification):
		Forbidden(c, msg)
	case errors.Is(err, storage.ErrUserNotFound), errors.Is(err, service.ErrBatchNotFound):
		NotFound(c, msg)
	case errors.Is(err, storage.ErrUserExists),
		errors.Is(err, storage.ErrProxyExists),
		errors.Is(err, storage.ErrBatchConflict):
		Conflict(c, msg)
	case errors.Is(err, storage.ErrNotEnoughProxies):
		UnprocessableEntity(c, msg)
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrConfirmationMismatch),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, domain.ErrUsernameInvalid),
		errors.Is(err, domain.ErrProxyStringInvalid):
		BadRequest(c, msg)
	default:
		InternalError(c, MsgInternalError)
	}
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest   = "请求参数格式错误"
	MsgRequestBodyEmpty = "请求体不能为空"

	// 认证相关
	MsgAuthRequired     = "需要登录认证"
	MsgTokenExpired     = "登录已过期，请重新登录"
	MsgTokenInvalid     = "无效的访问令牌"
	MsgPermissionDenied = "权限不足"

	// 服务器相关
	MsgInternalError = "服务器内部错误，请稍后重试"
)
