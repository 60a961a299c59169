package domain

import "time"

// UserRole 用户角色
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleUser    UserRole = "user"
)

// ValidRole 判断角色是否为合法取值
func ValidRole(role UserRole) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleUser:
		return true
	}
	return false
}

// User 表示门户账户的业务实体
//
// 访问密钥是唯一的登录凭证，数据库中只保存其 SHA-256 摘要，
// 明文仅在创建或轮换时返回一次。
type User struct {
	ID            string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username      string    `json:"username" gorm:"uniqueIndex;type:varchar(100);not null"`
	AccessKeyHash string    `json:"-" gorm:"uniqueIndex;type:varchar(64);not null"` // 不返回给前端
	Role          UserRole  `json:"role" gorm:"type:varchar(20);default:'user';index"`
	IsActive      bool      `json:"isActive" gorm:"default:true"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsAdmin 判断用户是否为管理员
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsStaff 判断用户是否可以访问状态面板（管理员或经理）
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleManager
}
