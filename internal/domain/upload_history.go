package domain

import "time"

// UploadPosition 批量上传的插入位置标记
//
// 现阶段只有追加一种语义，保留字段以兼容历史数据。
const UploadPositionAppend = "append"

// UploadHistory 记录一次批量上传操作，追加写入的审计日志
type UploadHistory struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UploadedBy string    `json:"uploadedBy" gorm:"type:varchar(36);index;not null"`
	FileName   string    `json:"fileName" gorm:"type:varchar(255)"`
	ProxyCount int       `json:"proxyCount" gorm:"not null"`
	Position   string    `json:"position" gorm:"type:varchar(20);default:'append'"`
	CreatedAt  time.Time `json:"createdAt" gorm:"index"`
}

// UploadHistoryWithUser 携带上传者用户名的上传记录
type UploadHistoryWithUser struct {
	UploadHistory
	Username string `json:"username"`
}
