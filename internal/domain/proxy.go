package domain

import "time"

// Proxy 表示代理池中的一条可分配记录
//
// is_used 的生命周期是单向的：创建时为 false，消费时置为 true 并随即
// 删除整行，绝不会从 true 回退。预占（reserved_*）独立于 is_used：
// 分配时原子地写入预占人，超时未消费则由后台任务释放回池。
type Proxy struct {
	ID          string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProxyString string     `json:"proxyString" gorm:"uniqueIndex;type:varchar(255);not null"`
	IsUsed      bool       `json:"isUsed" gorm:"default:false;index"`
	UsedBy      *string    `json:"usedBy,omitempty" gorm:"type:varchar(36)"`
	UsedAt      *time.Time `json:"usedAt,omitempty"`
	ReservedBy  *string    `json:"-" gorm:"type:varchar(36);index"`
	ReservedAt  *time.Time `json:"-"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ReservedByUser 判断记录当前是否被指定用户预占且未消费
func (p *Proxy) ReservedByUser(userID string) bool {
	return !p.IsUsed && p.ReservedBy != nil && *p.ReservedBy == userID
}

// ReservationExpired 判断预占是否已超时
func (p *Proxy) ReservationExpired(now time.Time, ttl time.Duration) bool {
	if p.ReservedAt == nil {
		return false
	}
	return now.Sub(*p.ReservedAt) > ttl
}

// Available 判断记录是否可被新的分配请求占用
func (p *Proxy) Available(now time.Time, ttl time.Duration) bool {
	if p.IsUsed {
		return false
	}
	if p.ReservedBy == nil {
		return true
	}
	return p.ReservationExpired(now, ttl)
}
