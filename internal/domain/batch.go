package domain

import "time"

// Batch 表示一次分配产生的、尚未消费的代理集合
//
// 批次只存在于内存中，不落库；对应的数据库状态是各记录上的预占标记。
// 每个用户同一时刻只持有一个活跃批次，重新生成会先释放旧批次。
type Batch struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Proxies   []Proxy   `json:"proxies"`
	CreatedAt time.Time `json:"createdAt"`
}

// Size 返回批次包含的记录数
func (b *Batch) Size() int {
	return len(b.Proxies)
}

// ProxyIDs 返回批次内所有记录的 ID
func (b *Batch) ProxyIDs() []string {
	ids := make([]string, 0, len(b.Proxies))
	for _, p := range b.Proxies {
		ids = append(ids, p.ID)
	}
	return ids
}

// ProxyStrings 返回批次内所有代理串
func (b *Batch) ProxyStrings() []string {
	values := make([]string, 0, len(b.Proxies))
	for _, p := range b.Proxies {
		values = append(values, p.ProxyString)
	}
	return values
}
