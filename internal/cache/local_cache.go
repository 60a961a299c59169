package cache

import (
	"sync"
	"time"
)

// LocalCache 本地内存缓存
//
// 登录限流在 Redis 不可用时退回到这里的进程内计数。
type LocalCache struct {
	mu   sync.Mutex
	data map[string]*cacheEntry
	ttl  time.Duration

	stop chan struct{}
}

type cacheEntry struct {
	value     interface{}
	counter   int64
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存并启动过期清理
func NewLocalCache(ttl time.Duration) *LocalCache {
	c := &LocalCache{
		data: make(map[string]*cacheEntry),
		ttl:  ttl,
		stop: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// Get 获取缓存值
func (c *LocalCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.data, key)
		return nil, false
	}
	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache) Set(key string, value interface{}, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

// Incr 自增计数器并返回当前值。
// 计数器在首次创建时设定过期时间，窗口内的后续自增不重置它。
func (c *LocalCache) Incr(key string, ttl time.Duration) int64 {
	if ttl == 0 {
		ttl = c.ttl
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok || time.Now().After(entry.expiresAt) {
		entry = &cacheEntry{expiresAt: time.Now().Add(ttl)}
		c.data[key] = entry
	}
	entry.counter++
	return entry.counter
}

// Delete 删除缓存值
func (c *LocalCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
}

// Clear 清空所有缓存
func (c *LocalCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*cacheEntry)
}

// Close 停止后台清理
func (c *LocalCache) Close() {
	close(c.stop)
}

func (c *LocalCache) cleanupLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			for key, entry := range c.data {
				if now.After(entry.expiresAt) {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
