package sample

import "container/list"

// 文档注释：取点器 LRU 缓存（键为 角色+分区 id）
// 背景：同一分区在多行中反复出现，缓存构造结果，避免重复计算包围盒与累计权重。
// 约束：仅供单线程的解聚引擎使用，不加锁；构造不消费随机数，淘汰后重建不影响输出。
type Cache struct {
	cap    int
	lst    *list.List
	dict   map[string]*list.Element
	hits   int
	misses int
}

type entry struct {
	k string
	v Subsampler
}

// NewCache：capacity<=0 时回退到 4096
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 4096
	}
	return &Cache{cap: capacity, lst: list.New(), dict: make(map[string]*list.Element)}
}

func Key(role, zone string) string { return role + "\x00" + zone }

func (c *Cache) Get(k string) (Subsampler, bool) {
	if e, ok := c.dict[k]; ok {
		c.lst.MoveToFront(e)
		c.hits++
		return e.Value.(entry).v, true
	}
	c.misses++
	return nil, false
}

func (c *Cache) Set(k string, v Subsampler) {
	if e, ok := c.dict[k]; ok {
		e.Value = entry{k: k, v: v}
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(entry{k: k, v: v})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(entry).k)
		c.lst.Remove(back)
	}
}

func (c *Cache) Len() int { return c.lst.Len() }

// Stats 返回命中与未命中次数
func (c *Cache) Stats() (hits, misses int) { return c.hits, c.misses }
