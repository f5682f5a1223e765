package server

import "sync/atomic"

// Stats 是服务端计数器快照。
type Stats struct {
	Accepted    uint64 // 已接受的连接
	Responded   uint64 // 已发送应答并关闭的连接
	Dropped     uint64 // 未发送应答即关闭的连接
	ShortWrites uint64 // 应答只被部分写出的次数（不重试）
	Active      int    // 当前注册表中的连接数
}

// 计数只在事件循环中递增，通过原子操作对外发布
type counters struct {
	accepted    atomic.Uint64
	responded   atomic.Uint64
	dropped     atomic.Uint64
	shortWrites atomic.Uint64
	active      atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Accepted:    c.accepted.Load(),
		Responded:   c.responded.Load(),
		Dropped:     c.dropped.Load(),
		ShortWrites: c.shortWrites.Load(),
		Active:      int(c.active.Load()),
	}
}
