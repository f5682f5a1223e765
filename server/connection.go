//go:build linux || darwin

package server

import (
	"fmt"

	"github.com/eapache/queue"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/legamerdc/epollhttp/internal/netutil"
	"github.com/legamerdc/epollhttp/poller"
)

// machine 负责接受连接并推进每条连接的 Reading -> Writing -> Closed 状态转换。
// 只在事件循环 goroutine 中使用；注册表由调用方独占传入。
//
// 返回的 error 都是致命错误（poller 操作失败、accept 失败），事件循环应停止。
// 对端引起的读写错误只关闭该连接。
type machine struct {
	pl         poller.Poller
	conns      *Registry
	chunk      []byte
	maxRequest int
	readBudget int
	log        logrus.FieldLogger
	stats      *counters

	// ready 是待处理事件的 FIFO。一次读满 readBudget 仍未见 EAGAIN 的连接
	// 以合成的可读事件重新排到队尾，避免单个连接饿死同批的其他连接。
	ready *queue.Queue
}

// 单个事件最多读取的 chunk 数
const defaultReadBudget = 32

func newMachine(pl poller.Poller, conns *Registry, cfg Config, stats *counters) *machine {
	return &machine{
		pl:         pl,
		conns:      conns,
		chunk:      make([]byte, cfg.ReadChunkSize),
		maxRequest: cfg.MaxRequestBytes,
		readBudget: defaultReadBudget,
		log:        cfg.Logger,
		stats:      stats,
		ready:      queue.New(),
	}
}

// accept 从监听 fd 接受恰好一条连接，以 oneshot 读关注注册并放入注册表。
// 监听 fd 是水平触发的，剩余的待接受连接会再次通知。
func (m *machine) accept(lfd int) error {
	fd, sa, err := acceptConn(lfd)
	if err != nil {
		switch err {
		case unix.EAGAIN, unix.ECONNABORTED, unix.EINTR:
			return nil
		}
		return fmt.Errorf("server: accept: %w", err)
	}
	if _, ok := m.conns.Get(fd); ok {
		unix.Close(fd)
		return fmt.Errorf("%w: fd %d", ErrDuplicateConn, fd)
	}
	_ = netutil.SetNoDelay(fd, true)
	if err := m.pl.Register(fd, poller.Readable, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: register fd %d: %w", fd, err)
	}
	c := newConnection(fd, nil, m.maxRequest)
	if peer, err := netutil.TCPAddr(sa); err == nil {
		c.Peer = peer
	}
	if err := m.conns.Insert(c); err != nil {
		return err
	}
	m.stats.accepted.Add(1)
	m.stats.active.Add(1)
	m.log.WithFields(logrus.Fields{"fd": fd, "peer": c.Peer}).Debug("accept")
	return nil
}

// advance 按连接当前阶段处理一条就绪事件。
// 不在注册表中的 fd 直接忽略，不会传给任何系统调用。
func (m *machine) advance(ev poller.Event) error {
	c, ok := m.conns.Get(ev.FD)
	if !ok {
		m.log.WithField("fd", ev.FD).Debug("event for unknown fd")
		return nil
	}
	switch {
	case c.Phase == PhaseReading && (ev.Ready&poller.Readable != 0 || ev.Hangup):
		return m.onReadable(c)
	case c.Phase == PhaseWriting && (ev.Ready&poller.Writable != 0 || ev.Hangup):
		return m.onWritable(c)
	}
	m.log.WithFields(logrus.Fields{"fd": c.FD, "phase": c.Phase, "ready": ev.Ready}).Debug("event does not match phase")
	return nil
}

// onReadable 读到 EAGAIN 为止，把数据累积进请求缓冲并查找终止序列。
// 读满 readBudget 个 chunk 后把连接重新排队；此时 oneshot 已消耗，poller 不会重复通知。
func (m *machine) onReadable(c *Connection) error {
	for reads := 0; ; reads++ {
		if reads == m.readBudget {
			m.log.WithField("fd", c.FD).Debug("read budget exhausted")
			m.ready.Add(poller.Event{FD: c.FD, Ready: poller.Readable})
			return nil
		}
		n, err := unix.Read(c.FD, m.chunk)
		if n > 0 {
			if evicted := c.req.WriteEvict(m.chunk[:n]); evicted > 0 {
				m.log.WithFields(logrus.Fields{"fd": c.FD, "evicted": evicted}).Debug("request buffer full")
			}
			m.log.WithFields(logrus.Fields{"fd": c.FD, "n": n, "buffered": c.req.Len()}).Debug("recv")
			if hasTerminator(c.req) {
				return m.arm(c, PhaseWriting)
			}
			continue
		}
		switch err {
		case nil:
			return m.teardown(c.FD, "peer closed")
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			// 尚无终止序列：保持 Reading，重新武装 oneshot
			return m.arm(c, PhaseReading)
		}
		m.log.WithFields(logrus.Fields{"fd": c.FD, "err": err}).Warn("recv failed")
		return m.teardown(c.FD, "recv error")
	}
}

// onWritable 只尝试一次写出固定应答；部分写出不重试。随后关闭连接。
// 写失败（EPIPE、ECONNRESET 等）只关闭这一条连接，不作为致命错误停止事件循环。
func (m *machine) onWritable(c *Connection) error {
	n, err := unix.Write(c.FD, response)
	if err != nil {
		m.log.WithFields(logrus.Fields{"fd": c.FD, "err": err}).Warn("send failed")
		return m.teardown(c.FD, "send error")
	}
	if n < len(response) {
		m.stats.shortWrites.Add(1)
		m.log.WithFields(logrus.Fields{"fd": c.FD, "n": n, "want": len(response)}).Warn("short write")
	}
	m.log.WithFields(logrus.Fields{"fd": c.FD, "n": n}).Debug("send")
	m.stats.responded.Add(1)
	return m.teardown(c.FD, "")
}

// arm 把连接切换到 phase 并在 poller 上武装对应的关注集合。
// Reading 使用 oneshot；Writing 只需一次可写通知，不设 oneshot。
func (m *machine) arm(c *Connection, phase Phase) error {
	in := phase.Interest()
	if err := m.pl.Mod(c.FD, in, phase == PhaseReading); err != nil {
		return fmt.Errorf("server: modify fd %d to %s: %w", c.FD, in, err)
	}
	c.Phase, c.Interest = phase, in
	return nil
}

// teardown 注销、shutdown 并关闭连接，且先从注册表移除。
// fd 不在注册表中时什么都不做。reason 非空表示连接未收到应答。
func (m *machine) teardown(fd int, reason string) error {
	c, ok := m.conns.Take(fd)
	if !ok {
		return nil
	}
	m.stats.active.Add(-1)
	if reason != "" {
		m.stats.dropped.Add(1)
	}
	m.log.WithFields(logrus.Fields{"fd": fd, "phase": c.Phase, "reason": reason}).Debug("close")

	if err := m.pl.Unregister(fd); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: unregister fd %d: %w", fd, err)
	}
	if err := unix.Shutdown(fd, unix.SHUT_RDWR); err != nil && err != unix.ENOTCONN {
		m.log.WithFields(logrus.Fields{"fd": fd, "err": err}).Warn("shutdown failed")
	}
	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("server: close fd %d: %w", fd, err)
	}
	return nil
}

// closeAll 强制关闭注册表中的全部连接（Serve 退出时使用），错误只记录。
func (m *machine) closeAll() {
	for _, fd := range m.conns.FDs() {
		if err := m.teardown(fd, "server closed"); err != nil {
			m.log.WithField("err", err).Warn("teardown on close")
		}
	}
}
