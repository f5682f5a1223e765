package server

import (
	"fmt"
	"net"
	"sort"
	"time"

	"github.com/legamerdc/epollhttp/internal/ring"
	"github.com/legamerdc/epollhttp/poller"
)

// Phase 是连接在请求/应答生命周期中的当前阶段。
// Closed 不单独存储：不在注册表中即为已关闭。
type Phase uint8

const (
	PhaseReading Phase = iota + 1
	PhaseWriting
)

func (p Phase) String() string {
	switch p {
	case PhaseReading:
		return "reading"
	case PhaseWriting:
		return "writing"
	}
	return fmt.Sprintf("phase(%d)", uint8(p))
}

// Interest 返回该阶段必须在 poller 上武装的关注集合。
func (p Phase) Interest() poller.Interest {
	switch p {
	case PhaseReading:
		return poller.Readable
	case PhaseWriting:
		return poller.Writable
	}
	return 0
}

// Connection 是一条已接受连接的状态，由 Registry 独占持有直至关闭。
type Connection struct {
	FD       int
	Phase    Phase
	Interest poller.Interest // 最近一次向 poller 武装的关注集合
	Peer     net.Addr
	Accepted time.Time

	req *ring.Buffer
}

func newConnection(fd int, peer net.Addr, maxRequest int) *Connection {
	return &Connection{
		FD:       fd,
		Phase:    PhaseReading,
		Interest: poller.Readable,
		Peer:     peer,
		Accepted: time.Now(),
		req:      ring.New(maxRequest),
	}
}

// Buffered 返回当前保留的请求字节数。
func (c *Connection) Buffered() int { return c.req.Len() }

// Request 返回当前保留的请求字节的拷贝。
func (c *Connection) Request() []byte {
	b := c.req.Bytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Registry 是 fd -> Connection 的映射，只由事件循环 goroutine 访问，不加锁。
// fd 在表中当且仅当它已注册到 poller 且 socket 未关闭。
type Registry struct {
	conns map[int]*Connection
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[int]*Connection)}
}

func (r *Registry) Insert(c *Connection) error {
	if _, ok := r.conns[c.FD]; ok {
		return fmt.Errorf("%w: fd %d", ErrDuplicateConn, c.FD)
	}
	r.conns[c.FD] = c
	return nil
}

func (r *Registry) Get(fd int) (*Connection, bool) {
	c, ok := r.conns[fd]
	return c, ok
}

// Take 移除并返回 fd 对应的连接。之后任何 poller/socket 操作都不得再使用该 fd。
func (r *Registry) Take(fd int) (*Connection, bool) {
	c, ok := r.conns[fd]
	if ok {
		delete(r.conns, fd)
	}
	return c, ok
}

func (r *Registry) Len() int { return len(r.conns) }

// FDs 返回升序排列的全部 fd。
func (r *Registry) FDs() []int {
	fds := make([]int, 0, len(r.conns))
	for fd := range r.conns {
		fds = append(fds, fd)
	}
	sort.Ints(fds)
	return fds
}

// Check 校验每条连接的阶段与其武装的关注集合一致。
func (r *Registry) Check() error {
	for _, fd := range r.FDs() {
		c := r.conns[fd]
		if c.Phase.Interest() == 0 || c.Phase.Interest() != c.Interest {
			return fmt.Errorf("%w: fd %d phase %s armed %s", ErrInconsistent, fd, c.Phase, c.Interest)
		}
	}
	return nil
}
