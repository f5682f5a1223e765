package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/legamerdc/epollhttp/poller"
)

// listener 是进程生命周期内唯一的监听 socket
type listener struct {
	fd      int
	addr    *net.TCPAddr
	backlog int
}

const (
	stateIdle = iota
	stateServing
	stateClosed
)

// Server 是单线程的就绪驱动服务端：一个 poller、一个监听 socket、一张连接注册表。
type Server struct {
	cfg   Config
	log   logrus.FieldLogger
	ln    listener
	pl    poller.Poller
	conns *Registry
	stats counters

	mu      sync.Mutex
	state   int
	closing atomic.Bool
}

// New 创建 poller 与监听 socket，并以非 oneshot 的读关注注册监听 fd。
// 任何一步失败都返回错误并释放已创建的资源。
func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	pl, err := poller.New()
	if err != nil {
		if errors.Is(err, poller.ErrPlatformNotSupported) {
			return nil, ErrPlatformNotSupported
		}
		return nil, fmt.Errorf("server: create poller: %w", err)
	}
	ln, err := openListener(cfg.Address, cfg.Backlog)
	if err != nil {
		pl.Close()
		return nil, fmt.Errorf("server: listen %s: %w", cfg.Address, err)
	}
	// 监听 fd 需要持续收到新连接通知，不使用 oneshot
	if err := pl.Register(ln.fd, poller.Readable, false); err != nil {
		closeFD(ln.fd)
		pl.Close()
		return nil, fmt.Errorf("server: register listener: %w", err)
	}
	s := &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		ln:    ln,
		pl:    pl,
		conns: NewRegistry(),
	}
	s.log.WithFields(logrus.Fields{"addr": ln.addr, "fd": ln.fd, "backlog": ln.backlog}).Info("listening")
	return s, nil
}

// Addr 返回实际绑定的地址。
func (s *Server) Addr() *net.TCPAddr { return s.ln.addr }

// Stats 返回计数器快照，可在任意 goroutine 调用。
func (s *Server) Stats() Stats { return s.stats.snapshot() }

// Close 立即停止服务：唤醒事件循环，由其关闭全部连接、监听 socket 与 poller，
// 不等待进行中的请求完成。Serve 随后返回 ErrServerClosed。
// 从未 Serve 过的 Server 直接释放资源。
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case stateClosed:
		return ErrServerClosed
	case stateServing:
		s.state = stateClosed
		s.closing.Store(true)
		if err := s.pl.Wake(); err != nil && !errors.Is(err, poller.ErrClosed) {
			return err
		}
		return nil
	}
	s.state = stateClosed
	s.release()
	return nil
}

func (s *Server) release() {
	if err := closeFD(s.ln.fd); err != nil {
		s.log.WithField("err", err).Warn("close listener")
	}
	_ = s.pl.Close()
}
