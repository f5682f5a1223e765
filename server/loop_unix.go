//go:build linux || darwin

package server

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/legamerdc/epollhttp/poller"
)

// Serve 在当前 goroutine 上运行事件循环，直到致命错误或 Close。
// 唯一的挂起点是 poller 的无限等待；注册表只在此 goroutine 中访问。
// 返回前关闭全部连接、监听 socket 与 poller。
func (s *Server) Serve() error {
	s.mu.Lock()
	switch s.state {
	case stateServing:
		s.mu.Unlock()
		return ErrAlreadyServing
	case stateClosed:
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.state = stateServing
	s.mu.Unlock()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	m := newMachine(s.pl, s.conns, s.cfg, &s.stats)
	err := s.loop(m)

	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()
	m.closeAll()
	s.release()

	if !errors.Is(err, ErrServerClosed) {
		s.log.WithField("err", err).Error("event loop stopped")
	}
	return err
}

func (s *Server) loop(m *machine) error {
	events := make([]poller.Event, s.cfg.MaxEvents)
	for {
		if s.closing.Load() {
			return ErrServerClosed
		}
		// 队列中还有被重新排队的连接时不阻塞，只收集新到的事件
		timeout := time.Duration(-1)
		if m.ready.Length() > 0 {
			timeout = 0
		}
		n, err := s.pl.Wait(events, timeout)
		if err != nil {
			if errors.Is(err, poller.ErrWoken) {
				continue
			}
			return fmt.Errorf("server: wait: %w", err)
		}
		s.log.WithFields(logrus.Fields{"n": n, "queued": m.ready.Length()}).Debug("wait")
		for i := 0; i < n; i++ {
			m.ready.Add(events[i])
		}
		// 只处理本轮开始时已在队列中的事件，本轮重新排队的留到下一次 Wait 之后
		for k := m.ready.Length(); k > 0; k-- {
			ev := m.ready.Remove().(poller.Event)
			if err := s.dispatch(m, ev); err != nil {
				return err
			}
		}
	}
}

func (s *Server) dispatch(m *machine, ev poller.Event) error {
	if ev.FD == s.ln.fd {
		return m.accept(s.ln.fd)
	}
	s.log.WithFields(logrus.Fields{"fd": ev.FD, "ready": ev.Ready, "hangup": ev.Hangup}).Debug("event")
	return m.advance(ev)
}
