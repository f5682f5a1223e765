//go:build linux

package poller

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

type epollPoller struct {
	efd    int
	wfd    int // eventfd for wakeup
	raw    []unix.EpollEvent
	wmu    sync.Mutex // Wake 可能与 Close 并发
	closed atomic.Bool
}

func New() (Poller, error) {
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, err
	}
	p := &epollPoller{efd: efd, wfd: wfd}
	// 注册 wakeup fd
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(efd)
		return nil, err
	}
	return p, nil
}

// 水平触发；oneshot 对应 EPOLLONESHOT
func epollFlags(in Interest, oneshot bool) uint32 {
	var flag uint32 = unix.EPOLLRDHUP
	if in&Readable != 0 {
		flag |= unix.EPOLLIN
	}
	if in&Writable != 0 {
		flag |= unix.EPOLLOUT
	}
	if oneshot {
		flag |= unix.EPOLLONESHOT
	}
	return flag
}

func (p *epollPoller) Register(fd FD, in Interest, oneshot bool) error {
	ev := &unix.EpollEvent{Events: epollFlags(in, oneshot), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) Mod(fd FD, in Interest, oneshot bool) error {
	ev := &unix.EpollEvent{Events: epollFlags(in, oneshot), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) Unregister(fd FD) error {
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wake() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.closed.Load() {
		return ErrClosed
	}
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wfd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *epollPoller) Close() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if !p.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	unix.Close(p.wfd)
	return unix.Close(p.efd)
}

func (p *epollPoller) Wait(events []Event, timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]
	for {
		n, err := unix.EpollWait(p.efd, raw, msec(timeout))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		woken := false
		out := 0
		for i := 0; i < n; i++ {
			ev := raw[i]
			fd := int(ev.Fd)
			if fd == p.wfd {
				// 清空 eventfd
				var efdBuf [8]byte
				_, _ = unix.Read(p.wfd, efdBuf[:])
				woken = true
				continue
			}
			e := Event{FD: fd}
			if ev.Events&unix.EPOLLIN != 0 {
				e.Ready |= Readable
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				e.Ready |= Writable
			}
			if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
				e.Hangup = true
			}
			events[out] = e
			out++
		}
		if out == 0 && woken {
			return 0, ErrWoken
		}
		if out == 0 && timeout < 0 {
			continue
		}
		return out, nil
	}
}
