//go:build darwin

package poller

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq     int
	wfd    int // 写端，用于唤醒
	rfd    int // 读端，注册到 kqueue
	raw    []unix.Kevent_t
	wmu    sync.Mutex
	closed atomic.Bool
}

func New() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	// 使用管道作为唤醒
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		unix.Close(kq)
		return nil, err
	}
	rfd, wfd := p[0], p[1]
	_ = unix.SetNonblock(rfd, true)
	_ = unix.SetNonblock(wfd, true)
	unix.CloseOnExec(rfd)
	unix.CloseOnExec(wfd)
	unix.CloseOnExec(kq)
	// 注册读事件
	kev := unix.Kevent_t{
		Ident:  uint64(rfd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	_, err = unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil)
	if err != nil {
		unix.Close(rfd)
		unix.Close(wfd)
		unix.Close(kq)
		return nil, err
	}
	return &kqueuePoller{kq: kq, wfd: wfd, rfd: rfd}, nil
}

// apply 逐条提交变更；删除一个不存在的过滤器（oneshot 触发后已被内核移除）不算错误。
func (p *kqueuePoller) apply(changes []unix.Kevent_t) error {
	for i := range changes {
		_, err := unix.Kevent(p.kq, changes[i:i+1], nil, nil)
		if err == nil {
			continue
		}
		if changes[i].Flags&unix.EV_DELETE != 0 && err == unix.ENOENT {
			continue
		}
		return err
	}
	return nil
}

func kevents(fd FD, in Interest, oneshot bool) []unix.Kevent_t {
	var flags uint16 = unix.EV_ADD
	if oneshot {
		flags |= unix.EV_ONESHOT
	}
	var rf, wf uint16 = unix.EV_DELETE, unix.EV_DELETE
	if in&Readable != 0 {
		rf = flags
	}
	if in&Writable != 0 {
		wf = flags
	}
	return []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: rf},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: wf},
	}
}

func (p *kqueuePoller) Register(fd FD, in Interest, oneshot bool) error {
	return p.apply(kevents(fd, in, oneshot))
}

func (p *kqueuePoller) Mod(fd FD, in Interest, oneshot bool) error {
	// 在 kqueue 中，Mod 等价为删除不需要的再添加
	return p.apply(kevents(fd, in, oneshot))
}

func (p *kqueuePoller) Unregister(fd FD) error {
	return p.apply(kevents(fd, 0, false))
}

func (p *kqueuePoller) Wake() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if p.closed.Load() {
		return ErrClosed
	}
	var b [1]byte
	b[0] = 1
	_, err := unix.Write(p.wfd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *kqueuePoller) Close() error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if !p.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	unix.Close(p.rfd)
	unix.Close(p.wfd)
	return unix.Close(p.kq)
}

func (p *kqueuePoller) Wait(events []Event, timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if cap(p.raw) < len(events) {
		p.raw = make([]unix.Kevent_t, len(events))
	}
	raw := p.raw[:len(events)]
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	buf := make([]byte, 16)
	for {
		n, err := unix.Kevent(p.kq, nil, raw, ts)
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
			fd := int(ev.Ident)
			if fd == p.rfd {
				for {
					if _, rerr := unix.Read(p.rfd, buf); rerr != nil {
						break
					}
				}
				woken = true
				continue
			}
			e := Event{FD: fd}
			switch ev.Filter {
			case unix.EVFILT_READ:
				e.Ready = Readable
			case unix.EVFILT_WRITE:
				e.Ready = Writable
			}
			if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
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
