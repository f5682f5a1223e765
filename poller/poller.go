package poller

import (
	"errors"
	"strings"
	"time"
)

// FD 表示文件描述符。
type FD = int

// Interest 是注册到 poller 的关注事件集合。
type Interest uint8

const (
	Readable Interest = 1 << iota
	Writable
)

func (in Interest) String() string {
	var parts []string
	if in&Readable != 0 {
		parts = append(parts, "r")
	}
	if in&Writable != 0 {
		parts = append(parts, "w")
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, "|")
}

// Event 是 Wait 返回的一条就绪事件。
type Event struct {
	FD     FD
	Ready  Interest
	Hangup bool // 对端挂断或 socket 出错
}

var (
	// ErrWoken 表示 Wait 仅因 Wake 返回。
	ErrWoken = errors.New("poller: woken")

	// ErrClosed poller 已关闭
	ErrClosed = errors.New("poller: closed")

	// ErrPlatformNotSupported 当前平台没有 epoll/kqueue
	ErrPlatformNotSupported = errors.New("poller: platform not supported (requires epoll or kqueue)")
)

// Poller 是就绪通知设施的薄封装。
// 除 Wake 外，所有方法只能在调用 Wait 的同一 goroutine 中使用。
//
// oneshot 注册在一次通知后自动解除武装，直到 Mod 重新武装。
// timeout < 0 表示无限等待。

type Poller interface {
	Register(fd FD, in Interest, oneshot bool) error
	Mod(fd FD, in Interest, oneshot bool) error
	Unregister(fd FD) error
	Wait(events []Event, timeout time.Duration) (int, error)
	Wake() error
	Close() error
}

func msec(timeout time.Duration) int {
	if timeout < 0 {
		return -1
	}
	return int(timeout / time.Millisecond)
}
