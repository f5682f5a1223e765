//go:build linux || darwin

package server

import (
	"golang.org/x/sys/unix"

	"github.com/legamerdc/epollhttp/internal/netutil"
)

// openListener 创建非阻塞的监听 socket 并开始 listen。
func openListener(address string, backlog int) (listener, error) {
	sa, fam, err := netutil.ResolveSockaddr(address)
	if err != nil {
		return listener{}, err
	}
	fd, err := unix.Socket(fam, unix.SOCK_STREAM, 0)
	if err != nil {
		return listener{}, err
	}
	unix.CloseOnExec(fd)
	_ = netutil.SetReuseAddr(fd, true)
	if err := netutil.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return listener{}, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return listener{}, err
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return listener{}, err
	}
	addr, err := netutil.LocalAddr(fd)
	if err != nil {
		unix.Close(fd)
		return listener{}, err
	}
	return listener{fd: fd, addr: addr, backlog: backlog}, nil
}

func closeFD(fd int) error { return unix.Close(fd) }
