//go:build linux || darwin

package netutil

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestResolveSockaddrIPv4(t *testing.T) {
	sa, fam, err := ResolveSockaddr("127.0.0.1:8080")
	require.NoError(t, err)
	require.Equal(t, unix.AF_INET, fam)

	sa4, ok := sa.(*unix.SockaddrInet4)
	require.True(t, ok)
	require.Equal(t, 8080, sa4.Port)
	require.Equal(t, [4]byte{127, 0, 0, 1}, sa4.Addr)
}

func TestResolveSockaddrEmptyHost(t *testing.T) {
	sa, fam, err := ResolveSockaddr(":0")
	require.NoError(t, err)
	require.Equal(t, unix.AF_INET, fam)
	require.Equal(t, [4]byte{}, sa.(*unix.SockaddrInet4).Addr)
}

func TestResolveSockaddrIPv6(t *testing.T) {
	sa, fam, err := ResolveSockaddr("[::1]:9000")
	require.NoError(t, err)
	require.Equal(t, unix.AF_INET6, fam)

	addr, err := TCPAddr(sa)
	require.NoError(t, err)
	require.True(t, addr.IP.Equal(net.IPv6loopback))
	require.Equal(t, 9000, addr.Port)
}

func TestResolveSockaddrBadAddress(t *testing.T) {
	_, _, err := ResolveSockaddr("not-an-address")
	require.Error(t, err)
}

func TestLocalAddrAfterBind(t *testing.T) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	defer unix.Close(fd)

	require.NoError(t, SetReuseAddr(fd, true))
	require.NoError(t, unix.Bind(fd, &unix.SockaddrInet4{Addr: [4]byte{127, 0, 0, 1}}))

	addr, err := LocalAddr(fd)
	require.NoError(t, err)
	require.True(t, addr.IP.Equal(net.IPv4(127, 0, 0, 1)))
	require.NotZero(t, addr.Port)
}

func TestTCPAddrUnsupported(t *testing.T) {
	_, err := TCPAddr(&unix.SockaddrUnix{Name: "/tmp/x"})
	require.ErrorIs(t, err, errUnsupportedSockaddr)
}
