//go:build !linux && !darwin

package server

func openListener(address string, backlog int) (listener, error) {
	return listener{}, ErrPlatformNotSupported
}

func closeFD(fd int) error { return ErrPlatformNotSupported }

// Serve 在非 Linux/Darwin 平台返回 ErrPlatformNotSupported
func (s *Server) Serve() error { return ErrPlatformNotSupported }
