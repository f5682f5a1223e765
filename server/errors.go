package server

import "errors"

var (
	// ErrServerClosed Serve 因 Close 返回
	ErrServerClosed = errors.New("server: closed")

	// ErrAlreadyServing Serve 被重复调用
	ErrAlreadyServing = errors.New("server: already serving")

	// ErrPlatformNotSupported 非 Linux/Darwin 平台（需要 epoll 或 kqueue）
	ErrPlatformNotSupported = errors.New("server: platform not supported (requires epoll or kqueue)")

	// ErrDuplicateConn 注册表中已存在相同 fd
	ErrDuplicateConn = errors.New("server: duplicate connection fd")

	// ErrInconsistent 连接阶段与 poller 关注集合不一致
	ErrInconsistent = errors.New("server: phase does not match armed interest")

	// ErrInvalidArgument 参数非法
	ErrInvalidArgument = errors.New("server: invalid argument")
)
