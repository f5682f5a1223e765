package server

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Config 为服务端配置；零值字段在 New 中以 DefaultConfig 的值补齐。
type Config struct {
	Address         string             // 监听地址，如 "127.0.0.1:8080"
	Backlog         int                // listen backlog
	ReadChunkSize   int                // 单次 read 的字节数
	MaxRequestBytes int                // 每连接请求缓冲上限（向上取 2 的幂）
	MaxEvents       int                // 单次 Wait 最多返回的事件数
	Logger          logrus.FieldLogger // 诊断日志，nil 时使用 logrus 标准 logger
}

// DefaultConfig 返回回环 8080 端口、backlog 1024 的配置。
func DefaultConfig() Config {
	return Config{
		Address:         "127.0.0.1:8080",
		Backlog:         1024,
		ReadChunkSize:   64,
		MaxRequestBytes: 4 << 10,
		MaxEvents:       1024,
	}
}

func (c *Config) validate() error {
	def := DefaultConfig()
	if c.Address == "" {
		c.Address = def.Address
	}
	if c.Backlog <= 0 {
		c.Backlog = def.Backlog
	}
	if c.ReadChunkSize <= 0 {
		c.ReadChunkSize = def.ReadChunkSize
	}
	if c.MaxRequestBytes <= 0 {
		c.MaxRequestBytes = def.MaxRequestBytes
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = def.MaxEvents
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	// 淘汰旧数据时至少保留终止序列长度减一的尾部字节
	if need := c.ReadChunkSize + len(crlfTerminator) - 1; c.MaxRequestBytes < need {
		return fmt.Errorf("%w: MaxRequestBytes %d < ReadChunkSize+%d", ErrInvalidArgument, c.MaxRequestBytes, len(crlfTerminator)-1)
	}
	return nil
}
