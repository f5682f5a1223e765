package client

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/jpillora/backoff"
)

// DefaultRequest 是最小的请求：请求行加空行。
const DefaultRequest = "GET / HTTP/1.1\r\n\r\n"

// MaxAttempts 是 Dial 的最大尝试次数。
const MaxAttempts = 8

// Client 是一条阻塞连接：写请求，读应答直到服务端关闭连接。
type Client struct {
	conn net.Conn
}

// Dial 连接 address；服务端尚未 listen 时按指数退避重试。
// ctx 的截止时间同时作为该连接读写的截止时间。
func Dial(ctx context.Context, network, address string) (*Client, error) {
	b := &backoff.Backoff{
		Factor: 1.5,
		Jitter: true,
		Min:    10 * time.Millisecond,
		Max:    500 * time.Millisecond,
	}
	var d net.Dialer
	var lastErr error
	for i := 0; i < MaxAttempts; i++ {
		nc, err := d.DialContext(ctx, network, address)
		if err == nil {
			if dl, ok := ctx.Deadline(); ok {
				_ = nc.SetDeadline(dl)
			}
			return &Client{conn: nc}, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.Duration()):
		}
	}
	return nil, lastErr
}

func (c *Client) Write(p []byte) error {
	_, err := c.conn.Write(p)
	return err
}

// ReadAll 读取直到对端关闭连接（EOF）。
func (c *Client) ReadAll() ([]byte, error) {
	return io.ReadAll(c.conn)
}

// CloseWrite 半关闭写方向。
func (c *Client) CloseWrite() error {
	if tc, ok := c.conn.(*net.TCPConn); ok {
		return tc.CloseWrite()
	}
	return errors.New("client: not a tcp connection")
}

func (c *Client) LocalAddr() net.Addr { return c.conn.LocalAddr() }

func (c *Client) Close() error { return c.conn.Close() }

// Get 发送 DefaultRequest 并返回完整应答。
func Get(ctx context.Context, address string) ([]byte, error) {
	c, err := Dial(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	if err := c.Write([]byte(DefaultRequest)); err != nil {
		return nil, err
	}
	return c.ReadAll()
}
