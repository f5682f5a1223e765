package server

import "github.com/legamerdc/epollhttp/internal/ring"

// ResponsePayload 是每条连接收到的固定应答，与请求内容无关。
// 行分隔为裸 LF，Connection 头的值为 "clone"：这是对外约定的一部分，保持原样。
const ResponsePayload = "HTTP/1.1 200 Ok\nConnection: clone\nContent-Type: text/plain\n\nha?\n\n"

var response = []byte(ResponsePayload)

// 请求头结束标记（简化的 HTTP 头终止检测）
var (
	lfTerminator   = []byte("\n\n")
	crlfTerminator = []byte("\r\n\r\n")
)

func hasTerminator(req *ring.Buffer) bool {
	return req.ContainsAny(lfTerminator, crlfTerminator)
}
