package ring

import "bytes"

// Buffer 是定长环形字节缓冲，只在 poller 线程中使用，不加锁。
// 写满后可选择淘汰最旧的数据（WriteEvict），用于保留请求尾部。

type Buffer struct {
	buf      []byte
	mask     int
	readPos  int
	writePos int
}

// New 返回容量为 2 的幂次的环形缓冲。若 cap 非 2 的幂则向上取整。
func New(capacity int) *Buffer {
	capPow2 := 1
	for capPow2 < capacity {
		capPow2 <<= 1
	}
	return &Buffer{buf: make([]byte, capPow2), mask: capPow2 - 1}
}

func (b *Buffer) Cap() int { return len(b.buf) }

func (b *Buffer) Len() int { return b.writePos - b.readPos }

func (b *Buffer) Free() int { return b.Cap() - b.Len() }

// WriteEvict 写入 p，空间不足时先丢弃最旧的字节，返回被丢弃的字节数。
// p 本身超过容量时只保留其末尾 Cap() 字节。
func (b *Buffer) WriteEvict(p []byte) (evicted int) {
	if len(p) > b.Cap() {
		evicted = b.Len() + len(p) - b.Cap()
		b.Reset()
		p = p[len(p)-b.Cap():]
	} else if over := len(p) - b.Free(); over > 0 {
		evicted = b.Discard(over)
	}
	b.put(p)
	return evicted
}

func (b *Buffer) put(p []byte) {
	n := len(p)
	start := b.writePos & b.mask
	end := start + n
	if end <= len(b.buf) {
		copy(b.buf[start:end], p)
	} else {
		l := len(b.buf) - start
		copy(b.buf[start:], p[:l])
		copy(b.buf[:end-l], p[l:])
	}
	b.writePos += n
}

// Peek 读取最多 n 字节但不前进读指针。
func (b *Buffer) Peek(n int) []byte {
	if n <= 0 {
		return nil
	}
	ln := b.Len()
	if n > ln {
		n = ln
	}
	start := b.readPos & b.mask
	end := start + n
	if end <= len(b.buf) {
		return b.buf[start:end]
	}
	// 分段视图需要拷贝为连续切片
	buf := make([]byte, n)
	l := len(b.buf) - start
	copy(buf[:l], b.buf[start:])
	copy(buf[l:], b.buf[:end-l])
	return buf
}

// Bytes 返回全部已缓冲数据的连续视图。
func (b *Buffer) Bytes() []byte { return b.Peek(b.Len()) }

// ContainsAny 判断已缓冲数据中是否出现任一 sep（可跨越环的回绕点）。
// 回绕时只拷贝一次连续视图。
func (b *Buffer) ContainsAny(seps ...[]byte) bool {
	data := b.Bytes()
	for _, sep := range seps {
		if bytes.Contains(data, sep) {
			return true
		}
	}
	return false
}

// Discard 前进读指针。
func (b *Buffer) Discard(n int) int {
	ln := b.Len()
	if n > ln {
		n = ln
	}
	b.readPos += n
	return n
}

// Reset 清空缓冲但保留底层数组。
func (b *Buffer) Reset() {
	b.readPos = 0
	b.writePos = 0
}
