package peer

import (
	"context"
	"io"
	"sync"
)

// Transport 向对端打开带协议头的双向流
type Transport interface {
	OpenStream(ctx context.Context, header ProtocolHeader, target string) (*Stream, error)
}

// SendHalf 流的发送方向
type SendHalf interface {
	io.Writer
	// Finish 半关闭：对端读到 EOF，接收方向不受影响
	Finish() error
	// Close 关闭整条流
	Close() error
}

// Stream 一条双向流，Send 和 Recv 可以交给不同的 goroutine
type Stream struct {
	Send SendHalf
	Recv io.ReadCloser
}

// Close 关闭整条流
func (s *Stream) Close() error {
	err := s.Send.Close()
	if rerr := s.Recv.Close(); err == nil {
		err = rerr
	}
	return err
}

// NewStream 把 MuxStream 拆成发送和接收两半
func NewStream(ms MuxStream) *Stream {
	h := &streamHalves{ms: ms}
	return &Stream{Send: (*sendHalf)(h), Recv: (*recvHalf)(h)}
}

type streamHalves struct {
	ms        MuxStream
	closeOnce sync.Once
	closeErr  error
}

func (h *streamHalves) close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.ms.Close()
	})
	return h.closeErr
}

type sendHalf streamHalves

func (s *sendHalf) Write(p []byte) (int, error) { return s.ms.Write(p) }
func (s *sendHalf) Finish() error               { return s.ms.CloseWrite() }
func (s *sendHalf) Close() error                { return (*streamHalves)(s).close() }

type recvHalf streamHalves

func (r *recvHalf) Read(p []byte) (int, error) { return r.ms.Read(p) }
func (r *recvHalf) Close() error               { return (*streamHalves)(r).close() }
