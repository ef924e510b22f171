package testutils

import (
	"bytes"
	"context"
	"io"
	"sync"
	"sync/atomic"

	"peerbridge/internal/peer"
)

// MemoryTransport 进程内的对端传输：每条流由两个 io.Pipe 组成，
// 远端由 handler 在独立 goroutine 中处理
type MemoryTransport struct {
	ID      string
	handler peer.StreamHandler

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	opened  []peer.Preface
	openErr error
	streams map[*pipeStream]struct{}
	active  atomic.Int32
}

// NewMemoryTransport 创建内存传输；handler 为 nil 时使用 EchoHandler
func NewMemoryTransport(handler peer.StreamHandler) *MemoryTransport {
	if handler == nil {
		handler = EchoHandler()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &MemoryTransport{
		ID:      peer.NewIdentity(),
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
		streams: make(map[*pipeStream]struct{}),
	}
}

// SetOpenError 之后的 OpenStream 都返回 err（nil 恢复正常）
func (m *MemoryTransport) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openErr = err
}

// Opened 已打开的流前导（按打开顺序）
func (m *MemoryTransport) Opened() []peer.Preface {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]peer.Preface, len(m.opened))
	copy(out, m.opened)
	return out
}

// OpenedCount 已打开的流数量
func (m *MemoryTransport) OpenedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.opened)
}

// Active 远端 handler 尚未返回的流数量
func (m *MemoryTransport) Active() int {
	return int(m.active.Load())
}

// OpenStream 实现 peer.Transport
func (m *MemoryTransport) OpenStream(ctx context.Context, header peer.ProtocolHeader, target string) (*peer.Stream, error) {
	if err := peer.ValidateID(target); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.openErr != nil {
		err := m.openErr
		m.mu.Unlock()
		return nil, err
	}
	preface := peer.Preface{Header: header, Source: m.ID, Target: target}
	local, remote := newPipeStreamPair()
	m.opened = append(m.opened, preface)
	m.streams[remote] = struct{}{}
	m.mu.Unlock()

	m.active.Add(1)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.active.Add(-1)
		defer func() {
			remote.Close()
			m.mu.Lock()
			delete(m.streams, remote)
			m.mu.Unlock()
		}()
		m.handler.HandleStream(m.ctx, &peer.InboundStream{Preface: preface, Stream: peer.NewStream(remote)})
	}()
	return peer.NewStream(local), nil
}

// Close 取消所有远端 handler、关闭远端流并等待返回
func (m *MemoryTransport) Close() error {
	m.cancel()
	m.mu.Lock()
	for s := range m.streams {
		s.Close()
	}
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

// pipeStream 用两个 io.Pipe 实现带半关闭的 peer.MuxStream
type pipeStream struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newPipeStreamPair() (*pipeStream, *pipeStream) {
	r1, w1 := io.Pipe()
	r2, w2 := io.Pipe()
	return &pipeStream{r: r2, w: w1}, &pipeStream{r: r1, w: w2}
}

func (p *pipeStream) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipeStream) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipeStream) CloseWrite() error           { return p.w.Close() }

func (p *pipeStream) Close() error {
	p.w.Close()
	return p.r.CloseWithError(io.ErrClosedPipe)
}

// EchoHandler TCP/HTTP/ping 流原样回写后半关闭；UDP 流逐帧回写
func EchoHandler() peer.StreamHandler {
	return peer.StreamHandlerFunc(func(ctx context.Context, in *peer.InboundStream) {
		if in.Preface.Header.Protocol == peer.ProtocolUDP {
			for {
				p, err := peer.ReadFramedDatagram(in.Recv)
				if err != nil {
					return
				}
				if err := peer.WriteFramedDatagram(in.Send, p); err != nil {
					return
				}
			}
		}
		io.Copy(in.Send, in.Recv)
		in.Send.Finish()
	})
}

// UpperEchoHandler 与 EchoHandler 相同，但 UDP 数据报转为大写
func UpperEchoHandler() peer.StreamHandler {
	return peer.StreamHandlerFunc(func(ctx context.Context, in *peer.InboundStream) {
		for {
			p, err := peer.ReadFramedDatagram(in.Recv)
			if err != nil {
				return
			}
			if err := peer.WriteFramedDatagram(in.Send, bytes.ToUpper(p)); err != nil {
				return
			}
		}
	})
}
