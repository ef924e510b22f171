package bridge

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/time/rate"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
)

// DatagramWriter 把对端的回应写回本地客户端
type DatagramWriter interface {
	WriteToUDPAddrPort(b []byte, addr netip.AddrPort) (int, error)
}

// SessionOptions 会话表参数
type SessionOptions struct {
	Name          string
	QueueSize     int
	IdleTimeout   time.Duration
	ShutdownGrace time.Duration
	Stats         *TrafficStats
	Limiter       *rate.Limiter
}

// SessionTable 每个监听器一张：客户端地址 → 转发会话
//
// 锁只在查找、插入和删除时持有；向会话队列投递在锁外进行。
type SessionTable struct {
	mu       sync.Mutex
	sessions map[netip.AddrPort]*UDPSession
	closed   bool
	wg       sync.WaitGroup

	transport peer.Transport
	peerID    string
	writer    DatagramWriter
	opts      SessionOptions
}

// NewSessionTable 创建会话表
func NewSessionTable(transport peer.Transport, peerID string, writer DatagramWriter, opts SessionOptions) *SessionTable {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultUDPQueueSize
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	if opts.Stats == nil {
		opts.Stats = &TrafficStats{}
	}
	if opts.Name == "" {
		opts.Name = "SessionTable"
	}
	return &SessionTable{
		sessions:  make(map[netip.AddrPort]*UDPSession),
		transport: transport,
		peerID:    peerID,
		writer:    writer,
		opts:      opts,
	}
}

// Dispatch 把 data 投递到 from 的会话；没有会话或会话已结束时新建一个
//
// 队列满时阻塞，直到有空位、会话结束或 ctx 取消。空数据报被丢弃。
func (t *SessionTable) Dispatch(ctx context.Context, data []byte, from netip.AddrPort) error {
	if len(data) == 0 {
		return nil
	}
	for attempt := 0; attempt < 2; attempt++ {
		s, err := t.getOrCreate(ctx, from)
		if err != nil {
			return err
		}
		switch s.push(ctx, data) {
		case pushOK:
			return nil
		case pushCancelled:
			return ctx.Err()
		case pushGone:
			t.remove(from, s)
		}
	}
	return coreerrors.Newf(coreerrors.CodeStreamClosed, "session for %s ended while dispatching", from)
}

func (t *SessionTable) getOrCreate(ctx context.Context, from netip.AddrPort) (*UDPSession, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, coreerrors.ErrResourceClosed
	}
	if s, ok := t.sessions[from]; ok {
		if !s.isRetired() {
			return s, nil
		}
		delete(t.sessions, from)
	}

	s := newUDPSession(ctx, t, from)
	t.sessions[from] = s
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		s.run()
	}()
	return s, nil
}

// remove 只有表中仍是 s 时才删除
func (t *SessionTable) remove(addr netip.AddrPort, s *UDPSession) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.sessions[addr]; ok && cur == s {
		delete(t.sessions, addr)
	}
}

// Len 当前会话数
func (t *SessionTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Get 查找会话
func (t *SessionTable) Get(addr netip.AddrPort) (*UDPSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[addr]
	return s, ok
}

// Close 取消所有会话并等待结束；之后的 Dispatch 返回 ErrResourceClosed
func (t *SessionTable) Close() {
	t.mu.Lock()
	t.closed = true
	sessions := make([]*UDPSession, 0, len(t.sessions))
	for _, s := range t.sessions {
		sessions = append(sessions, s)
	}
	t.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
	}
	t.wg.Wait()
	corelog.Debugf("%s: all sessions closed", t.opts.Name)
}
