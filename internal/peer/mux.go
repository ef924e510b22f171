package peer

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/xtaci/smux"

	corelog "peerbridge/internal/core/log"
)

// ============================================================================
// yamux（tcp / websocket 载体）
// ============================================================================

func yamuxConfig(opts CarrierOptions) *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = io.Discard
	cfg.EnableKeepAlive = true
	cfg.KeepAliveInterval = opts.KeepAlive
	cfg.ConnectionWriteTimeout = 10 * time.Second
	return cfg
}

type yamuxSession struct {
	sess *yamux.Session
}

func newYamuxClient(conn net.Conn, opts CarrierOptions) (Session, error) {
	sess, err := yamux.Client(conn, yamuxConfig(opts))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &yamuxSession{sess: sess}, nil
}

func newYamuxServer(conn net.Conn, opts CarrierOptions) (Session, error) {
	sess, err := yamux.Server(conn, yamuxConfig(opts))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &yamuxSession{sess: sess}, nil
}

func (s *yamuxSession) OpenStream(ctx context.Context) (MuxStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, err := s.sess.OpenStream()
	if err != nil {
		return nil, err
	}
	return &yamuxStream{Stream: st}, nil
}

func (s *yamuxSession) AcceptStream(ctx context.Context) (MuxStream, error) {
	st, err := s.sess.AcceptStreamWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return &yamuxStream{Stream: st}, nil
}

func (s *yamuxSession) RemoteAddr() net.Addr { return s.sess.RemoteAddr() }
func (s *yamuxSession) IsClosed() bool       { return s.sess.IsClosed() }
func (s *yamuxSession) Close() error         { return s.sess.Close() }

// yamux 的 Stream.Close 只发送 FIN，读方向保持到对端关闭
type yamuxStream struct {
	*yamux.Stream
}

func (s *yamuxStream) CloseWrite() error {
	return s.Stream.Close()
}

func (s *yamuxStream) Close() error {
	err := s.Stream.Close()
	s.Stream.SetReadDeadline(time.Now())
	return err
}

// ============================================================================
// smux（kcp 载体）
// ============================================================================

func smuxConfig(opts CarrierOptions) *smux.Config {
	cfg := smux.DefaultConfig()
	cfg.KeepAliveInterval = opts.KeepAlive
	cfg.KeepAliveTimeout = opts.IdleTimeout
	if cfg.KeepAliveTimeout <= cfg.KeepAliveInterval {
		cfg.KeepAliveTimeout = cfg.KeepAliveInterval * 3
	}
	return cfg
}

// smuxSession 每条逻辑流由两条 smux 流组成，各负责一个方向
//
// smux 的 Close 同时结束读写，用两条单向流才能在 CloseWrite 时
// 只让对端读到 EOF。打开方连续打开一对流（id 相差 2），
// 接收方按到达顺序配对。
type smuxSession struct {
	sess *smux.Session

	openMu     sync.Mutex
	acceptOnce sync.Once
	accepted   chan *smuxStream
	loopDone   chan struct{}
}

func newSmuxSession(sess *smux.Session) *smuxSession {
	return &smuxSession{sess: sess, accepted: make(chan *smuxStream), loopDone: make(chan struct{})}
}

func newSmuxClient(conn net.Conn, opts CarrierOptions) (Session, error) {
	sess, err := smux.Client(conn, smuxConfig(opts))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return newSmuxSession(sess), nil
}

func newSmuxServer(conn net.Conn, opts CarrierOptions) (Session, error) {
	sess, err := smux.Server(conn, smuxConfig(opts))
	if err != nil {
		conn.Close()
		return nil, err
	}
	return newSmuxSession(sess), nil
}

func (s *smuxSession) OpenStream(ctx context.Context) (MuxStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.openMu.Lock()
	defer s.openMu.Unlock()

	out, err := s.sess.OpenStream()
	if err != nil {
		return nil, err
	}
	in, err := s.sess.OpenStream()
	if err != nil {
		out.Close()
		return nil, err
	}
	return &smuxStream{out: out, in: in}, nil
}

func (s *smuxSession) AcceptStream(ctx context.Context) (MuxStream, error) {
	s.acceptOnce.Do(func() { go s.pairLoop() })
	select {
	case st := <-s.accepted:
		return st, nil
	case <-s.loopDone:
		return nil, io.ErrClosedPipe
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// pairLoop 对端打开的第一条流是本端的读方向，第二条是写方向
func (s *smuxSession) pairLoop() {
	defer close(s.loopDone)
	var first *smux.Stream
	for {
		st, err := s.sess.AcceptStream()
		if err != nil {
			if first != nil {
				first.Close()
			}
			return
		}
		if first == nil {
			first = st
			continue
		}
		if st.ID() != first.ID()+2 {
			corelog.Warnf("SmuxSession: unpaired stream %d dropped", first.ID())
			first.Close()
			first = st
			continue
		}
		pair := &smuxStream{out: st, in: first}
		first = nil
		select {
		case s.accepted <- pair:
		case <-s.sess.CloseChan():
			pair.Close()
			return
		}
	}
}

func (s *smuxSession) RemoteAddr() net.Addr { return s.sess.RemoteAddr() }
func (s *smuxSession) IsClosed() bool       { return s.sess.IsClosed() }
func (s *smuxSession) Close() error         { return s.sess.Close() }

// smuxStream out 只写，in 只读
type smuxStream struct {
	out *smux.Stream
	in  *smux.Stream
}

func (s *smuxStream) Read(p []byte) (int, error)  { return s.in.Read(p) }
func (s *smuxStream) Write(p []byte) (int, error) { return s.out.Write(p) }

// CloseWrite 结束写方向的流，对端读完缓冲后得到 EOF
func (s *smuxStream) CloseWrite() error {
	if err := s.out.Close(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}

func (s *smuxStream) Close() error {
	err := s.CloseWrite()
	if ierr := s.in.Close(); ierr != nil && !errors.Is(ierr, io.ErrClosedPipe) && err == nil {
		err = ierr
	}
	return err
}

// ============================================================================
// 基于 net.Listener 的入站连接
// ============================================================================

type netMuxListener struct {
	ln     net.Listener
	accept func() (net.Conn, error)
	server func(conn net.Conn) (Session, error)
}

func (l *netMuxListener) Accept(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := l.accept()
	if err != nil {
		return nil, err
	}
	return l.server(conn)
}

func (l *netMuxListener) Addr() net.Addr { return l.ln.Addr() }
func (l *netMuxListener) Close() error   { return l.ln.Close() }
