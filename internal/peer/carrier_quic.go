//go:build !no_quic

package peer

import (
	"context"
	"net"

	"github.com/quic-go/quic-go"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
)

func init() {
	RegisterCarrier("quic", 20, func(opts CarrierOptions) Carrier {
		return &quicCarrier{opts: opts}
	})
}

// quicCarrier 直接使用 QUIC 原生流
type quicCarrier struct {
	opts CarrierOptions
}

func (c *quicCarrier) Name() string { return "quic" }

func (c *quicCarrier) config() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  c.opts.IdleTimeout,
		KeepAlivePeriod: c.opts.KeepAlive,
	}
}

func (c *quicCarrier) Dial(ctx context.Context, address string) (Session, error) {
	conn, err := quic.DialAddr(ctx, address, clientTLSConfig(c.opts), c.config())
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeNetworkError, "dial quic %s", address)
	}
	corelog.Debugf("QUICCarrier: connected to %s", address)
	return &quicSession{conn: conn}, nil
}

func (c *quicCarrier) Listen(_ context.Context, address string) (MuxListener, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(address, tlsConf, c.config())
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeBindFailed, "listen quic %s", address)
	}
	return &quicListener{ln: ln}, nil
}

type quicListener struct {
	ln *quic.Listener
}

func (l *quicListener) Accept(ctx context.Context) (Session, error) {
	conn, err := l.ln.Accept(ctx)
	if err != nil {
		return nil, err
	}
	return &quicSession{conn: conn}, nil
}

func (l *quicListener) Addr() net.Addr { return l.ln.Addr() }
func (l *quicListener) Close() error   { return l.ln.Close() }

type quicSession struct {
	conn *quic.Conn
}

func (s *quicSession) OpenStream(ctx context.Context) (MuxStream, error) {
	st, err := s.conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, err
	}
	return &quicStream{Stream: st}, nil
}

func (s *quicSession) AcceptStream(ctx context.Context) (MuxStream, error) {
	st, err := s.conn.AcceptStream(ctx)
	if err != nil {
		return nil, err
	}
	return &quicStream{Stream: st}, nil
}

func (s *quicSession) RemoteAddr() net.Addr { return s.conn.RemoteAddr() }
func (s *quicSession) IsClosed() bool       { return s.conn.Context().Err() != nil }
func (s *quicSession) Close() error         { return s.conn.CloseWithError(0, "normal closure") }

// QUIC 流的 Close 只关闭发送方向
type quicStream struct {
	*quic.Stream
}

func (s *quicStream) CloseWrite() error {
	return s.Stream.Close()
}

func (s *quicStream) Close() error {
	s.Stream.CancelRead(0)
	return s.Stream.Close()
}
