// Package expose 对端侧：接收入站流并转发到本地服务
//
// tcp / http 流转发到本地 TCP 目标，udp 流按分帧数据报转发到本地 UDP 目标。
package expose

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
	"peerbridge/internal/utils/iocopy"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultDialTimeout = 10 * time.Second
	DefaultUDPIdle     = 2 * time.Minute
)

// Config 本地目标
type Config struct {
	TCPTarget   string
	UDPTarget   string
	DialTimeout time.Duration
	// UDPIdle 本地 UDP 目标无回包超过此时间后结束会话
	UDPIdle time.Duration
}

// Handler 实现 peer.StreamHandler
type Handler struct {
	cfg Config
}

// NewHandler 创建入站流处理器，至少需要一个目标
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.TCPTarget == "" && cfg.UDPTarget == "" {
		return nil, coreerrors.New(coreerrors.CodeConfigError, "expose needs a tcp or udp target")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.UDPIdle <= 0 {
		cfg.UDPIdle = DefaultUDPIdle
	}
	return &Handler{cfg: cfg}, nil
}

// HandleStream 按协议头分派
func (h *Handler) HandleStream(ctx context.Context, in *peer.InboundStream) {
	proto := in.Preface.Header.Protocol
	prefix := "Expose[" + proto.String() + "]"

	var err error
	switch proto {
	case peer.ProtocolTCP, peer.ProtocolHTTP:
		err = h.forwardTCP(ctx, in, prefix)
	case peer.ProtocolUDP:
		err = h.forwardUDP(ctx, in, prefix)
	case peer.ProtocolPing:
		in.Send.Finish()
	default:
		err = coreerrors.Newf(coreerrors.CodeProtocolError, "unsupported protocol %s", proto)
	}
	if err != nil {
		corelog.Warnf("%s: stream from %s: %v", prefix, in.Preface.Source, err)
	}
}

func (h *Handler) forwardTCP(ctx context.Context, in *peer.InboundStream, prefix string) error {
	if h.cfg.TCPTarget == "" {
		return coreerrors.New(coreerrors.CodeConfigError, "no tcp target configured")
	}
	dialer := net.Dialer{Timeout: h.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", h.cfg.TCPTarget)
	if err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeNetworkError, "dial %s", h.cfg.TCPTarget)
	}

	remote, err := iocopy.NewReadWriteCloser(in.Recv, in.Send, in.Stream.Close, in.Send.Finish)
	if err != nil {
		conn.Close()
		return err
	}
	result := iocopy.Bidirectional(conn, remote, &iocopy.Options{Context: ctx, LogPrefix: prefix})
	corelog.Debugf("%s: %s done, sent=%d received=%d", prefix, in.Preface.Source, result.BytesSent, result.BytesReceived)
	return result.Err()
}

// forwardUDP 每条 udp 流对应一个到本地目标的已连接 UDP socket
func (h *Handler) forwardUDP(ctx context.Context, in *peer.InboundStream, prefix string) error {
	if h.cfg.UDPTarget == "" {
		return coreerrors.New(coreerrors.CodeConfigError, "no udp target configured")
	}
	dialer := net.Dialer{Timeout: h.cfg.DialTimeout}
	conn, err := dialer.DialContext(ctx, "udp", h.cfg.UDPTarget)
	if err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeNetworkError, "dial %s", h.cfg.UDPTarget)
	}
	defer conn.Close()

	g, gctx := errgroup.WithContext(ctx)
	go func() {
		<-gctx.Done()
		conn.Close()
		in.Stream.Close()
	}()

	// 对端 -> 本地
	g.Go(func() error {
		for {
			p, err := peer.ReadFramedDatagram(in.Recv)
			if err != nil {
				return err
			}
			if _, err := conn.Write(p); err != nil {
				return err
			}
		}
	})

	// 本地 -> 对端
	g.Go(func() error {
		buf := make([]byte, peer.MaxDatagramSize)
		for {
			conn.SetReadDeadline(time.Now().Add(h.cfg.UDPIdle))
			n, err := conn.Read(buf)
			if err != nil {
				var ne net.Error
				if errors.As(err, &ne) && ne.Timeout() {
					corelog.Debugf("%s: %s idle, closing", prefix, in.Preface.Source)
					return io.EOF
				}
				return err
			}
			if n == 0 {
				continue
			}
			if err := peer.WriteFramedDatagram(in.Send, buf[:n]); err != nil {
				return err
			}
		}
	})

	err = g.Wait()
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) || ctx.Err() != nil {
		return nil
	}
	return err
}

// Serve 在 ln 上接收入站连接直到 ctx 取消
func Serve(ctx context.Context, ln peer.MuxListener, h *Handler) error {
	corelog.Infof("Expose[%s]: accepting, tcp=%q udp=%q", ln.Addr(), h.cfg.TCPTarget, h.cfg.UDPTarget)
	return peer.Serve(ctx, ln, h)
}
