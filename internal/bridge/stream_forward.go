package bridge

import (
	"context"
	"net"
	"time"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
	"peerbridge/internal/utils/iocopy"
)

// ForwardOptions 流转发参数
type ForwardOptions struct {
	// ShutdownGrace 取消后等待进行中读写的时间
	ShutdownGrace time.Duration
	LogPrefix     string
}

// ForwardStream 为 conn 打开一条带协议头的流，双向拷贝直到任一方向结束或 ctx 取消
//
// 本地读到 EOF 时对流半关闭，对端结束时对本地半关闭；ctx 取消时先半关闭流，
// 让当前读写在 ShutdownGrace 内完成。conn 在返回前被关闭。
func ForwardStream(ctx context.Context, t peer.Transport, proto peer.Protocol, conn net.Conn, peerID string, opts *ForwardOptions) error {
	if opts == nil {
		opts = &ForwardOptions{}
	}
	prefix := opts.LogPrefix
	if prefix == "" {
		prefix = "ForwardStream[" + proto.String() + "]"
	}

	st, err := t.OpenStream(ctx, peer.ProtocolHeader{Protocol: proto}, peerID)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		return coreerrors.Wrapf(err, coreerrors.CodeTransportError, "open %s stream to %s", proto, peerID)
	}
	corelog.Debugf("%s: forwarding %s to %s", prefix, conn.RemoteAddr(), peerID)

	remote, err := iocopy.NewReadWriteCloser(st.Recv, st.Send, st.Close, st.Send.Finish)
	if err != nil {
		conn.Close()
		st.Close()
		return err
	}

	result := iocopy.Bidirectional(conn, remote, &iocopy.Options{
		Context:       ctx,
		ShutdownGrace: opts.ShutdownGrace,
		LogPrefix:     prefix,
	})
	corelog.Debugf("%s: done, sent=%d received=%d", prefix, result.BytesSent, result.BytesReceived)
	if err := result.Err(); err != nil {
		return coreerrors.Wrap(err, coreerrors.CodeStreamClosed, "forwarding interrupted")
	}
	return nil
}

// streamConn 把 peer.Stream 适配为 net.Conn，供 http.Transport 使用
type streamConn struct {
	*peer.Stream
	peerID string
}

func newStreamConn(st *peer.Stream, peerID string) *streamConn {
	return &streamConn{Stream: st, peerID: peerID}
}

func (c *streamConn) Read(p []byte) (int, error)  { return c.Recv.Read(p) }
func (c *streamConn) Write(p []byte) (int, error) { return c.Send.Write(p) }
func (c *streamConn) CloseWrite() error           { return c.Send.Finish() }

func (c *streamConn) LocalAddr() net.Addr  { return peerAddr("local") }
func (c *streamConn) RemoteAddr() net.Addr { return peerAddr(c.peerID) }

// 截止时间由 http.Transport 的超时和 context 控制
func (c *streamConn) SetDeadline(time.Time) error      { return nil }
func (c *streamConn) SetReadDeadline(time.Time) error  { return nil }
func (c *streamConn) SetWriteDeadline(time.Time) error { return nil }

type peerAddr string

func (a peerAddr) Network() string { return "peer" }
func (a peerAddr) String() string  { return string(a) }
