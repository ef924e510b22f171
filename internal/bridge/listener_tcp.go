package bridge

import (
	"context"
	"net"

	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
)

// TCPBridge 每个本地 TCP 连接转发为一条 TCP 协议流
type TCPBridge struct {
	*bridgeBase
}

// NewTCPBridge 创建 TCP 桥接，cfg.PeerID 为目标对端
func NewTCPBridge(transport peer.Transport, cfg Config) *TCPBridge {
	return &TCPBridge{bridgeBase: newBridgeBase("TCPBridge", KindTCP, transport, cfg)}
}

// Start 绑定 127.0.0.1:Port 并在后台接收连接
func (b *TCPBridge) Start(ctx context.Context) (uint16, error) {
	ln, err := net.Listen("tcp4", loopbackAddr(b.cfg.Port))
	if err != nil {
		return 0, bindError("TCP", b.cfg.Port, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	if err := b.begin(ctx, port, ln.Close); err != nil {
		ln.Close()
		return 0, err
	}

	corelog.Infof("TCPBridge[%d]: listening on %s, forwarding to %s", port, ln.Addr(), b.cfg.PeerID)
	go b.serve(ln)
	return uint16(port), nil
}

func (b *TCPBridge) serve(ln net.Listener) {
	defer b.finish()

	ctx := b.Ctx()
	conns := make(chan net.Conn)
	fatal := make(chan error, 1)
	go acceptInto(ctx, b.GetName(), ln.Accept, conns, fatal, func(c net.Conn) { c.Close() })

	for {
		select {
		case <-ctx.Done():
			corelog.Infof("TCPBridge[%d]: stopping", b.Port())
			return
		case err := <-fatal:
			if ctx.Err() == nil {
				corelog.Errorf("TCPBridge[%d]: listener closed: %v", b.Port(), err)
			}
			return
		case conn := <-conns:
			b.handle(ctx, conn)
		}
	}
}

func (b *TCPBridge) handle(ctx context.Context, conn net.Conn) {
	corelog.Debugf("TCPBridge[%d]: got TCP connection from %s", b.Port(), conn.RemoteAddr())
	b.spawn(func() {
		forwardTCP(ctx, b.bridgeBase, conn)
	})
}

// forwardTCP TCP 与 TCP+UDP 桥接共用的连接转发
func forwardTCP(ctx context.Context, b *bridgeBase, conn net.Conn) {
	b.stats.begin()
	defer b.stats.end()

	local := newControlledConn(ctx, conn, b.limiter, b.stats, directionLocal)
	err := ForwardStream(ctx, b.transport, peer.ProtocolTCP, local, b.cfg.PeerID, &ForwardOptions{
		ShutdownGrace: b.cfg.ShutdownGrace,
		LogPrefix:     b.GetName(),
	})
	if err != nil {
		corelog.Errorf("%s: failed to proxy tcp: %v", b.GetName(), err)
	}
}
