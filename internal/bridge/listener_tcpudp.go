package bridge

import (
	"context"
	"net"

	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
)

// TCPUDPBridge 同一端口上同时转发 TCP 连接和 UDP 数据报
type TCPUDPBridge struct {
	*bridgeBase
	table *SessionTable
}

// NewTCPUDPBridge 创建 TCP+UDP 桥接，cfg.PeerID 为目标对端
func NewTCPUDPBridge(transport peer.Transport, cfg Config) *TCPUDPBridge {
	return &TCPUDPBridge{bridgeBase: newBridgeBase("TCPUDPBridge", KindTCPUDP, transport, cfg)}
}

// Sessions UDP 会话表
func (b *TCPUDPBridge) Sessions() *SessionTable {
	return b.table
}

// Start 先绑定 TCP，再在同一端口绑定 UDP；任一失败都返回错误
func (b *TCPUDPBridge) Start(ctx context.Context) (uint16, error) {
	ln, err := net.Listen("tcp4", loopbackAddr(b.cfg.Port))
	if err != nil {
		return 0, bindError("TCP", b.cfg.Port, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	pc, err := listenUDP(uint16(port))
	if err != nil {
		ln.Close()
		return 0, err
	}
	if err := b.begin(ctx, port, ln.Close, pc.Close); err != nil {
		ln.Close()
		pc.Close()
		return 0, err
	}
	b.table = newBridgeSessionTable(b.bridgeBase, pc)

	corelog.Infof("TCPUDPBridge[%d]: listening on 127.0.0.1:%d, forwarding to %s", port, port, b.cfg.PeerID)
	go b.serve(ln, pc)
	return uint16(port), nil
}

func (b *TCPUDPBridge) serve(ln net.Listener, pc *net.UDPConn) {
	defer b.finish()
	defer b.table.Close()

	ctx := b.Ctx()
	conns := make(chan net.Conn)
	datagrams := make(chan datagram, 1)
	tcpFatal := make(chan error, 1)
	udpFatal := make(chan error, 1)
	go acceptInto(ctx, b.GetName()+"/tcp", ln.Accept, conns, tcpFatal, func(c net.Conn) { c.Close() })
	go acceptInto(ctx, b.GetName()+"/udp", recvFrom(pc), datagrams, udpFatal, nil)

	for {
		select {
		case <-ctx.Done():
			corelog.Infof("TCPUDPBridge[%d]: stopping", b.Port())
			return
		case err := <-tcpFatal:
			if ctx.Err() == nil {
				corelog.Errorf("TCPUDPBridge[%d]: TCP listener closed: %v", b.Port(), err)
			}
			return
		case err := <-udpFatal:
			if ctx.Err() == nil {
				corelog.Errorf("TCPUDPBridge[%d]: UDP socket closed: %v", b.Port(), err)
			}
			return
		case conn := <-conns:
			corelog.Debugf("TCPUDPBridge[%d]: got TCP connection from %s", b.Port(), conn.RemoteAddr())
			b.spawn(func() {
				forwardTCP(ctx, b.bridgeBase, conn)
			})
		case d := <-datagrams:
			if err := b.table.Dispatch(ctx, d.data, d.from); err != nil && ctx.Err() == nil {
				corelog.Warnf("TCPUDPBridge[%d]: dropped datagram from %s: %v", b.Port(), d.from, err)
			}
		}
	}
}
