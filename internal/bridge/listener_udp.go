package bridge

import (
	"context"
	"net"
	"net/netip"

	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
)

// UDPBridge 每个 UDP 客户端地址一条 UDP 协议流
type UDPBridge struct {
	*bridgeBase
	table *SessionTable
}

// NewUDPBridge 创建 UDP 桥接，cfg.PeerID 为目标对端
func NewUDPBridge(transport peer.Transport, cfg Config) *UDPBridge {
	return &UDPBridge{bridgeBase: newBridgeBase("UDPBridge", KindUDP, transport, cfg)}
}

// Sessions 会话表
func (b *UDPBridge) Sessions() *SessionTable {
	return b.table
}

// Start 绑定 127.0.0.1:Port 并在后台接收数据报
func (b *UDPBridge) Start(ctx context.Context) (uint16, error) {
	pc, err := listenUDP(b.cfg.Port)
	if err != nil {
		return 0, err
	}
	port := pc.LocalAddr().(*net.UDPAddr).Port
	if err := b.begin(ctx, port, pc.Close); err != nil {
		pc.Close()
		return 0, err
	}
	b.table = newBridgeSessionTable(b.bridgeBase, pc)

	corelog.Infof("UDPBridge[%d]: listening on %s, forwarding to %s", port, pc.LocalAddr(), b.cfg.PeerID)
	go b.serve(pc)
	return uint16(port), nil
}

func (b *UDPBridge) serve(pc *net.UDPConn) {
	defer b.finish()
	defer b.table.Close()

	ctx := b.Ctx()
	datagrams := make(chan datagram, 1)
	fatal := make(chan error, 1)
	go acceptInto(ctx, b.GetName(), recvFrom(pc), datagrams, fatal, nil)

	for {
		select {
		case <-ctx.Done():
			corelog.Infof("UDPBridge[%d]: stopping", b.Port())
			return
		case err := <-fatal:
			if ctx.Err() == nil {
				corelog.Errorf("UDPBridge[%d]: socket closed: %v", b.Port(), err)
			}
			return
		case d := <-datagrams:
			if err := b.table.Dispatch(ctx, d.data, d.from); err != nil && ctx.Err() == nil {
				corelog.Warnf("UDPBridge[%d]: dropped datagram from %s: %v", b.Port(), d.from, err)
			}
		}
	}
}

// datagram 一个收到的本地数据报
type datagram struct {
	data []byte
	from netip.AddrPort
}

func listenUDP(port uint16) (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp4", loopbackAddr(port))
	if err != nil {
		return nil, bindError("UDP", port, err)
	}
	pc, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, bindError("UDP", port, err)
	}
	return pc, nil
}

// recvFrom 每次读取一个数据报并复制出来
func recvFrom(pc *net.UDPConn) func() (datagram, error) {
	buf := make([]byte, UDPBufferSize)
	return func() (datagram, error) {
		n, from, err := pc.ReadFromUDPAddrPort(buf)
		if err != nil {
			return datagram{}, err
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		return datagram{
			data: data,
			from: netip.AddrPortFrom(from.Addr().Unmap(), from.Port()),
		}, nil
	}
}

func newBridgeSessionTable(b *bridgeBase, pc *net.UDPConn) *SessionTable {
	return NewSessionTable(b.transport, b.cfg.PeerID, pc, SessionOptions{
		Name:          b.GetName(),
		QueueSize:     b.cfg.UDPQueueSize,
		IdleTimeout:   b.cfg.UDPIdleTimeout,
		ShutdownGrace: b.cfg.ShutdownGrace,
		Stats:         b.stats,
		Limiter:       b.limiter,
	})
}
