//go:build !no_kcp

package peer

import (
	"context"
	"net"

	"github.com/xtaci/kcp-go/v5"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
)

func init() {
	RegisterCarrier("kcp", 40, func(opts CarrierOptions) Carrier {
		return &kcpCarrier{opts: opts}
	})
}

// KCP 参数（两端一致）
const (
	KCPDataShards       = 0
	KCPParityShards     = 0
	KCPSndWnd           = 1024
	KCPRcvWnd           = 1024
	KCPNoDelay          = 1
	KCPInterval         = 10
	KCPResend           = 2
	KCPNC               = 1
	KCPMTU              = 1400
	KCPStreamBufferSize = 4 * 1024 * 1024
)

// kcpCarrier KCP + smux
type kcpCarrier struct {
	opts CarrierOptions
}

func (c *kcpCarrier) Name() string { return "kcp" }

func tuneKCP(conn *kcp.UDPSession) {
	conn.SetStreamMode(true)
	conn.SetNoDelay(KCPNoDelay, KCPInterval, KCPResend, KCPNC)
	conn.SetWindowSize(KCPSndWnd, KCPRcvWnd)
	conn.SetMtu(KCPMTU)
	conn.SetReadBuffer(KCPStreamBufferSize)
	conn.SetWriteBuffer(KCPStreamBufferSize)
	conn.SetACKNoDelay(true)
}

func (c *kcpCarrier) Dial(ctx context.Context, address string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	conn, err := kcp.DialWithOptions(address, nil, KCPDataShards, KCPParityShards)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeNetworkError, "dial kcp %s", address)
	}
	tuneKCP(conn)
	corelog.Debugf("KCPCarrier: connected to %s", address)
	return newSmuxClient(conn, c.opts)
}

func (c *kcpCarrier) Listen(_ context.Context, address string) (MuxListener, error) {
	ln, err := kcp.ListenWithOptions(address, nil, KCPDataShards, KCPParityShards)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeBindFailed, "listen kcp %s", address)
	}
	return &netMuxListener{
		ln: ln,
		accept: func() (net.Conn, error) {
			conn, err := ln.AcceptKCP()
			if err != nil {
				return nil, err
			}
			tuneKCP(conn)
			return conn, nil
		},
		server: func(conn net.Conn) (Session, error) {
			return newSmuxServer(conn, c.opts)
		},
	}, nil
}
