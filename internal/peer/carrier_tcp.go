package peer

import (
	"context"
	"net"
	"time"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
)

func init() {
	RegisterCarrier("tcp", 30, func(opts CarrierOptions) Carrier {
		return &tcpCarrier{opts: opts}
	})
}

// tcpCarrier TCP + yamux
type tcpCarrier struct {
	opts CarrierOptions
}

func (c *tcpCarrier) Name() string { return "tcp" }

func (c *tcpCarrier) Dial(ctx context.Context, address string) (Session, error) {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: c.opts.KeepAlive,
	}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeNetworkError, "dial tcp %s", address)
	}
	corelog.Debugf("TCPCarrier: connected to %s", address)
	return newYamuxClient(conn, c.opts)
}

func (c *tcpCarrier) Listen(_ context.Context, address string) (MuxListener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeBindFailed, "listen tcp %s", address)
	}
	return &netMuxListener{
		ln:     ln,
		accept: ln.Accept,
		server: func(conn net.Conn) (Session, error) {
			return newYamuxServer(conn, c.opts)
		},
	}, nil
}
