//go:build !no_websocket

package peer

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
)

func init() {
	RegisterCarrier("websocket", 10, func(opts CarrierOptions) Carrier {
		return &websocketCarrier{opts: opts}
	})
}

const (
	websocketPath       = "/peerbridge"
	websocketBufferSize = 32 * 1024
)

// websocketCarrier WebSocket + yamux
type websocketCarrier struct {
	opts CarrierOptions
}

func (c *websocketCarrier) Name() string { return "websocket" }

func (c *websocketCarrier) Dial(ctx context.Context, address string) (Session, error) {
	wsURL, err := NormalizeWebSocketURL(address)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 20 * time.Second,
		ReadBufferSize:   websocketBufferSize,
		WriteBufferSize:  websocketBufferSize,
		TLSClientConfig:  clientTLSConfig(c.opts),
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeNetworkError, "dial websocket %s", wsURL)
	}
	corelog.Debugf("WebSocketCarrier: connected to %s", wsURL)
	return newYamuxClient(newWSConn(conn), c.opts)
}

func (c *websocketCarrier) Listen(_ context.Context, address string) (MuxListener, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, coreerrors.Wrapf(err, coreerrors.CodeBindFailed, "listen websocket %s", address)
	}

	l := &websocketListener{
		ln:       ln,
		sessions: make(chan Session),
		closed:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  websocketBufferSize,
			WriteBufferSize: websocketBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		opts: c.opts,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(websocketPath, l.handle)
	l.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := l.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			corelog.Errorf("WebSocketCarrier: serve %s failed: %v", address, err)
		}
	}()
	return l, nil
}

type websocketListener struct {
	ln        net.Listener
	server    *http.Server
	upgrader  websocket.Upgrader
	sessions  chan Session
	closed    chan struct{}
	closeOnce sync.Once
	opts      CarrierOptions
}

func (l *websocketListener) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		corelog.Warnf("WebSocketCarrier: upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	sess, err := newYamuxServer(newWSConn(conn), l.opts)
	if err != nil {
		corelog.Warnf("WebSocketCarrier: mux session from %s failed: %v", r.RemoteAddr, err)
		return
	}

	select {
	case l.sessions <- sess:
	case <-l.closed:
		sess.Close()
	}
}

func (l *websocketListener) Accept(ctx context.Context) (Session, error) {
	select {
	case sess := <-l.sessions:
		return sess, nil
	case <-l.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *websocketListener) Addr() net.Addr { return l.ln.Addr() }

func (l *websocketListener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.server.Close()
	})
	return err
}

// NormalizeWebSocketURL 规范化 WebSocket 地址：
// - http(s):// 转为 ws(s)://
// - 没有路径时补 /peerbridge
// - host:port 补 ws:// 前缀
func NormalizeWebSocketURL(address string) (string, error) {
	if strings.HasPrefix(address, "ws://") || strings.HasPrefix(address, "wss://") ||
		strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		parsed, err := url.Parse(address)
		if err != nil {
			return "", coreerrors.Wrap(err, coreerrors.CodeInvalidParam, "invalid websocket URL")
		}

		scheme := strings.ToLower(parsed.Scheme)
		switch scheme {
		case "http":
			scheme = "ws"
		case "https":
			scheme = "wss"
		}

		path := parsed.Path
		if path == "" || path == "/" {
			path = websocketPath
		}
		wsURL := fmt.Sprintf("%s://%s%s", scheme, parsed.Host, path)
		if parsed.RawQuery != "" {
			wsURL += "?" + parsed.RawQuery
		}
		return wsURL, nil
	}

	if strings.Contains(address, "/") {
		return "ws://" + address, nil
	}
	return "ws://" + address + websocketPath, nil
}

// wsConn 把 WebSocket 二进制消息适配为 net.Conn
type wsConn struct {
	conn      *websocket.Conn
	reader    io.Reader
	readMu    sync.Mutex
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn}
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.reader == nil {
			messageType, r, err := c.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			if messageType != websocket.BinaryMessage {
				return 0, coreerrors.Newf(coreerrors.CodeProtocolError, "unexpected websocket message type: %d", messageType)
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if err == io.EOF {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *wsConn) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.conn.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.conn.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.conn.SetWriteDeadline(t) }
