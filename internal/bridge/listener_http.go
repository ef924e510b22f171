package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
)

// BadRequestBody 无法解析目标对端时的 400 响应体
const BadRequestBody = "failed to get peer id from request"

type peerIDKey struct{}

// HTTPBridge 本地 HTTP 代理：按 Host 头（或固定目标）选择对端，每个请求一条 HTTP 协议流
//
// 同时接受 HTTP/1.1 和明文 HTTP/2。
type HTTPBridge struct {
	*bridgeBase
	server *http.Server
	proxy  *httputil.ReverseProxy
}

// NewHTTPBridge 创建 HTTP 桥接；cfg.PeerID 非空时只允许访问该对端
func NewHTTPBridge(transport peer.Transport, cfg Config) *HTTPBridge {
	b := &HTTPBridge{bridgeBase: newBridgeBase("HTTPBridge", KindHTTP, transport, cfg)}
	b.proxy = &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = "http"
			pr.Out.URL.Host = pr.In.Host
			pr.Out.Host = pr.In.Host
		},
		Transport: &http.Transport{
			DialContext:           b.dialPeer,
			DisableKeepAlives:     true,
			ExpectContinueTimeout: time.Second,
		},
		FlushInterval: -1,
		ErrorHandler:  b.proxyError,
	}
	return b
}

// Start 绑定端口、执行 PostStart 并在后台服务
func (b *HTTPBridge) Start(ctx context.Context) (uint16, error) {
	ln, err := net.Listen("tcp4", loopbackAddr(b.cfg.Port))
	if err != nil {
		return 0, bindError("TCP", b.cfg.Port, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	b.server = &http.Server{
		Handler:           h2c.NewHandler(http.HandlerFunc(b.ServeHTTP), &http2.Server{}),
		ReadHeaderTimeout: b.cfg.ReadHeaderTimeout,
		// 进行中的请求由 Shutdown 等待，不随桥接 context 取消
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}
	// 关闭由 serve 在 context 取消后通过 Shutdown 完成
	if err := b.begin(ctx, port); err != nil {
		ln.Close()
		return 0, err
	}

	if b.cfg.PostStart != nil {
		if err := b.cfg.PostStart(uint16(port)); err != nil {
			corelog.Errorf("HTTPBridge[%d]: failed to run post start function: %v", port, err)
		}
	}

	corelog.Infof("HTTPBridge[%d]: listening on http://127.0.0.1:%d", port, port)
	go b.serve(ln)
	return uint16(port), nil
}

func (b *HTTPBridge) serve(ln net.Listener) {
	defer b.finish()

	ctx := b.Ctx()
	served := make(chan error, 1)
	go func() {
		served <- b.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		corelog.Infof("HTTPBridge[%d]: shutting down", b.Port())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), b.cfg.ShutdownGrace)
		defer cancel()
		if err := b.server.Shutdown(shutdownCtx); err != nil {
			corelog.Warnf("HTTPBridge[%d]: graceful shutdown incomplete: %v", b.Port(), err)
			b.server.Close()
		}
		<-served
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			corelog.Errorf("HTTPBridge[%d]: failed to accept: %v", b.Port(), err)
		}
	}
}

// ServeHTTP 解析目标对端并通过流代理请求
func (b *HTTPBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	peerID, err := PeerIDFromHost(r.Host, r.Host != "", b.cfg.PeerID)
	if err != nil {
		corelog.Errorf("HTTPBridge[%d]: failed to get peer id from request: %v", b.Port(), err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, BadRequestBody)
		return
	}

	corelog.Debugf("HTTPBridge[%d]: got request for %s", b.Port(), peerID)
	b.stats.begin()
	defer b.stats.end()

	ctx := context.WithValue(r.Context(), peerIDKey{}, peerID)
	b.proxy.ServeHTTP(w, r.WithContext(ctx))
}

// dialPeer 为一个请求打开到对端的 HTTP 协议流
func (b *HTTPBridge) dialPeer(ctx context.Context, _, _ string) (net.Conn, error) {
	peerID, _ := ctx.Value(peerIDKey{}).(string)
	st, err := b.transport.OpenStream(ctx, peer.ProtocolHeader{Protocol: peer.ProtocolHTTP}, peerID)
	if err != nil {
		return nil, err
	}
	return newControlledConn(b.Ctx(), newStreamConn(st, peerID), b.limiter, b.stats, directionTunnel), nil
}

func (b *HTTPBridge) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	corelog.Errorf("HTTPBridge[%d]: proxy to peer failed: %v", b.Port(), err)
	w.WriteHeader(http.StatusBadGateway)
}
