// Package bridge 本地桥接：在 127.0.0.1 上监听 TCP / UDP / HTTP，
// 把每个连接、每个 UDP 客户端或每个 HTTP 请求转发为到对端的一条流
package bridge

import (
	"context"
	"time"

	coreerrors "peerbridge/internal/core/errors"
	"peerbridge/internal/peer"
)

// Kind 桥接类型
type Kind string

const (
	KindHTTP   Kind = "http"
	KindTCP    Kind = "tcp"
	KindUDP    Kind = "udp"
	KindTCPUDP Kind = "tcp-udp"
)

// ParseKind 解析桥接类型
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindHTTP, KindTCP, KindUDP, KindTCPUDP:
		return Kind(s), nil
	}
	return "", coreerrors.Newf(coreerrors.CodeInvalidParam, "unknown bridge kind %q", s)
}

// 默认参数
const (
	DefaultUDPQueueSize      = 256
	DefaultShutdownGrace     = 5 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	UDPBufferSize            = 65535
)

// Config 单个桥接的参数
type Config struct {
	// Port 本地端口，0 由系统分配
	Port uint16

	// PeerID TCP/UDP 的目标对端；HTTP 的固定目标，为空时按 Host 头寻址
	PeerID string

	// Path HTTP 桥接启动后打开的路径
	Path string

	UDPQueueSize      int
	UDPIdleTimeout    time.Duration // 0 表示不过期
	BandwidthLimit    int64         // bytes/s，0 表示不限速
	ShutdownGrace     time.Duration
	ReadHeaderTimeout time.Duration

	// PostStart HTTP 桥接绑定端口后调用，失败只记录日志
	PostStart func(port uint16) error
}

func (c Config) withDefaults() Config {
	if c.UDPQueueSize <= 0 {
		c.UDPQueueSize = DefaultUDPQueueSize
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.ReadHeaderTimeout <= 0 {
		c.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	return c
}

// Listener 一个运行中的桥接
type Listener interface {
	// Start 绑定端口并开始服务，返回实际端口；绑定失败同步返回
	Start(ctx context.Context) (uint16, error)
	// Done 服务循环及其所有转发任务结束后关闭
	Done() <-chan struct{}
	Port() uint16
	Kind() Kind
	Stats() *TrafficStats
	// Stop 停止接收并取消所有转发任务，可重复调用
	Stop()
}

// NewListener 按类型创建桥接
func NewListener(kind Kind, transport peer.Transport, cfg Config) (Listener, error) {
	switch kind {
	case KindHTTP:
		return NewHTTPBridge(transport, cfg), nil
	case KindTCP:
		return NewTCPBridge(transport, cfg), nil
	case KindUDP:
		return NewUDPBridge(transport, cfg), nil
	case KindTCPUDP:
		return NewTCPUDPBridge(transport, cfg), nil
	}
	return nil, coreerrors.Newf(coreerrors.CodeInvalidParam, "unknown bridge kind %q", kind)
}
