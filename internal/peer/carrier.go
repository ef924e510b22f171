package peer

import (
	"context"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	coreerrors "peerbridge/internal/core/errors"
)

// MuxStream 多路复用连接上的一条双向流
type MuxStream interface {
	io.ReadWriter
	// CloseWrite 关闭发送方向，对端读到 EOF
	CloseWrite() error
	// Close 关闭两个方向
	Close() error
}

// Session 到某个地址的多路复用连接
type Session interface {
	OpenStream(ctx context.Context) (MuxStream, error)
	AcceptStream(ctx context.Context) (MuxStream, error)
	RemoteAddr() net.Addr
	IsClosed() bool
	Close() error
}

// MuxListener 接收入站多路复用连接
type MuxListener interface {
	Accept(ctx context.Context) (Session, error)
	Addr() net.Addr
	Close() error
}

// Carrier 载体：建立和接收多路复用连接
type Carrier interface {
	Name() string
	Dial(ctx context.Context, address string) (Session, error)
	Listen(ctx context.Context, address string) (MuxListener, error)
}

// CarrierOptions 载体参数
type CarrierOptions struct {
	InsecureSkipVerify bool
	ServerName         string
	IdleTimeout        time.Duration
	KeepAlive          time.Duration
}

func (o CarrierOptions) withDefaults() CarrierOptions {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 2 * time.Minute
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = 30 * time.Second
	}
	return o
}

// CarrierFactory 根据参数创建载体
type CarrierFactory func(opts CarrierOptions) Carrier

// CarrierInfo 载体注册信息
type CarrierInfo struct {
	Name     string // 载体名称: quic, websocket, tcp, kcp
	Priority int    // 优先级（数字越小优先级越高）
	Factory  CarrierFactory
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*CarrierInfo)
)

// RegisterCarrier 注册载体
func RegisterCarrier(name string, priority int, factory CarrierFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = &CarrierInfo{
		Name:     name,
		Priority: priority,
		Factory:  factory,
	}
}

// GetCarrier 获取载体注册信息
func GetCarrier(name string) (*CarrierInfo, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	info, ok := registry[name]
	return info, ok
}

// NewCarrier 按名称创建载体
func NewCarrier(name string, opts CarrierOptions) (Carrier, error) {
	info, ok := GetCarrier(name)
	if !ok {
		return nil, coreerrors.Newf(coreerrors.CodeProtocolError, "carrier %q is not available (not compiled in)", name)
	}
	return info.Factory(opts.withDefaults()), nil
}

// CarrierNames 所有已注册载体名称（按优先级排序）
func CarrierNames() []string {
	registryMu.RLock()
	infos := make([]*CarrierInfo, 0, len(registry))
	for _, info := range registry {
		infos = append(infos, info)
	}
	registryMu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Priority != infos[j].Priority {
			return infos[i].Priority < infos[j].Priority
		}
		return infos[i].Name < infos[j].Name
	})

	names := make([]string, len(infos))
	for i, info := range infos {
		names[i] = info.Name
	}
	return names
}
