package peer

import (
	"context"
	"time"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
)

// EndpointConfig 本端配置
type EndpointConfig struct {
	Identity    string
	Carrier     string
	Relay       string
	Peers       map[string]string
	PoolSize    int
	DialTimeout time.Duration
	Options     CarrierOptions
}

// Endpoint 进程内唯一的本端：标识、载体和连接池，实现 Transport
type Endpoint struct {
	id      string
	carrier Carrier
	dir     *Directory
	pool    *Pool
}

// NewEndpoint 创建本端；标识为空时随机生成
func NewEndpoint(cfg EndpointConfig) (*Endpoint, error) {
	id := cfg.Identity
	if id == "" {
		id = NewIdentity()
	}
	if err := ValidateID(id); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeConfigError, "invalid identity")
	}

	carrier, err := NewCarrier(cfg.Carrier, cfg.Options)
	if err != nil {
		return nil, err
	}
	dir := NewDirectory(cfg.Peers, cfg.Relay)
	pool, err := NewPool(carrier, dir, cfg.PoolSize, cfg.DialTimeout)
	if err != nil {
		return nil, err
	}

	corelog.Infof("Endpoint[%s]: using %s carrier", id, carrier.Name())
	return &Endpoint{id: id, carrier: carrier, dir: dir, pool: pool}, nil
}

// ID 本端标识
func (e *Endpoint) ID() string { return e.id }

// Carrier 当前载体
func (e *Endpoint) Carrier() Carrier { return e.carrier }

// Directory 地址目录
func (e *Endpoint) Directory() *Directory { return e.dir }

// Pool 连接池
func (e *Endpoint) Pool() *Pool { return e.pool }

// OpenStream 打开到 target 的流并写入前导；缓存连接失效时重拨一次
func (e *Endpoint) OpenStream(ctx context.Context, header ProtocolHeader, target string) (*Stream, error) {
	if err := ValidateID(target); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		sess, err := e.pool.Get(ctx, target)
		if err != nil {
			return nil, err
		}

		ms, err := sess.OpenStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			corelog.Warnf("Endpoint[%s]: open stream to %s failed, redialing: %v", e.id, target, err)
			e.pool.Evict(target)
			continue
		}

		preface := Preface{Header: header, Source: e.id, Target: target}
		if err := WritePreface(ms, preface); err != nil {
			ms.Close()
			return nil, coreerrors.Wrap(err, coreerrors.CodeTransportError, "write preface")
		}
		return NewStream(ms), nil
	}
	return nil, coreerrors.Wrapf(lastErr, coreerrors.CodeTransportError, "open stream to %s", target)
}

// Listen 在 address 上接收入站连接
func (e *Endpoint) Listen(ctx context.Context, address string) (MuxListener, error) {
	return e.carrier.Listen(ctx, address)
}

// Close 关闭所有缓存连接
func (e *Endpoint) Close() error {
	return e.pool.Close()
}
