package peer

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
)

// DefaultPoolSize 默认缓存的多路复用连接数
const DefaultPoolSize = 64

// Pool 按载体地址缓存多路复用连接，同一地址的并发拨号只拨一次
type Pool struct {
	carrier     Carrier
	dir         *Directory
	sessions    *lru.Cache[string, Session]
	group       singleflight.Group
	dialTimeout time.Duration
}

// NewPool 创建连接池；被淘汰的连接会被关闭
func NewPool(carrier Carrier, dir *Directory, size int, dialTimeout time.Duration) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	cache, err := lru.NewWithEvict(size, func(addr string, s Session) {
		corelog.Debugf("PeerPool[%s]: session evicted", addr)
		s.Close()
	})
	if err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeConfigError, "create session cache")
	}
	return &Pool{
		carrier:     carrier,
		dir:         dir,
		sessions:    cache,
		dialTimeout: dialTimeout,
	}, nil
}

// Get 返回到对端的可用连接，必要时拨号
func (p *Pool) Get(ctx context.Context, id string) (Session, error) {
	addr, err := p.dir.Resolve(id)
	if err != nil {
		return nil, err
	}

	if s, ok := p.sessions.Get(addr); ok {
		if !s.IsClosed() {
			return s, nil
		}
		p.evict(addr, s)
	}

	ch := p.group.DoChan(addr, func() (interface{}, error) {
		if s, ok := p.sessions.Get(addr); ok && !s.IsClosed() {
			return s, nil
		}
		dialCtx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
		defer cancel()
		s, err := p.carrier.Dial(dialCtx, addr)
		if err != nil {
			return nil, err
		}
		p.sessions.Add(addr, s)
		corelog.Infof("PeerPool[%s]: %s session established", addr, p.carrier.Name())
		return s, nil
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, coreerrors.Wrapf(r.Err, coreerrors.CodeTransportError, "connect to peer %s", id)
		}
		return r.Val.(Session), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Evict 丢弃到对端的缓存连接
func (p *Pool) Evict(id string) {
	addr, err := p.dir.Resolve(id)
	if err != nil {
		return
	}
	if s, ok := p.sessions.Peek(addr); ok {
		p.evict(addr, s)
	}
}

func (p *Pool) evict(addr string, s Session) {
	if cur, ok := p.sessions.Peek(addr); ok && cur == s {
		p.sessions.Remove(addr)
	}
}

// Len 当前缓存的连接数
func (p *Pool) Len() int {
	return p.sessions.Len()
}

// Close 关闭所有缓存连接
func (p *Pool) Close() error {
	p.sessions.Purge()
	return nil
}
