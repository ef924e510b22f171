package bridge

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// TrafficStats 流量统计
type TrafficStats struct {
	BytesSent       atomic.Int64 // 本地 → 对端
	BytesReceived   atomic.Int64 // 对端 → 本地
	ConnectionCount atomic.Int64 // 总连接（UDP 为会话，HTTP 为请求）
	ActiveSessions  atomic.Int64 // 当前活跃的转发单元
	StartedAt       time.Time
}

// StatsSnapshot 统计快照
type StatsSnapshot struct {
	BytesSent       int64     `json:"bytes_sent"`
	BytesReceived   int64     `json:"bytes_received"`
	ConnectionCount int64     `json:"connection_count"`
	ActiveSessions  int64     `json:"active_sessions"`
	StartedAt       time.Time `json:"started_at"`
}

// Snapshot 获取统计快照
func (t *TrafficStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		BytesSent:       t.BytesSent.Load(),
		BytesReceived:   t.BytesReceived.Load(),
		ConnectionCount: t.ConnectionCount.Load(),
		ActiveSessions:  t.ActiveSessions.Load(),
		StartedAt:       t.StartedAt,
	}
}

func (t *TrafficStats) begin() {
	t.ConnectionCount.Add(1)
	t.ActiveSessions.Add(1)
}

func (t *TrafficStats) end() {
	t.ActiveSessions.Add(-1)
}

// newRateLimiter bytesPerSecond <= 0 时返回 nil
func newRateLimiter(bytesPerSecond int64) *rate.Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := bytesPerSecond * 2
	if burst < UDPBufferSize {
		burst = UDPBufferSize
	}
	return rate.NewLimiter(rate.Limit(bytesPerSecond), int(burst))
}

// waitN 限速等待；n 超过 burst 时分段等待
func waitN(ctx context.Context, limiter *rate.Limiter, n int) error {
	if limiter == nil {
		return nil
	}
	for n > 0 {
		chunk := n
		if b := limiter.Burst(); chunk > b {
			chunk = b
		}
		if err := limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// direction controlledConn 包装的是哪一端
type direction int

const (
	directionLocal  direction = iota // 本地客户端连接
	directionTunnel                  // 对端流
)

// controlledConn 带速率限制和流量统计的连接
type controlledConn struct {
	net.Conn
	limiter   *rate.Limiter
	stats     *TrafficStats
	direction direction
	ctx       context.Context
}

// newControlledConn 限速等待不随 ctx 取消而中断：取消后进行中的读写在宽限期内完成，
// 宽限期结束时连接被强制关闭
func newControlledConn(ctx context.Context, conn net.Conn, limiter *rate.Limiter, stats *TrafficStats, dir direction) *controlledConn {
	return &controlledConn{Conn: conn, limiter: limiter, stats: stats, direction: dir, ctx: context.WithoutCancel(ctx)}
}

func (c *controlledConn) Read(p []byte) (int, error) {
	n, err := c.Conn.Read(p)
	if n > 0 {
		if c.direction == directionTunnel {
			c.stats.BytesReceived.Add(int64(n))
		} else {
			c.stats.BytesSent.Add(int64(n))
		}
		if werr := waitN(c.ctx, c.limiter, n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

func (c *controlledConn) Write(p []byte) (int, error) {
	if err := waitN(c.ctx, c.limiter, len(p)); err != nil {
		return 0, err
	}
	n, err := c.Conn.Write(p)
	if n > 0 {
		if c.direction == directionTunnel {
			c.stats.BytesSent.Add(int64(n))
		} else {
			c.stats.BytesReceived.Add(int64(n))
		}
	}
	return n, err
}

// CloseWrite 透传半关闭
func (c *controlledConn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return nil
}
