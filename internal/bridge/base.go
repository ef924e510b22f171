package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"peerbridge/internal/core/dispose"
	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
)

// bridgeBase 各类桥接共用的生命周期：绑定后的 ManagerBase、
// 转发任务的 WaitGroup、端口和统计
type bridgeBase struct {
	*dispose.ManagerBase

	name      string
	kind      Kind
	cfg       Config
	transport peer.Transport
	limiter   *rate.Limiter
	stats     *TrafficStats

	port     atomic.Uint32
	started  atomic.Bool
	tasks    sync.WaitGroup
	done     chan struct{}
	doneOnce sync.Once
}

func newBridgeBase(name string, kind Kind, transport peer.Transport, cfg Config) *bridgeBase {
	cfg = cfg.withDefaults()
	return &bridgeBase{
		name:      name,
		kind:      kind,
		cfg:       cfg,
		transport: transport,
		limiter:   newRateLimiter(cfg.BandwidthLimit),
		stats:     &TrafficStats{},
		done:      make(chan struct{}),
	}
}

// begin 绑定成功后调用：创建以 ctx 为父的 ManagerBase，注册关闭函数
func (b *bridgeBase) begin(ctx context.Context, port int, closers ...func() error) error {
	if !b.started.CompareAndSwap(false, true) {
		return coreerrors.Newf(coreerrors.CodeAlreadyExists, "%s already started", b.name)
	}
	b.port.Store(uint32(port))
	b.stats.StartedAt = time.Now()
	b.ManagerBase = dispose.NewManager(fmt.Sprintf("%s[%d]", b.name, port), ctx)
	for _, c := range closers {
		b.AddCleanHandler(c)
	}
	return nil
}

func (b *bridgeBase) Done() <-chan struct{} { return b.done }
func (b *bridgeBase) Port() uint16          { return uint16(b.port.Load()) }
func (b *bridgeBase) Kind() Kind            { return b.kind }
func (b *bridgeBase) Stats() *TrafficStats  { return b.stats }

// Stop 取消 context 并关闭监听 socket；未启动时无操作
func (b *bridgeBase) Stop() {
	if b.ManagerBase == nil {
		return
	}
	if result := b.Close(); result.HasErrors() {
		corelog.Warnf("%s[%d]: stop: %s", b.name, b.Port(), result.Error())
	}
}

// spawn 启动被跟踪的转发任务
func (b *bridgeBase) spawn(fn func()) {
	b.tasks.Add(1)
	go func() {
		defer b.tasks.Done()
		fn()
	}()
}

// finish 服务循环退出时调用：确保 context 已取消，等待转发任务后关闭 Done
func (b *bridgeBase) finish() {
	b.Stop()
	b.tasks.Wait()
	b.doneOnce.Do(func() { close(b.done) })
	corelog.Infof("%s[%d]: stopped", b.name, b.Port())
}

// bindError 绑定失败消息
func bindError(proto string, port uint16, err error) error {
	return coreerrors.Wrapf(err, coreerrors.CodeBindFailed, "Failed to bind %s to port %d", proto, port)
}

// loopbackAddr 127.0.0.1:port
func loopbackAddr(port uint16) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

// isClosedError socket 已关闭，接收循环应退出
func isClosedError(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// acceptInto 在独立 goroutine 中运行阻塞的 accept/recv，把结果送入 out；
// socket 关闭后把错误送入 fatal 并退出。其他错误记录后继续。
func acceptInto[T any](ctx context.Context, name string, accept func() (T, error), out chan<- T, fatal chan<- error, discard func(T)) {
	for {
		v, err := accept()
		if err != nil {
			if isClosedError(err) || ctx.Err() != nil {
				fatal <- err
				return
			}
			corelog.Errorf("%s: failed to accept: %v", name, err)
			// 避免持续失败时空转
			select {
			case <-ctx.Done():
				fatal <- ctx.Err()
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}

		select {
		case out <- v:
		case <-ctx.Done():
			if discard != nil {
				discard(v)
			}
			fatal <- ctx.Err()
			return
		}
	}
}
