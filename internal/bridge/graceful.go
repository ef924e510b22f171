package bridge

import (
	"context"
	"sync"
	"time"

	coreerrors "peerbridge/internal/core/errors"
)

// Graceful 进程级的关闭广播：一个 context 加上跟踪所有转发任务的 WaitGroup
type Graceful struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	closing bool
}

// NewGraceful 创建关闭广播
func NewGraceful(parent context.Context) *Graceful {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Graceful{ctx: ctx, cancel: cancel}
}

// Context 关闭时被取消
func (g *Graceful) Context() context.Context {
	return g.ctx
}

// Go 启动被跟踪的任务；Shutdown 开始后启动的任务不再被等待
func (g *Graceful) Go(fn func()) {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		go fn()
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// Cancel 广播关闭，不等待
func (g *Graceful) Cancel() {
	g.cancel()
}

// Shutdown 广播关闭并等待所有任务结束；超时返回 CodeTimeout
func (g *Graceful) Shutdown(timeout time.Duration) error {
	g.cancel()
	g.mu.Lock()
	g.closing = true
	g.mu.Unlock()

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return coreerrors.Newf(coreerrors.CodeTimeout, "tasks still running after %v", timeout)
	}
}
