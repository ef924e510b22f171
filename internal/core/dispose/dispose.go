// Package dispose 提供基于 context 的资源生命周期管理
//
// Dispose 持有一个可取消的 context 和一组按注册顺序执行的清理函数；
// 父 context 取消或显式 Close 时清理函数只执行一次。
package dispose

import (
	"context"
	"fmt"
	"sync"
)

// DisposeError 清理过程中的错误信息
type DisposeError struct {
	HandlerIndex int
	ResourceName string
	Err          error
}

func (e *DisposeError) Error() string {
	if e.ResourceName != "" {
		return fmt.Sprintf("cleanup resource[%s] handler[%d] failed: %v", e.ResourceName, e.HandlerIndex, e.Err)
	}
	return fmt.Sprintf("cleanup handler[%d] failed: %v", e.HandlerIndex, e.Err)
}

func (e *DisposeError) Unwrap() error {
	return e.Err
}

// DisposeResult 清理结果
type DisposeResult struct {
	Errors []*DisposeError
}

func (r *DisposeResult) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

func (r *DisposeResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	return fmt.Sprintf("dispose cleanup failed with %d errors", len(r.Errors))
}

// Disposable 统一的资源释放接口
type Disposable interface {
	Dispose() error
}

// Dispose 资源管理结构体
type Dispose struct {
	mu            sync.Mutex
	closed        bool
	ctx           context.Context
	cancel        context.CancelFunc
	cleanHandlers []func() error
	errors        []*DisposeError
	done          chan struct{}
}

// NewDispose 创建绑定到 parent 的 Dispose，onClose 可为 nil
func NewDispose(parent context.Context, onClose func() error) *Dispose {
	d := &Dispose{}
	d.SetCtx(parent, onClose)
	return d
}

// Ctx 返回资源的 context，资源关闭后被取消
func (c *Dispose) Ctx() context.Context {
	return c.ctx
}

// Done 所有清理函数执行完毕后关闭
func (c *Dispose) Done() <-chan struct{} {
	return c.done
}

func (c *Dispose) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close 取消 context 并执行清理函数，重复调用返回首次的结果
func (c *Dispose) Close() *DisposeResult {
	c.mu.Lock()
	if c.closed {
		errs := c.errors
		c.mu.Unlock()
		if c.done != nil {
			<-c.done
		}
		return &DisposeResult{Errors: errs}
	}
	c.closed = true
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	return c.runCleanHandlers()
}

// CloseWithError 关闭并返回第一个清理错误
func (c *Dispose) CloseWithError() error {
	result := c.Close()
	if result.HasErrors() {
		return result.Errors[0].Err
	}
	return nil
}

func (c *Dispose) runCleanHandlers() *DisposeResult {
	c.mu.Lock()
	handlers := make([]func() error, len(c.cleanHandlers))
	copy(handlers, c.cleanHandlers)
	c.mu.Unlock()

	result := &DisposeResult{}
	for i, handler := range handlers {
		if err := handler(); err != nil {
			result.Errors = append(result.Errors, &DisposeError{HandlerIndex: i, Err: err})
			Errorf("Cleanup handler[%d] failed: %v", i, err)
		}
	}

	c.mu.Lock()
	c.errors = result.Errors
	c.mu.Unlock()
	if c.done != nil {
		close(c.done)
	}
	return result
}

// AddCleanHandler 添加清理处理器，按添加顺序执行
func (c *Dispose) AddCleanHandler(f func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleanHandlers = append(c.cleanHandlers, f)
}

// SetCtx 绑定父 context；只能调用一次
func (c *Dispose) SetCtx(parent context.Context, onClose func() error) {
	if c.ctx != nil {
		Warn("ctx already set")
		return
	}
	if parent == nil {
		parent = context.Background()
	}
	if onClose != nil {
		c.AddCleanHandler(onClose)
	}

	c.ctx, c.cancel = context.WithCancel(parent)
	c.done = make(chan struct{})

	go func() {
		<-c.ctx.Done()
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.closed = true
		c.mu.Unlock()

		if result := c.runCleanHandlers(); result.HasErrors() {
			Errorf("Context cancellation cleanup failed: %v", result.Error())
		}
	}()
}
