package testutils

import (
	"context"
	"testing"
	"time"

	coreerrors "peerbridge/internal/core/errors"
)

// TestID 测试用的 52 字符对端标识
const TestID = "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"

// ConcurrentTest 并发测试工具
type ConcurrentTest struct {
	t             *testing.T
	numGoroutines int
	results       chan error
	timeout       time.Duration
}

// NewConcurrentTest 创建新的并发测试工具
func NewConcurrentTest(t *testing.T, numGoroutines int) *ConcurrentTest {
	return &ConcurrentTest{
		t:             t,
		numGoroutines: numGoroutines,
		results:       make(chan error, numGoroutines),
		timeout:       30 * time.Second,
	}
}

// SetTimeout 设置超时时间
func (ct *ConcurrentTest) SetTimeout(timeout time.Duration) {
	ct.timeout = timeout
}

// RunConcurrent 同时启动 numGoroutines 个 testFunc，i 为序号
func (ct *ConcurrentTest) RunConcurrent(testFunc func(i int) error) {
	ctx, cancel := context.WithTimeout(context.Background(), ct.timeout)
	defer cancel()

	start := make(chan struct{})
	for i := 0; i < ct.numGoroutines; i++ {
		go func(i int) {
			<-start
			select {
			case ct.results <- testFunc(i):
			case <-ctx.Done():
				ct.results <- coreerrors.Wrap(ctx.Err(), coreerrors.CodeTimeout, "concurrent test timeout")
			}
		}(i)
	}
	close(start)

	for i := 0; i < ct.numGoroutines; i++ {
		select {
		case err := <-ct.results:
			if err != nil {
				ct.t.Errorf("Concurrent test failed: %v", err)
			}
		case <-ctx.Done():
			ct.t.Fatalf("Concurrent test timeout after %v", ct.timeout)
		}
	}
}

// WaitFor 轮询直到 cond 为真或超时
func WaitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout after %v: %s", timeout, msg)
}
