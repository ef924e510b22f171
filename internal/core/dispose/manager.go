package dispose

import (
	"fmt"
	"sync"
	"time"
)

// DisposableFunc 函数适配为 Disposable
type DisposableFunc func() error

func (f DisposableFunc) Dispose() error { return f() }

type namedResource struct {
	name string
	res  Disposable
}

// ResourceManager 进程级资源表，按注册的相反顺序释放
type ResourceManager struct {
	mu        sync.Mutex
	resources []namedResource
}

// NewResourceManager 创建资源表
func NewResourceManager() *ResourceManager {
	return &ResourceManager{}
}

// Register 登记资源；同名资源只能登记一次
func (rm *ResourceManager) Register(name string, resource Disposable) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, r := range rm.resources {
		if r.name == name {
			return fmt.Errorf("resource %s already registered", name)
		}
	}
	rm.resources = append(rm.resources, namedResource{name: name, res: resource})
	Debugf("ResourceManager: registered %s", name)
	return nil
}

// ListResources 按登记顺序返回资源名
func (rm *ResourceManager) ListResources() []string {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	names := make([]string, 0, len(rm.resources))
	for _, r := range rm.resources {
		names = append(names, r.name)
	}
	return names
}

// DisposeAll 清空资源表并逆序释放，单个失败不影响其余
func (rm *ResourceManager) DisposeAll() *DisposeResult {
	rm.mu.Lock()
	resources := rm.resources
	rm.resources = nil
	rm.mu.Unlock()

	result := &DisposeResult{}
	for i := len(resources) - 1; i >= 0; i-- {
		r := resources[i]
		if err := r.res.Dispose(); err != nil {
			result.Errors = append(result.Errors, &DisposeError{HandlerIndex: i, ResourceName: r.name, Err: err})
			Errorf("ResourceManager: dispose %s failed: %v", r.name, err)
			continue
		}
		Debugf("ResourceManager: disposed %s", r.name)
	}
	return result
}

// DisposeWithTimeout 与 DisposeAll 相同，超时后不再等待剩余资源
func (rm *ResourceManager) DisposeWithTimeout(timeout time.Duration) *DisposeResult {
	resultCh := make(chan *DisposeResult, 1)
	go func() {
		resultCh <- rm.DisposeAll()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case result := <-resultCh:
		return result
	case <-timer.C:
		return &DisposeResult{Errors: []*DisposeError{{
			HandlerIndex: -1,
			ResourceName: "timeout",
			Err:          fmt.Errorf("dispose timeout after %v", timeout),
		}}}
	}
}
