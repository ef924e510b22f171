package bridge

import (
	"sort"
	"sync"
	"time"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
)

// Outcome 启停操作的结果
type Outcome string

const (
	OutcomeStarted    Outcome = "Ok"
	OutcomeStopped    Outcome = "Stopped"
	OutcomeNotRunning Outcome = "NotRunning"
)

// ErrBridgeExists StartStrict 遇到已运行的键
var ErrBridgeExists = coreerrors.New(coreerrors.CodeAlreadyExists, "bridge already running")

// ErrStoppedWhileStarting 启动期间键被并发的 Stop 或切换停止
var ErrStoppedWhileStarting = coreerrors.New(coreerrors.CodeCancelled, "bridge stopped while starting")

// BridgeInfo 运行中桥接的描述
type BridgeInfo struct {
	Key       string        `json:"key"`
	Kind      Kind          `json:"kind"`
	Port      uint16        `json:"port"`
	PeerID    string        `json:"peer_id,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Stats     StatsSnapshot `json:"stats"`
}

// bridgeHandle 注册表中的一项；listener 为 nil 表示正在启动（在 Supervisor.mu 下读写）。
// stop 只生效一次
type bridgeHandle struct {
	key      string
	kind     Kind
	peerID   string
	listener Listener
	stopOnce sync.Once
}

// stop 调用方已把句柄移出注册表；正在启动的句柄由 launch 负责停止
func (h *bridgeHandle) stop() {
	if h.listener == nil {
		return
	}
	h.stopOnce.Do(h.listener.Stop)
}

func (h *bridgeHandle) info() BridgeInfo {
	snap := h.listener.Stats().Snapshot()
	return BridgeInfo{
		Key:       h.key,
		Kind:      h.kind,
		Port:      h.listener.Port(),
		PeerID:    h.peerID,
		StartedAt: snap.StartedAt,
		Stats:     snap,
	}
}

// Supervisor 按键管理运行中的桥接
//
// 同一个键至多一个桥接。Start 对已存在的键执行停止（切换语义），
// StartStrict 则返回 ErrBridgeExists。桥接自行退出时，只有注册表中
// 仍是同一个句柄才会被移除。
type Supervisor struct {
	mu        sync.Mutex
	bridges   map[string]*bridgeHandle
	graceful  *Graceful
	transport peer.Transport
	defaults  Config
}

// NewSupervisor 创建管理器；defaults 为各桥接未指定参数时的默认值
func NewSupervisor(graceful *Graceful, transport peer.Transport, defaults Config) *Supervisor {
	return &Supervisor{
		bridges:   make(map[string]*bridgeHandle),
		graceful:  graceful,
		transport: transport,
		defaults:  defaults,
	}
}

func (s *Supervisor) merge(cfg Config) Config {
	if cfg.UDPQueueSize <= 0 {
		cfg.UDPQueueSize = s.defaults.UDPQueueSize
	}
	if cfg.UDPIdleTimeout <= 0 {
		cfg.UDPIdleTimeout = s.defaults.UDPIdleTimeout
	}
	if cfg.BandwidthLimit <= 0 {
		cfg.BandwidthLimit = s.defaults.BandwidthLimit
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = s.defaults.ShutdownGrace
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = s.defaults.ReadHeaderTimeout
	}
	return cfg
}

// Start 键已存在时停止它并返回 OutcomeStopped；否则启动新桥接
//
// 查询和占位在同一次加锁中完成，并发的 Start 对同一个键总是得到切换结果。
func (s *Supervisor) Start(key string, kind Kind, cfg Config) (Outcome, error) {
	s.mu.Lock()
	if h, ok := s.bridges[key]; ok {
		delete(s.bridges, key)
		s.mu.Unlock()
		h.stop()
		corelog.Infof("Supervisor[%s]: stopped", key)
		return OutcomeStopped, nil
	}
	h, err := s.reserveLocked(key, kind, cfg)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	if _, err := s.launch(h, cfg); err != nil && err != ErrStoppedWhileStarting {
		return "", err
	}
	return OutcomeStarted, nil
}

// Toggle 同 Start
func (s *Supervisor) Toggle(key string, kind Kind, cfg Config) (Outcome, error) {
	return s.Start(key, kind, cfg)
}

// StartStrict 启动新桥接；键已存在（包括正在启动）返回 ErrBridgeExists，绑定失败同步返回
func (s *Supervisor) StartStrict(key string, kind Kind, cfg Config) (BridgeInfo, error) {
	s.mu.Lock()
	if _, exists := s.bridges[key]; exists {
		s.mu.Unlock()
		return BridgeInfo{}, ErrBridgeExists
	}
	h, err := s.reserveLocked(key, kind, cfg)
	s.mu.Unlock()
	if err != nil {
		return BridgeInfo{}, err
	}
	return s.launch(h, cfg)
}

// reserveLocked 以未启动的句柄占住键；调用方持有 s.mu
func (s *Supervisor) reserveLocked(key string, kind Kind, cfg Config) (*bridgeHandle, error) {
	if err := s.graceful.Context().Err(); err != nil {
		return nil, coreerrors.Wrap(err, coreerrors.CodeCancelled, "supervisor is shutting down")
	}
	h := &bridgeHandle{key: key, kind: kind, peerID: cfg.PeerID}
	s.bridges[key] = h
	return h, nil
}

// launch 在锁外绑定端口并执行 PostStart，再提交句柄；
// 启动期间键被停止时，新监听器随即停止
func (s *Supervisor) launch(h *bridgeHandle, cfg Config) (BridgeInfo, error) {
	listener, err := NewListener(h.kind, s.transport, s.merge(cfg))
	if err == nil {
		_, err = listener.Start(s.graceful.Context())
	}
	if err != nil {
		corelog.Errorf("Supervisor[%s]: %v", h.key, err)
		s.mu.Lock()
		if cur, ok := s.bridges[h.key]; ok && cur == h {
			delete(s.bridges, h.key)
		}
		s.mu.Unlock()
		return BridgeInfo{}, err
	}

	s.mu.Lock()
	cur, ok := s.bridges[h.key]
	committed := ok && cur == h
	if committed {
		h.listener = listener
	}
	s.mu.Unlock()

	if !committed {
		listener.Stop()
		corelog.Infof("Supervisor[%s]: stopped while starting", h.key)
		return BridgeInfo{}, ErrStoppedWhileStarting
	}

	s.graceful.Go(func() {
		<-listener.Done()
		s.deregister(h)
	})
	corelog.Infof("Supervisor[%s]: %s bridge started on port %d", h.key, h.kind, listener.Port())
	return h.info(), nil
}

// deregister 桥接退出后移除，只移除同一个句柄
func (s *Supervisor) deregister(h *bridgeHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.bridges[h.key]; ok && cur == h {
		delete(s.bridges, h.key)
		corelog.Infof("Supervisor[%s]: bridge exited, removed", h.key)
	}
}

// Stop 停止并移除键对应的桥接
func (s *Supervisor) Stop(key string) Outcome {
	s.mu.Lock()
	h, ok := s.bridges[key]
	if ok {
		delete(s.bridges, key)
	}
	s.mu.Unlock()

	if !ok {
		return OutcomeNotRunning
	}
	h.stop()
	corelog.Infof("Supervisor[%s]: stopped", key)
	return OutcomeStopped
}

// Status 键对应的桥接是否已启动（正在启动的不算）
func (s *Supervisor) Status(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.bridges[key]
	return ok && h.listener != nil
}

// Info 单个桥接的描述
func (s *Supervisor) Info(key string) (BridgeInfo, bool) {
	s.mu.Lock()
	h, ok := s.bridges[key]
	running := ok && h.listener != nil
	s.mu.Unlock()
	if !running {
		return BridgeInfo{}, false
	}
	return h.info(), true
}

// List 按键排序的所有已启动桥接
func (s *Supervisor) List() []BridgeInfo {
	s.mu.Lock()
	handles := make([]*bridgeHandle, 0, len(s.bridges))
	for _, h := range s.bridges {
		if h.listener != nil {
			handles = append(handles, h)
		}
	}
	s.mu.Unlock()

	infos := make([]BridgeInfo, 0, len(handles))
	for _, h := range handles {
		infos = append(infos, h.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// Shutdown 停止所有桥接并等待转发任务结束
func (s *Supervisor) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	handles := make([]*bridgeHandle, 0, len(s.bridges))
	for key, h := range s.bridges {
		handles = append(handles, h)
		delete(s.bridges, key)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.stop()
	}
	corelog.Infof("Supervisor: shutting down %d bridges", len(handles))
	return s.graceful.Shutdown(timeout)
}
