// Package app 组装进程级组件：本端、桥接监督器、控制 API 和入站转发
package app

import (
	"context"
	"time"

	"peerbridge/internal/api"
	"peerbridge/internal/bridge"
	"peerbridge/internal/config/schema"
	"peerbridge/internal/core/dispose"
	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/expose"
	"peerbridge/internal/peer"
)

// DefaultDisposeTimeout 退出时释放资源的总时限
const DefaultDisposeTimeout = 15 * time.Second

// Options 可替换的依赖，测试时注入
type Options struct {
	// Transport 为空时按配置创建 peer.Endpoint
	Transport peer.Transport
	// Opener 打开浏览器，为空时使用系统默认
	Opener func(url string) error
}

// App 一个 peerbridge 进程
type App struct {
	cfg        *schema.Root
	graceful   *bridge.Graceful
	endpoint   *peer.Endpoint
	transport  peer.Transport
	supervisor *bridge.Supervisor
	shell      *bridge.Shell
	apiServer  *api.Server
	resources  *dispose.ResourceManager
}

// New 创建进程组件，不绑定任何端口
func New(parent context.Context, cfg *schema.Root, opts Options) (*App, error) {
	a := &App{
		cfg:       cfg,
		graceful:  bridge.NewGraceful(parent),
		resources: dispose.NewResourceManager(),
		transport: opts.Transport,
	}

	if a.transport == nil {
		ep, err := peer.NewEndpoint(EndpointConfig(cfg))
		if err != nil {
			a.graceful.Cancel()
			return nil, err
		}
		a.endpoint = ep
		a.transport = ep
		a.resources.Register("endpoint", dispose.DisposableFunc(ep.Close))
	}

	a.supervisor = bridge.NewSupervisor(a.graceful, a.transport, BridgeDefaults(cfg))
	a.shell = bridge.NewShell(a.supervisor, opts.Opener)
	a.resources.Register("supervisor", dispose.DisposableFunc(func() error {
		return a.supervisor.Shutdown(cfg.Bridge.ShutdownTimeout + time.Second)
	}))
	return a, nil
}

// EndpointConfig 由配置生成本端参数
func EndpointConfig(cfg *schema.Root) peer.EndpointConfig {
	return peer.EndpointConfig{
		Identity:    cfg.Identity,
		Carrier:     cfg.Peer.Carrier,
		Relay:       cfg.Peer.Relay,
		Peers:       cfg.Peer.Peers,
		PoolSize:    cfg.Peer.PoolSize,
		DialTimeout: cfg.Peer.DialTimeout,
		Options: peer.CarrierOptions{
			InsecureSkipVerify: cfg.Peer.TLS.InsecureSkipVerify,
			ServerName:         cfg.Peer.TLS.ServerName,
			IdleTimeout:        cfg.Peer.IdleTimeout,
			KeepAlive:          cfg.Peer.KeepAlive,
		},
	}
}

// BridgeDefaults 由配置生成桥接默认参数
func BridgeDefaults(cfg *schema.Root) bridge.Config {
	return bridge.Config{
		UDPQueueSize:      cfg.Bridge.UDPQueueSize,
		UDPIdleTimeout:    cfg.Bridge.UDPIdleTimeout,
		BandwidthLimit:    cfg.Bridge.BandwidthLimit,
		ShutdownGrace:     cfg.Bridge.ShutdownTimeout,
		ReadHeaderTimeout: cfg.Bridge.ReadHeaderTimeout,
	}
}

// Shell 应用层入口
func (a *App) Shell() *bridge.Shell { return a.shell }

// Supervisor 桥接监督器
func (a *App) Supervisor() *bridge.Supervisor { return a.supervisor }

// Endpoint 本端；注入 Transport 时为 nil
func (a *App) Endpoint() *peer.Endpoint { return a.endpoint }

// APIAddr 控制 API 的实际地址，未启动时为空
func (a *App) APIAddr() string {
	if a.apiServer == nil || a.apiServer.Addr() == nil {
		return ""
	}
	return a.apiServer.Addr().String()
}

// StartBridges 启动配置中的所有桥接；单个失败不影响其余，错误聚合返回
func (a *App) StartBridges() error {
	var errs error
	for _, spec := range a.cfg.Bridges {
		kind, err := bridge.ParseKind(spec.Kind)
		if err != nil {
			errs = coreerrors.Append(errs, err)
			continue
		}
		info, err := a.shell.Launch(kind, spec.Port, spec.URL, spec.OpenBrowser)
		if err != nil {
			corelog.Errorf("App: bridge %s %s failed: %s", kind, spec.URL, bridge.Reason(err))
			errs = coreerrors.Append(errs, err)
			continue
		}
		corelog.Infof("App: %s bridge for %s on 127.0.0.1:%d", kind, spec.URL, info.Port)
	}
	return errs
}

// StartAPI 启动控制 API（配置未启用时什么也不做）
func (a *App) StartAPI() error {
	if !a.cfg.API.Enabled {
		return nil
	}
	s := api.NewServer(a.graceful.Context(), api.Config{
		Listen: a.cfg.API.Listen,
		Token:  a.cfg.API.Token.Value(),
	}, a.shell)
	if err := s.Start(); err != nil {
		s.Close()
		return err
	}
	a.apiServer = s
	a.resources.Register("api", dispose.DisposableFunc(s.CloseWithError))
	return nil
}

// StartExpose 在配置的地址上接收入站流并转发到本地目标
func (a *App) StartExpose() (string, error) {
	if a.endpoint == nil {
		return "", coreerrors.New(coreerrors.CodeConfigError, "expose requires a peer endpoint")
	}
	h, err := expose.NewHandler(expose.Config{
		TCPTarget:   a.cfg.Expose.TCPTarget,
		UDPTarget:   a.cfg.Expose.UDPTarget,
		DialTimeout: a.cfg.Peer.DialTimeout,
		UDPIdle:     a.cfg.Bridge.UDPIdleTimeout,
	})
	if err != nil {
		return "", err
	}

	ctx := a.graceful.Context()
	ln, err := a.endpoint.Listen(ctx, a.cfg.Expose.Listen)
	if err != nil {
		return "", coreerrors.Wrapf(err, coreerrors.CodeBindFailed, "expose listen on %s", a.cfg.Expose.Listen)
	}
	a.graceful.Go(func() {
		if err := expose.Serve(ctx, ln, h); err != nil {
			corelog.Errorf("App: expose stopped: %v", err)
		}
	})
	return ln.Addr().String(), nil
}

// Run 启动桥接和控制 API，阻塞直到 ctx 取消后释放所有资源
func (a *App) Run(ctx context.Context) error {
	if err := a.StartAPI(); err != nil {
		a.Close()
		return err
	}
	if a.cfg.Expose.Listen != "" {
		if _, err := a.StartExpose(); err != nil {
			a.Close()
			return err
		}
	}
	if err := a.StartBridges(); err != nil {
		corelog.Warnf("App: some bridges failed to start: %v", err)
	}

	select {
	case <-ctx.Done():
	case <-a.graceful.Context().Done():
	}
	return a.Close()
}

// Close 按注册的相反顺序释放：控制 API、监督器、本端
func (a *App) Close() error {
	result := a.resources.DisposeWithTimeout(DefaultDisposeTimeout)
	var errs error
	for _, e := range result.Errors {
		errs = coreerrors.Append(errs, e)
	}
	return errs
}
