package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"peerbridge/internal/bridge"
	"peerbridge/internal/core/dispose"
	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
)

// Config 控制 API 配置
type Config struct {
	Listen string
	// Token 非空时所有接口（/health 除外）要求 Authorization: Bearer <token>
	Token string
}

// Server 本地控制 API：通过 HTTP 管理桥接
type Server struct {
	*dispose.ManagerBase

	config    Config
	shell     *bridge.Shell
	router    *mux.Router
	server    *http.Server
	resp      *ResponseHelper
	startedAt time.Time
	addr      net.Addr
}

// NewServer 创建控制 API 服务器
func NewServer(parentCtx context.Context, config Config, shell *bridge.Shell) *Server {
	s := &Server{
		ManagerBase: dispose.NewManager("ControlAPI", parentCtx),
		config:      config,
		shell:       shell,
		router:      mux.NewRouter(),
		resp:        NewResponseHelper(),
		startedAt:   time.Now(),
	}
	s.setupRoutes()
	s.AddCleanHandler(s.shutdown)
	return s
}

// Handler 路由（测试使用）
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix(APIPrefix).Subrouter()
	api.Use(s.loggingMiddleware)

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	if s.config.Token != "" {
		protected.Use(s.authMiddleware)
	}
	protected.HandleFunc("/bridges", s.handleListBridges).Methods(http.MethodGet)
	protected.HandleFunc("/bridges", s.handleStartBridge).Methods(http.MethodPost)
	protected.HandleFunc("/bridges", s.handleStopBridge).Methods(http.MethodDelete)
	protected.HandleFunc("/bridges/status", s.handleBridgeStatus).Methods(http.MethodGet)
}

// Start 绑定监听地址并在后台服务
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return coreerrors.Wrapf(err, coreerrors.CodeBindFailed, "failed to listen on %s", s.config.Listen)
	}
	s.addr = ln.Addr()
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	corelog.Infof("ControlAPI: listening on http://%s%s", s.addr, APIPrefix)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			corelog.Errorf("ControlAPI: serve failed: %v", err)
		}
	}()
	return nil
}

// Addr 实际监听地址，未启动时为 nil
func (s *Server) Addr() net.Addr {
	return s.addr
}

func (s *Server) shutdown() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	corelog.Infof("ControlAPI: shutting down")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware 日志中间件
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		corelog.Debugf("ControlAPI: %s %s - %s", r.Method, r.RequestURI, time.Since(start))
	})
}

// authMiddleware Bearer token 认证
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.resp.Error(w, http.StatusUnauthorized, "Missing authorization header")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" {
			s.resp.Error(w, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.Token)) != 1 {
			s.resp.Error(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
