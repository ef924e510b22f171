package bridge

import (
	"fmt"

	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
	"peerbridge/internal/peer"
)

// 返回给界面的结果字符串
const (
	ResultOk      = "Ok"
	ResultStopped = "Stopped"
)

// Shell 面向界面的命令集：以桥接 URL 为键，重复调用即停止
type Shell struct {
	supervisor *Supervisor
	opener     func(url string) error
}

// NewShell 创建命令集；opener 为空时使用系统浏览器
func NewShell(supervisor *Supervisor, opener func(url string) error) *Shell {
	if opener == nil {
		opener = OpenBrowser
	}
	return &Shell{supervisor: supervisor, opener: opener}
}

// Supervisor 底层管理器
func (s *Shell) Supervisor() *Supervisor {
	return s.supervisor
}

// Browse 启动或停止 HTTP 桥接；openBrowser 时在绑定后打开 http://127.0.0.1:<port>/<path>
func (s *Shell) Browse(port uint16, url string, openBrowser bool) string {
	return s.toggle(KindHTTP, port, url, openBrowser)
}

// TCPConnect 启动或停止 TCP 桥接
func (s *Shell) TCPConnect(port uint16, url string) string {
	return s.toggle(KindTCP, port, url, false)
}

// UDPConnect 启动或停止 UDP 桥接
func (s *Shell) UDPConnect(port uint16, url string) string {
	return s.toggle(KindUDP, port, url, false)
}

// TCPUDPConnect 启动或停止同端口的 TCP+UDP 桥接
func (s *Shell) TCPUDPConnect(port uint16, url string) string {
	return s.toggle(KindTCPUDP, port, url, false)
}

// Status url 对应的桥接是否在运行
func (s *Shell) Status(url string) bool {
	return s.supervisor.Status(url)
}

// toggle 运行中的键一定解析成功过，所以先解析再交给 Supervisor.Start 切换
func (s *Shell) toggle(kind Kind, port uint16, url string, openBrowser bool) string {
	cfg, err := s.config(kind, port, url, openBrowser)
	if err != nil {
		if s.supervisor.Stop(url) == OutcomeStopped {
			return ResultStopped
		}
		return parseFailure(url, err)
	}
	outcome, err := s.supervisor.Start(url, kind, cfg)
	if err != nil {
		return Reason(err)
	}
	if outcome == OutcomeStopped {
		return ResultStopped
	}
	return ResultOk
}

// Launch 不切换的启动：url 已在运行时返回 ErrBridgeExists
func (s *Shell) Launch(kind Kind, port uint16, url string, openBrowser bool) (BridgeInfo, error) {
	cfg, err := s.config(kind, port, url, openBrowser)
	if err != nil {
		corelog.WithField("url", url).Errorf("Failed to parse URL: %v", err)
		return BridgeInfo{}, err
	}
	return s.supervisor.StartStrict(url, kind, cfg)
}

func (s *Shell) config(kind Kind, port uint16, url string, openBrowser bool) (Config, error) {
	id, path, err := peer.ParseURL(url)
	if err != nil {
		return Config{}, err
	}
	if err := peer.ValidateID(id); err != nil {
		return Config{}, err
	}
	cfg := Config{Port: port, PeerID: id}
	if kind == KindHTTP {
		cfg.Path = path
		if openBrowser {
			cfg.PostStart = func(port uint16) error {
				return s.opener(fmt.Sprintf("http://127.0.0.1:%d/%s", port, path))
			}
		}
	}
	return cfg, nil
}

func parseFailure(url string, err error) string {
	corelog.WithField("url", url).Errorf("Failed to parse URL: %v", err)
	return "Failed to parse URL: " + Reason(err)
}

// Reason 去掉错误码前缀的可读错误描述
func Reason(err error) string {
	var e *coreerrors.Error
	if coreerrors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}
