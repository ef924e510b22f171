package source

import (
	"time"

	"peerbridge/internal/config/schema"
)

// Default values
const (
	DefaultPoolSize          = 64
	DefaultDialTimeout       = 10 * time.Second
	DefaultIdleTimeout       = 2 * time.Minute
	DefaultKeepAlive         = 30 * time.Second
	DefaultUDPQueueSize      = 256
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultAPIListen         = "127.0.0.1:7117"
)

// DefaultSource provides default configuration values
type DefaultSource struct{}

// NewDefaultSource creates a new DefaultSource
func NewDefaultSource() *DefaultSource {
	return &DefaultSource{}
}

// Name returns the source name
func (s *DefaultSource) Name() string {
	return "defaults"
}

// Priority returns the source priority
func (s *DefaultSource) Priority() int {
	return PriorityDefaults
}

// LoadInto loads default values into the configuration
func (s *DefaultSource) LoadInto(cfg *schema.Root) error {
	cfg.Peer.Carrier = schema.CarrierQUIC
	cfg.Peer.PoolSize = DefaultPoolSize
	cfg.Peer.DialTimeout = DefaultDialTimeout
	cfg.Peer.IdleTimeout = DefaultIdleTimeout
	cfg.Peer.KeepAlive = DefaultKeepAlive
	cfg.Peer.TLS.InsecureSkipVerify = true

	cfg.Bridge.UDPQueueSize = DefaultUDPQueueSize
	cfg.Bridge.ShutdownTimeout = DefaultShutdownTimeout
	cfg.Bridge.ReadHeaderTimeout = DefaultReadHeaderTimeout

	cfg.API.Listen = DefaultAPIListen

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stderr"

	return nil
}
