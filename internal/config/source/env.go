package source

import (
	"os"
	"strconv"
	"strings"
	"time"

	"peerbridge/internal/config/schema"
)

// EnvPrefix is the default environment variable prefix
const EnvPrefix = "PEERBRIDGE"

// EnvSource loads configuration from environment variables
type EnvSource struct {
	prefix string
}

// NewEnvSource creates a new EnvSource with the specified prefix
func NewEnvSource(prefix string) *EnvSource {
	return &EnvSource{prefix: prefix}
}

// Name returns the source name
func (s *EnvSource) Name() string {
	return "env"
}

// Priority returns the source priority
func (s *EnvSource) Priority() int {
	return PriorityEnv
}

// LoadInto loads environment variables into the config structure
func (s *EnvSource) LoadInto(cfg *schema.Root) error {
	s.loadString("IDENTITY", &cfg.Identity)

	// Peer transport
	s.loadString("PEER_CARRIER", &cfg.Peer.Carrier)
	s.loadString("PEER_RELAY", &cfg.Peer.Relay)
	s.loadPeers("PEER_PEERS", &cfg.Peer.Peers)
	s.loadInt("PEER_POOL_SIZE", &cfg.Peer.PoolSize)
	s.loadDuration("PEER_DIAL_TIMEOUT", &cfg.Peer.DialTimeout)
	s.loadDuration("PEER_IDLE_TIMEOUT", &cfg.Peer.IdleTimeout)
	s.loadDuration("PEER_KEEP_ALIVE", &cfg.Peer.KeepAlive)
	s.loadBool("PEER_TLS_INSECURE_SKIP_VERIFY", &cfg.Peer.TLS.InsecureSkipVerify)
	s.loadString("PEER_TLS_SERVER_NAME", &cfg.Peer.TLS.ServerName)

	// Bridge defaults
	s.loadInt("BRIDGE_UDP_QUEUE_SIZE", &cfg.Bridge.UDPQueueSize)
	s.loadDuration("BRIDGE_UDP_IDLE_TIMEOUT", &cfg.Bridge.UDPIdleTimeout)
	s.loadInt64("BRIDGE_BANDWIDTH_LIMIT", &cfg.Bridge.BandwidthLimit)
	s.loadDuration("BRIDGE_SHUTDOWN_TIMEOUT", &cfg.Bridge.ShutdownTimeout)
	s.loadDuration("BRIDGE_READ_HEADER_TIMEOUT", &cfg.Bridge.ReadHeaderTimeout)

	// Control API
	s.loadBool("API_ENABLED", &cfg.API.Enabled)
	s.loadString("API_LISTEN", &cfg.API.Listen)
	s.loadSecret("API_TOKEN", &cfg.API.Token)

	// Log
	s.loadString("LOG_LEVEL", &cfg.Log.Level)
	s.loadString("LOG_FORMAT", &cfg.Log.Format)
	s.loadString("LOG_OUTPUT", &cfg.Log.Output)
	s.loadString("LOG_FILE", &cfg.Log.File)

	// Expose
	s.loadString("EXPOSE_LISTEN", &cfg.Expose.Listen)
	s.loadString("EXPOSE_TCP_TARGET", &cfg.Expose.TCPTarget)
	s.loadString("EXPOSE_UDP_TARGET", &cfg.Expose.UDPTarget)

	return nil
}

// getEnv gets environment variable with the configured prefix
func (s *EnvSource) getEnv(key string) (string, bool) {
	if v := os.Getenv(s.prefix + "_" + key); v != "" {
		return v, true
	}
	return "", false
}

func (s *EnvSource) loadString(key string, target *string) {
	if v, ok := s.getEnv(key); ok {
		*target = v
	}
}

func (s *EnvSource) loadSecret(key string, target *schema.Secret) {
	if v, ok := s.getEnv(key); ok {
		*target = schema.Secret(v)
	}
}

func (s *EnvSource) loadBool(key string, target *bool) {
	if v, ok := s.getEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func (s *EnvSource) loadInt(key string, target *int) {
	if v, ok := s.getEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func (s *EnvSource) loadInt64(key string, target *int64) {
	if v, ok := s.getEnv(key); ok {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			*target = i
		}
	}
}

func (s *EnvSource) loadDuration(key string, target *time.Duration) {
	if v, ok := s.getEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}

// loadPeers parses "id=addr,id=addr" and merges into the map
func (s *EnvSource) loadPeers(key string, target *map[string]string) {
	v, ok := s.getEnv(key)
	if !ok {
		return
	}
	for _, part := range strings.Split(v, ",") {
		id, addr, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || id == "" || addr == "" {
			continue
		}
		if *target == nil {
			*target = make(map[string]string)
		}
		(*target)[strings.TrimSpace(id)] = strings.TrimSpace(addr)
	}
}
