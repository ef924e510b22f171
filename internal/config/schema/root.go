package schema

import "time"

// Carrier names accepted in peer.carrier
const (
	CarrierQUIC      = "quic"
	CarrierKCP       = "kcp"
	CarrierWebSocket = "websocket"
	CarrierTCP       = "tcp"
)

// Root is the top-level configuration structure
type Root struct {
	// Identity is this node's 52-character peer id; empty means generate one
	Identity string       `yaml:"identity" json:"identity"`
	Peer     PeerConfig   `yaml:"peer" json:"peer"`
	Bridge   BridgeConfig `yaml:"bridge" json:"bridge"`
	API      APIConfig    `yaml:"api" json:"api"`
	Log      LogConfig    `yaml:"log" json:"log"`
	Expose   ExposeConfig `yaml:"expose" json:"expose"`
	Bridges  []BridgeSpec `yaml:"bridges" json:"bridges"`
}

// PeerConfig configures the peer transport
type PeerConfig struct {
	Carrier     string            `yaml:"carrier" json:"carrier"`
	Relay       string            `yaml:"relay" json:"relay"`
	Peers       map[string]string `yaml:"peers" json:"peers"` // peer id -> carrier address
	PoolSize    int               `yaml:"pool_size" json:"pool_size"`
	DialTimeout time.Duration     `yaml:"dial_timeout" json:"dial_timeout"`
	IdleTimeout time.Duration     `yaml:"idle_timeout" json:"idle_timeout"`
	KeepAlive   time.Duration     `yaml:"keep_alive" json:"keep_alive"`
	TLS         TLSConfig         `yaml:"tls" json:"tls"`
}

// TLSConfig contains carrier TLS settings (quic, websocket over wss)
type TLSConfig struct {
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" json:"insecure_skip_verify"`
	ServerName         string `yaml:"server_name" json:"server_name"`
}

// BridgeConfig contains defaults applied to every local bridge
type BridgeConfig struct {
	UDPQueueSize      int           `yaml:"udp_queue_size" json:"udp_queue_size"`
	UDPIdleTimeout    time.Duration `yaml:"udp_idle_timeout" json:"udp_idle_timeout"` // 0 = never expire
	BandwidthLimit    int64         `yaml:"bandwidth_limit" json:"bandwidth_limit"`   // bytes/s, 0 = unlimited
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
}

// APIConfig configures the local control API
type APIConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Listen  string `yaml:"listen" json:"listen"`
	Token   Secret `yaml:"token" json:"token"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug/info/warn/error
	Format string `yaml:"format" json:"format"` // text/json
	Output string `yaml:"output" json:"output"` // stderr/file/discard
	File   string `yaml:"file" json:"file"`
}

// ExposeConfig configures the inbound side used by `peerbridge expose`
type ExposeConfig struct {
	Listen    string `yaml:"listen" json:"listen"`
	TCPTarget string `yaml:"tcp_target" json:"tcp_target"`
	UDPTarget string `yaml:"udp_target" json:"udp_target"`
}

// BridgeSpec describes one bridge started by `peerbridge serve`
type BridgeSpec struct {
	Kind        string `yaml:"kind" json:"kind"` // http/tcp/udp/tcp-udp
	URL         string `yaml:"url" json:"url"`
	Port        uint16 `yaml:"port" json:"port"`
	OpenBrowser bool   `yaml:"open_browser" json:"open_browser"`
}
