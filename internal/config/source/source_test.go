package source

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"peerbridge/internal/config/schema"
)

const testPeerID = "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyz"

func TestByPriority(t *testing.T) {
	sources := []Source{NewEnvSource(EnvPrefix), NewYAMLSource(), NewDefaultSource(), NewDotEnvSource(nil)}
	sort.Sort(ByPriority(sources))

	want := []string{"defaults", "yaml", "dotenv", "env"}
	for i, s := range sources {
		if s.Name() != want[i] {
			t.Errorf("sources[%d] = %q, want %q", i, s.Name(), want[i])
		}
	}
}

func TestDefaultSource(t *testing.T) {
	cfg := &schema.Root{}
	if err := NewDefaultSource().LoadInto(cfg); err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}

	if cfg.Peer.Carrier != schema.CarrierQUIC {
		t.Errorf("Peer.Carrier = %q, want %q", cfg.Peer.Carrier, schema.CarrierQUIC)
	}
	if cfg.Bridge.UDPQueueSize != 256 {
		t.Errorf("Bridge.UDPQueueSize = %d, want 256", cfg.Bridge.UDPQueueSize)
	}
	if cfg.Bridge.ShutdownTimeout != 5*time.Second {
		t.Errorf("Bridge.ShutdownTimeout = %v, want 5s", cfg.Bridge.ShutdownTimeout)
	}
	if cfg.API.Listen != DefaultAPIListen {
		t.Errorf("API.Listen = %q, want %q", cfg.API.Listen, DefaultAPIListen)
	}
}

func TestYAMLSource_LoadInto(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigFileName)
	content := `
peer:
  carrier: kcp
  peers:
    ` + testPeerID + `: 10.0.0.2:7000
bridge:
  udp_queue_size: 64
  udp_idle_timeout: 30s
api:
  token: secret-token
bridges:
  - kind: tcp
    url: kulfi://` + testPeerID + `
    port: 2222
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &schema.Root{}
	NewDefaultSource().LoadInto(cfg)
	if err := NewYAMLSource(filepath.Join(dir, "missing.yaml"), path).LoadInto(cfg); err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}

	if cfg.Peer.Carrier != schema.CarrierKCP {
		t.Errorf("Peer.Carrier = %q, want kcp", cfg.Peer.Carrier)
	}
	if cfg.Peer.Peers[testPeerID] != "10.0.0.2:7000" {
		t.Errorf("Peer.Peers = %v", cfg.Peer.Peers)
	}
	if cfg.Bridge.UDPQueueSize != 64 || cfg.Bridge.UDPIdleTimeout != 30*time.Second {
		t.Errorf("Bridge = %+v", cfg.Bridge)
	}
	if cfg.Peer.PoolSize != DefaultPoolSize {
		t.Errorf("Peer.PoolSize = %d, default should be kept", cfg.Peer.PoolSize)
	}
	if cfg.API.Token.Value() != "secret-token" || cfg.API.Token.String() != "[redacted]" {
		t.Errorf("API.Token value=%q masked=%q", cfg.API.Token.Value(), cfg.API.Token.String())
	}
	if len(cfg.Bridges) != 1 || cfg.Bridges[0].Port != 2222 {
		t.Errorf("Bridges = %+v", cfg.Bridges)
	}
}

func TestYAMLSource_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("peer: [unclosed"), 0o600)

	if err := NewYAMLSource(path).LoadInto(&schema.Root{}); err == nil {
		t.Error("expected parse error")
	}
}

func TestEnvSource_LoadInto(t *testing.T) {
	t.Setenv("PEERBRIDGE_LOG_LEVEL", "debug")
	t.Setenv("PEERBRIDGE_PEER_POOL_SIZE", "8")
	t.Setenv("PEERBRIDGE_BRIDGE_UDP_IDLE_TIMEOUT", "45s")
	t.Setenv("PEERBRIDGE_API_ENABLED", "true")
	t.Setenv("PEERBRIDGE_PEER_PEERS", testPeerID+"=1.2.3.4:5, broken, =x")
	t.Setenv("PEERBRIDGE_BRIDGE_BANDWIDTH_LIMIT", "not-a-number")

	cfg := &schema.Root{}
	cfg.Bridge.BandwidthLimit = 7
	if err := NewEnvSource(EnvPrefix).LoadInto(cfg); err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Peer.PoolSize != 8 {
		t.Errorf("Peer.PoolSize = %d, want 8", cfg.Peer.PoolSize)
	}
	if cfg.Bridge.UDPIdleTimeout != 45*time.Second {
		t.Errorf("Bridge.UDPIdleTimeout = %v, want 45s", cfg.Bridge.UDPIdleTimeout)
	}
	if !cfg.API.Enabled {
		t.Error("API.Enabled = false, want true")
	}
	if len(cfg.Peer.Peers) != 1 || cfg.Peer.Peers[testPeerID] != "1.2.3.4:5" {
		t.Errorf("Peer.Peers = %v", cfg.Peer.Peers)
	}
	if cfg.Bridge.BandwidthLimit != 7 {
		t.Errorf("invalid value should be ignored, got %d", cfg.Bridge.BandwidthLimit)
	}
}

func TestDotEnvSource_DoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, ".env"), []byte("PEERBRIDGE_LOG_FORMAT=json\nPEERBRIDGE_LOG_LEVEL=error\n"), 0o600)
	t.Setenv("PEERBRIDGE_LOG_LEVEL", "warn")
	t.Setenv("PEERBRIDGE_LOG_FORMAT", "")
	os.Unsetenv("PEERBRIDGE_LOG_FORMAT")

	cfg := &schema.Root{}
	if err := NewDotEnvSource([]string{dir}).LoadInto(cfg); err != nil {
		t.Fatalf("LoadInto() error = %v", err)
	}
	NewEnvSource(EnvPrefix).LoadInto(cfg)

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want json from .env", cfg.Log.Format)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, environment should win over .env", cfg.Log.Level)
	}
}

func TestFindConfigFile(t *testing.T) {
	if got := FindConfigFile("/tmp/explicit.yaml"); got != "/tmp/explicit.yaml" {
		t.Errorf("FindConfigFile() = %q", got)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := FindConfigFile("~/x.yaml"); got != filepath.Join(home, "x.yaml") {
		t.Errorf("FindConfigFile(~) = %q", got)
	}
}
