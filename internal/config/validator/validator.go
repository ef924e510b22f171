// Package validator provides configuration validation
package validator

import (
	"fmt"
	"net"
	"strings"

	"peerbridge/internal/config/schema"
	"peerbridge/internal/peer"
)

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string // Field path (e.g., "peer.carrier")
	Value   string // Current value (masked for secrets)
	Message string
	Hint    string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationResult contains all validation errors
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid returns true if there are no validation errors
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Error returns a formatted error message
func (r *ValidationResult) Error() string {
	if r.IsValid() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n\n")
	for i, err := range r.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Field))
		if err.Value != "" {
			sb.WriteString(fmt.Sprintf("     Current value: %s\n", err.Value))
		}
		sb.WriteString(fmt.Sprintf("     Error: %s\n", err.Message))
		if err.Hint != "" {
			sb.WriteString(fmt.Sprintf("     Hint: %s\n", err.Hint))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// AddError adds a validation error
func (r *ValidationResult) AddError(field, value, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Hint:    hint,
	})
}

// ValidationRule is a function that validates configuration
type ValidationRule func(cfg *schema.Root, result *ValidationResult)

// Validator validates configuration
type Validator struct {
	rules []ValidationRule
}

// NewValidator creates a new Validator with default rules
func NewValidator() *Validator {
	v := &Validator{}
	v.AddRule(validateIdentity)
	v.AddRule(validatePeer)
	v.AddRule(validateBridge)
	v.AddRule(validateAPI)
	v.AddRule(validateLog)
	v.AddRule(validateExpose)
	v.AddRule(validateBridges)
	return v
}

// AddRule adds a validation rule
func (v *Validator) AddRule(rule ValidationRule) {
	v.rules = append(v.rules, rule)
}

// Validate validates the configuration
func (v *Validator) Validate(cfg *schema.Root) *ValidationResult {
	result := &ValidationResult{Errors: make([]ValidationError, 0)}
	for _, rule := range v.rules {
		rule(cfg, result)
	}
	return result
}

// ValidateConfig is a convenience function that creates a validator and validates
func ValidateConfig(cfg *schema.Root) *ValidationResult {
	return NewValidator().Validate(cfg)
}

// ============================================================================
// Validation Rules
// ============================================================================

func validateIdentity(cfg *schema.Root, result *ValidationResult) {
	if cfg.Identity != "" && peer.ValidateID(cfg.Identity) != nil {
		result.AddError("identity", cfg.Identity,
			fmt.Sprintf("identity must be %d characters", peer.IDLength),
			"Leave empty to generate a random identity")
	}
}

func validatePeer(cfg *schema.Root, result *ValidationResult) {
	switch cfg.Peer.Carrier {
	case schema.CarrierQUIC, schema.CarrierKCP, schema.CarrierWebSocket, schema.CarrierTCP:
	default:
		result.AddError("peer.carrier", cfg.Peer.Carrier,
			"unknown carrier",
			"Use one of: quic, kcp, websocket, tcp")
	}

	for id, addr := range cfg.Peer.Peers {
		if peer.ValidateID(id) != nil {
			result.AddError("peer.peers", id,
				fmt.Sprintf("peer id must be %d characters", peer.IDLength), "")
		}
		if addr == "" {
			result.AddError("peer.peers."+id, "", "address is required", "")
		}
	}

	if cfg.Peer.PoolSize < 1 {
		result.AddError("peer.pool_size", fmt.Sprintf("%d", cfg.Peer.PoolSize),
			"pool_size must be at least 1", "Set a positive value, e.g., 64")
	}
	if cfg.Peer.DialTimeout < 0 || cfg.Peer.IdleTimeout < 0 || cfg.Peer.KeepAlive < 0 {
		result.AddError("peer", "", "timeouts must not be negative", "")
	}
}

func validateBridge(cfg *schema.Root, result *ValidationResult) {
	if cfg.Bridge.UDPQueueSize < 1 {
		result.AddError("bridge.udp_queue_size", fmt.Sprintf("%d", cfg.Bridge.UDPQueueSize),
			"udp_queue_size must be at least 1", "Set a positive value, e.g., 256")
	}
	if cfg.Bridge.BandwidthLimit < 0 {
		result.AddError("bridge.bandwidth_limit", fmt.Sprintf("%d", cfg.Bridge.BandwidthLimit),
			"bandwidth_limit must not be negative", "Use 0 for unlimited")
	}
	if cfg.Bridge.UDPIdleTimeout < 0 || cfg.Bridge.ShutdownTimeout < 0 || cfg.Bridge.ReadHeaderTimeout < 0 {
		result.AddError("bridge", "", "timeouts must not be negative", "")
	}
}

func validateAPI(cfg *schema.Root, result *ValidationResult) {
	if !cfg.API.Enabled {
		return
	}
	validateListen("api.listen", cfg.API.Listen, result)
}

func validateLog(cfg *schema.Root, result *ValidationResult) {
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		result.AddError("log.level", cfg.Log.Level, "invalid log level", "Use one of: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		result.AddError("log.format", cfg.Log.Format, "invalid log format", "Use text or json")
	}
	switch cfg.Log.Output {
	case "stderr", "discard":
	case "file":
		if cfg.Log.File == "" {
			result.AddError("log.file", "", "file is required when output is file", "")
		}
	default:
		result.AddError("log.output", cfg.Log.Output, "invalid log output", "Use stderr, file or discard")
	}
}

func validateExpose(cfg *schema.Root, result *ValidationResult) {
	if cfg.Expose.Listen == "" {
		return
	}
	if cfg.Expose.TCPTarget == "" && cfg.Expose.UDPTarget == "" {
		result.AddError("expose", cfg.Expose.Listen,
			"at least one of tcp_target and udp_target is required", "")
	}
}

func validateBridges(cfg *schema.Root, result *ValidationResult) {
	for i, b := range cfg.Bridges {
		field := fmt.Sprintf("bridges[%d]", i)
		switch b.Kind {
		case "http", "tcp", "udp", "tcp-udp":
		default:
			result.AddError(field+".kind", b.Kind, "unknown bridge kind", "Use one of: http, tcp, udp, tcp-udp")
		}
		if _, _, err := peer.ParseURL(b.URL); err != nil {
			result.AddError(field+".url", b.URL, err.Error(), "Use kulfi://<id52>/<path>")
		}
	}
}

func validateListen(field, addr string, result *ValidationResult) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		result.AddError(field, addr, "invalid listen address", "Use host:port, e.g., 127.0.0.1:7117")
	}
}
