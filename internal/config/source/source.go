// Package source provides configuration source abstractions and implementations
package source

import (
	"peerbridge/internal/config/schema"
)

// Source is the interface for configuration sources
// Each source loads configuration into a strongly-typed Root structure
type Source interface {
	// Name returns the source name for logging and error messages
	Name() string

	// Priority returns the source priority (higher = more important)
	Priority() int

	// LoadInto loads configuration into the provided config structure,
	// overriding values set by lower-priority sources
	LoadInto(cfg *schema.Root) error
}

// Source priorities, lowest first
const (
	PriorityDefaults = 1
	PriorityYAML     = 2
	PriorityDotEnv   = 3
	PriorityEnv      = 4
)

// ByPriority implements sort.Interface for []Source based on Priority
type ByPriority []Source

func (a ByPriority) Len() int           { return len(a) }
func (a ByPriority) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ByPriority) Less(i, j int) bool { return a[i].Priority() < a[j].Priority() }
