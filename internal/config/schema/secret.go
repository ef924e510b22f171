// Package schema defines the peerbridge configuration types
package schema

import (
	"encoding/json"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Secret holds a credential such as the control API token. It prints
// redacted and, when written in YAML as ${VAR}, is read from the environment.
type Secret string

const redacted = "[redacted]"

// String never reveals the value
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// Value returns the raw credential
func (s Secret) Value() string {
	return string(s)
}

// IsEmpty reports whether no credential is set
func (s Secret) IsEmpty() bool {
	return s == ""
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalYAML() (interface{}, error) {
	return s.String(), nil
}

// UnmarshalYAML expands a whole-value ${VAR} reference
func (s *Secret) UnmarshalYAML(node *yaml.Node) error {
	v := node.Value
	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		v = os.Getenv(v[2 : len(v)-1])
	}
	*s = Secret(v)
	return nil
}
