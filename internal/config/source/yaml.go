package source

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"peerbridge/internal/config/schema"
	coreerrors "peerbridge/internal/core/errors"
)

// ConfigFileName is the file searched for when no path is given
const ConfigFileName = "peerbridge.yaml"

// YAMLSource loads configuration from YAML files
type YAMLSource struct {
	paths []string
}

// NewYAMLSource creates a new YAMLSource with the specified file paths
func NewYAMLSource(paths ...string) *YAMLSource {
	return &YAMLSource{paths: paths}
}

// Name returns the source name
func (s *YAMLSource) Name() string {
	return "yaml"
}

// Priority returns the source priority
func (s *YAMLSource) Priority() int {
	return PriorityYAML
}

// LoadInto loads YAML configuration into the config structure
// Files are loaded in order, with later files overriding earlier ones
func (s *YAMLSource) LoadInto(cfg *schema.Root) error {
	for _, path := range s.paths {
		if path == "" {
			continue
		}

		expandedPath, err := expandPath(path)
		if err != nil {
			return coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to expand path %q", path)
		}

		data, err := os.ReadFile(expandedPath)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to read config file %q", expandedPath)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return coreerrors.Wrapf(err, coreerrors.CodeConfigError, "failed to parse YAML file %q", expandedPath)
		}
	}
	return nil
}

// FindConfigFile returns configFile if given, otherwise the first existing
// peerbridge.yaml in the working directory, the executable directory or ~/.peerbridge
func FindConfigFile(configFile string) string {
	if configFile != "" {
		if expanded, err := expandPath(configFile); err == nil {
			return expanded
		}
		return configFile
	}

	for _, path := range searchPaths() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func searchPaths() []string {
	paths := []string{filepath.Join(".", ConfigFileName)}
	if execPath, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(execPath), ConfigFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".peerbridge", ConfigFileName))
	}
	return paths
}

// expandPath expands a leading ~ to the user's home directory
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(homeDir, path[1:])
	}
	return filepath.Clean(path), nil
}
