// Package loader provides multi-source configuration loading
package loader

import (
	"sort"

	"peerbridge/internal/config/schema"
	"peerbridge/internal/config/source"
	"peerbridge/internal/config/validator"
	coreerrors "peerbridge/internal/core/errors"
	corelog "peerbridge/internal/core/log"
)

// Loader loads configuration from multiple sources in priority order
type Loader struct {
	sources      []source.Source
	skipValidate bool
}

// NewLoader creates a new Loader
func NewLoader() *Loader {
	return &Loader{sources: make([]source.Source, 0)}
}

// AddSource adds a configuration source
func (l *Loader) AddSource(s source.Source) {
	l.sources = append(l.sources, s)
}

// SetSkipValidate disables validation after loading
func (l *Loader) SetSkipValidate(skip bool) {
	l.skipValidate = skip
}

// Load loads configuration from all sources in priority order.
// Lower priority sources are loaded first, then higher priority sources override.
func (l *Loader) Load() (*schema.Root, error) {
	if len(l.sources) == 0 {
		return nil, coreerrors.New(coreerrors.CodeConfigError, "no configuration sources registered")
	}

	sorted := make([]source.Source, len(l.sources))
	copy(sorted, l.sources)
	sort.Stable(source.ByPriority(sorted))

	cfg := &schema.Root{}
	for _, s := range sorted {
		corelog.Debugf("Loading configuration from source: %s (priority %d)", s.Name(), s.Priority())
		if err := s.LoadInto(cfg); err != nil {
			return nil, coreerrors.Wrapf(err, coreerrors.CodeConfigError,
				"failed to load configuration from source %s", s.Name())
		}
	}

	if !l.skipValidate {
		if result := validator.ValidateConfig(cfg); !result.IsValid() {
			return nil, coreerrors.New(coreerrors.CodeConfigError, result.Error())
		}
	}
	return cfg, nil
}

// LoaderBuilder helps build a Loader with the standard source chain
type LoaderBuilder struct {
	loader       *Loader
	prefix       string
	configFile   string
	enableDotEnv bool
	skipValidate bool
}

// NewLoaderBuilder creates a new LoaderBuilder
func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{
		loader:       NewLoader(),
		prefix:       source.EnvPrefix,
		enableDotEnv: true,
	}
}

// WithPrefix sets the environment variable prefix
func (b *LoaderBuilder) WithPrefix(prefix string) *LoaderBuilder {
	b.prefix = prefix
	return b
}

// WithConfigFile sets the configuration file path
func (b *LoaderBuilder) WithConfigFile(path string) *LoaderBuilder {
	b.configFile = path
	return b
}

// WithDotEnv enables or disables .env file loading
func (b *LoaderBuilder) WithDotEnv(enabled bool) *LoaderBuilder {
	b.enableDotEnv = enabled
	return b
}

// WithSkipValidate disables validation
func (b *LoaderBuilder) WithSkipValidate(skip bool) *LoaderBuilder {
	b.skipValidate = skip
	return b
}

// Build creates the configured Loader: defaults, YAML, .env, environment
func (b *LoaderBuilder) Build() *Loader {
	b.loader.AddSource(source.NewDefaultSource())

	configFile := source.FindConfigFile(b.configFile)
	if configFile != "" {
		b.loader.AddSource(source.NewYAMLSource(configFile))
		corelog.Debugf("Using config file: %s", configFile)
	}

	if b.enableDotEnv {
		b.loader.AddSource(source.NewDotEnvSource(source.FindDotEnvDirs(configFile)))
	}

	b.loader.AddSource(source.NewEnvSource(b.prefix))
	b.loader.SetSkipValidate(b.skipValidate)
	return b.loader
}

// Load is a convenience function that builds the standard loader and loads configuration
func Load(configFile string) (*schema.Root, error) {
	return NewLoaderBuilder().WithConfigFile(configFile).Build().Load()
}
