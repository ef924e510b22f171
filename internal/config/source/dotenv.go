package source

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"peerbridge/internal/config/schema"
	corelog "peerbridge/internal/core/log"
)

// DotEnvSource loads .env files into the process environment.
// Values already present in the environment win; the EnvSource that
// follows in the chain applies them to the config.
type DotEnvSource struct {
	dirs []string
}

// NewDotEnvSource creates a new DotEnvSource searching dirs in order
func NewDotEnvSource(dirs []string) *DotEnvSource {
	return &DotEnvSource{dirs: dirs}
}

// Name returns the source name
func (s *DotEnvSource) Name() string {
	return "dotenv"
}

// Priority returns the source priority
func (s *DotEnvSource) Priority() int {
	return PriorityDotEnv
}

// LoadInto loads .env and .env.local from each directory
func (s *DotEnvSource) LoadInto(_ *schema.Root) error {
	for _, dir := range s.dirs {
		for _, name := range []string{".env.local", ".env"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err != nil {
				continue
			}
			// godotenv.Load never overrides variables that are already set
			if err := godotenv.Load(path); err != nil {
				corelog.Warnf("Failed to load %s: %v", path, err)
				continue
			}
			corelog.Debugf("Loaded env file: %s", path)
		}
	}
	return nil
}

// FindDotEnvDirs returns the directories searched for .env files
func FindDotEnvDirs(configFile string) []string {
	var dirs []string
	if configFile != "" {
		if dir := filepath.Dir(configFile); dir != "" && dir != "." {
			dirs = append(dirs, dir)
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".peerbridge"))
	}
	return dirs
}
