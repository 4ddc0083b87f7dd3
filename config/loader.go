package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigFile is looked up in the working directory and its parents
	ProjectConfigFile = "eddata.yaml"
	// UserConfigDir is relative to the home directory
	UserConfigDir = ".config/eddata"
		UserConfigFile = "config.yaml"
	// EnvFile is the dotenv file read from the working directory
	EnvFile = ".env"
)

// Environment variables that override file configuration.
const (
	EnvDatabaseURL = "DB_URL"
	EnvCacheDir    = "EDDATA_CACHE_DIR"
	EnvRedisURL    = "REDIS_URL"
)

// Loader merges the configuration layers into one Config
type Loader struct {
	logger *slog.Logger

	// explicit config file, replaces the user/project lookup when set
	path string
}

// NewLoader creates a loader that logs the layers it reads to logger.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger}
}

// WithFile makes the loader read only the given file instead of the user and project files.
func (l *Loader) WithFile(path string) *Loader {
	l.path = path
	return l
}

// Load merges, later layers winning:
// 1. Default config
// 2. User config (~/.config/eddata/config.yaml)
// 3. Project config (eddata.yaml in current or parent directories)
// 4. .env in the working directory (does not override the real environment)
// 5. Environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	if l.path != "" {
		layer, err := loadLayer(l.path)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", l.path))
		config.Merge(layer)
	} else {
		l.mergeOptional(config, l.userConfigPath(), "user")
		if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
			l.mergeOptional(config, projectConfigPath, "project")
		} else {
			l.logger.Debug("No project config found")
		}
	}

	if err := godotenv.Load(EnvFile); err == nil {
		l.logger.Debug("Loaded env file", slog.String("path", EnvFile))
	} else if !os.IsNotExist(err) {
		l.logger.Warn("Failed to load env file", slog.String("path", EnvFile), slog.String("error", err.Error()))
	}

	applyEnv(config)

	if config.Wikidata.CacheDir == "" {
		config.Wikidata.CacheDir = DefaultCacheDir()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// EnsureUserConfig writes the defaults to the user config file unless it exists.
// It returns the file path and whether it was created.
func (l *Loader) EnsureUserConfig() (string, bool, error) {
	path := l.userConfigPath()
	if path == "" {
		return "", false, fmt.Errorf("no home directory for the user config")
	}
	if _, err := os.Stat(path); err == nil {
		return path, false, nil
	}

	if err := DefaultConfig().SaveToFile(path); err != nil {
		return path, false, err
	}
	l.logger.Info("Created default user config", slog.String("path", path))
	return path, true, nil
}

// DefaultCacheDir returns the knowledge-graph cache directory under the user's home,
// falling back to the temp dir.
func DefaultCacheDir() string {
	base, err := os.UserHomeDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, ".cache", "data-for-good", "semantic_schools", "wikidata")
}

func (l *Loader) mergeOptional(config *Config, path, kind string) {
	if path == "" {
		return
	}
	layer, err := loadLayer(path)
	switch {
	case err == nil:
		l.logger.Debug("Loaded "+kind+" config", slog.String("path", path))
		config.Merge(layer)
	case os.IsNotExist(err):
	default:
		l.logger.Warn("Failed to load "+kind+" config", slog.String("path", path), slog.String("error", err.Error()))
	}
}

// loadLayer parses a file into an empty Config so Merge only sees the keys the file sets.
func loadLayer(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	layer := &Config{}
	if err := yaml.Unmarshal(data, layer); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return layer, nil
}

func applyEnv(config *Config) {
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		config.Database.URL = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		config.Wikidata.CacheDir = v
	}
	if v := os.Getenv(EnvRedisURL); v != "" {
		config.Wikidata.RedisURL = v
	}
}

func (l *Loader) userConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for eddata.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
