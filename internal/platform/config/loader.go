package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "configs/config.yaml"

// Loader reads configuration from a yaml file, optionally preloading a
// .env file for secret expansion.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader for the default config path.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      defaultConfigPath,
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the configuration file path (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load reads the config file, creating it with defaults when missing.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	path := l.path
	if env := os.Getenv("CLINIVOICE_CONFIG"); env != "" {
		path = env
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := writeConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return &Result{Config: cfg, Path: path}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(cfg)
	return &Result{Config: cfg, Path: path}, nil
}

func writeConfig(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyEnvOverrides maps a small set of deployment-critical variables
// over the file values. Secrets never live in the yaml file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLINIVOICE_AUTH_SECRET"); v != "" {
		cfg.Server.Auth.Secret = v
	}
	if v := os.Getenv("CLINIVOICE_REDIS_ADDR"); v != "" {
		cfg.Audit.Redis.Addr = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		for name, n := range cfg.NLP {
			if n.Type == "openai" && n.APIKey == "" {
				n.APIKey = v
				cfg.NLP[name] = n
			}
		}
	}
}
