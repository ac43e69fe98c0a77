package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	FileName = "partnertrack.yml"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config models partnertrack.yml.
type Config struct {
	Storage struct {
		Backend string `yaml:"backend" json:"backend"`
		Key     string `yaml:"key" json:"key"`
	} `yaml:"storage" json:"storage"`
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
		File   string `yaml:"file" json:"file,omitempty"`
	} `yaml:"log" json:"log"`
	Dashboard struct {
		UrgentDays  int `yaml:"urgent_days" json:"urgent_days"`
		RecentLimit int `yaml:"recent_limit" json:"recent_limit"`
	} `yaml:"dashboard" json:"dashboard"`
	Server struct {
		Addr     string `yaml:"addr" json:"addr"`
		BasePath string `yaml:"base_path" json:"base_path"`
	} `yaml:"server" json:"server"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		return fmt.Errorf("config.storage.backend must be one of file, sqlite, memory (got %q)", c.Storage.Backend)
	}
	if strings.TrimSpace(c.Storage.Key) == "" {
		return errors.New("config.storage.key is required")
	}
	if strings.ContainsAny(c.Storage.Key, `/\`) {
		return fmt.Errorf("config.storage.key %q must not contain path separators", c.Storage.Key)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json (got %q)", c.Log.Format)
	}
	if c.Dashboard.UrgentDays < 0 {
		return errors.New("config.dashboard.urgent_days must not be negative")
	}
	if c.Dashboard.RecentLimit < 0 {
		return errors.New("config.dashboard.recent_limit must not be negative")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with / (got %q)", c.Server.BasePath)
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config: %v", err))
	}
	return &cfg
}

// GenerateDefault returns the default config as YAML text.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the workspace has no config file.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// WriteDefault creates partnertrack.yml in workspace unless it exists.
func WriteDefault(workspace string) (string, error) {
	path := Path(workspace)
	if _, err := os.Stat(path); err == nil {
		return path, fmt.Errorf("config %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return path, err
	}
	return path, os.WriteFile(path, []byte(defaultTemplate), 0o644)
}

const defaultTemplate = `storage:
  # file | sqlite | memory
  backend: file
  key: task_progress_app_v1

log:
  level: info
  format: text
  file: ""

dashboard:
  urgent_days: 7
  recent_limit: 5

server:
  addr: 127.0.0.1:8080
  base_path: /v1
`
