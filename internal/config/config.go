// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dgit/internal/safe"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `json:"host" yaml:"host" toml:"host"`
		Port int    `json:"port" yaml:"port" toml:"port"`
	} `json:"server" yaml:"server" toml:"server"`

	Database struct {
		Path     string `json:"path" yaml:"path" toml:"path"`
		InMemory bool   `json:"in_memory" yaml:"in_memory" toml:"in_memory"`
	} `json:"database" yaml:"database" toml:"database"`

	Cache struct {
		BlobEntries int `json:"blob_entries" yaml:"blob_entries" toml:"blob_entries"`
	} `json:"cache" yaml:"cache" toml:"cache"`

	Compression safe.CompressionOptions `json:"compression" yaml:"compression" toml:"compression"`

	Decision struct {
		MaxDepth int  `json:"max_depth" yaml:"max_depth" toml:"max_depth"`
		Trace    bool `json:"trace" yaml:"trace" toml:"trace"`
	} `json:"decision" yaml:"decision" toml:"decision"`

	Diff struct {
		ContextLines int `json:"context_lines" yaml:"context_lines" toml:"context_lines"`
	} `json:"diff" yaml:"diff" toml:"diff"`

	Environment string `json:"environment" yaml:"environment" toml:"environment"` // development, production
	LogLevel    string `json:"log_level" yaml:"log_level" toml:"log_level"`       // debug, info, warn, error
}

// Default returns a configuration that works without any file.
func Default() *Config {
	c := &Config{}
	c.Server.Host = "127.0.0.1"
	c.Server.Port = 8080
	c.Database.Path = "data/dgit"
	c.Cache.BlobEntries = safe.DefaultCacheSize
	c.Compression = safe.DefaultCompressionOptions()
	c.Decision.MaxDepth = 16
	c.Decision.Trace = true
	c.Diff.ContextLines = 3
	c.Environment = "development"
	c.LogLevel = "info"
	return c
}

// Path resolves the config file for the environment named by DGIT_ENV.
func Path() string {
	env := os.Getenv("DGIT_ENV")
	if env == "" {
		env = "development"
	}
	return fmt.Sprintf("config/config.%s.json", env)
}

// Load reads path over the defaults. The format follows the extension:
// .json, .yaml/.yml or .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		err = json.Unmarshal(data, config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	case ".toml":
		_, err = toml.Decode(string(data), config)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// LoadOrDefault loads path when it exists and falls back to Default.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Default(), nil
	}
	return Load(path)
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if !c.Database.InMemory && c.Database.Path == "" {
		return fmt.Errorf("database.path is required unless database.in_memory is set")
	}
	if c.Cache.BlobEntries <= 0 {
		return fmt.Errorf("cache.blob_entries must be positive")
	}
	if c.Compression.Level < 1 || c.Compression.Level > 4 {
		return fmt.Errorf("compression.level must be between 1 and 4")
	}
	if c.Compression.MinSize < 0 {
		return fmt.Errorf("compression.min_size cannot be negative")
	}
	if c.Decision.MaxDepth <= 0 {
		return fmt.Errorf("decision.max_depth must be positive")
	}
	if c.Diff.ContextLines < 0 {
		return fmt.Errorf("diff.context_lines cannot be negative")
	}
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
