package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverLocal   = "local"
	DriverElastic = "elastic"
)

// Config holds the sheer server configuration.
type Config struct {
	HTTP       HTTPConfig        `yaml:"http"`
	Engine     EngineConfig      `yaml:"engine"`
	Index      string            `yaml:"index"`
	Root       string            `yaml:"root"`
	Queries    QueriesConfig     `yaml:"queries"`
	Permalinks map[string]string `yaml:"permalinks"` // doc type -> pattern, e.g. /blog/<id>/
	Logging    LoggingConfig     `yaml:"logging"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// EngineConfig selects and configures the search engine.
type EngineConfig struct {
	Driver     string `yaml:"driver"` // local, elastic (default: local)
	URL        string `yaml:"url"`
	DataPath   string `yaml:"data_path"`
	Shards     int    `yaml:"shards"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// QueriesConfig holds the template search path. Empty means <root>/_queries.
type QueriesConfig struct {
	SearchPath []string `yaml:"search_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads path, or config/<env>.yaml when path is empty. A .env file in
// the working directory is loaded first so it can feed ${VAR} expansion.
func Load(path, env string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	if path == "" {
		path = filepath.Join("config", env+".yaml")
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML data, expanding ${VAR} references, then applies
// defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 7000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Engine.Driver == "" {
		c.Engine.Driver = DriverLocal
	}
	if c.Engine.DataPath == "" {
		c.Engine.DataPath = "./data"
	}
	if c.Engine.Shards <= 0 {
		c.Engine.Shards = 1
	}
	if c.Engine.TimeoutSec <= 0 {
		c.Engine.TimeoutSec = 30
	}
	if c.Root == "" {
		c.Root = "."
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Index == "" {
		return fmt.Errorf("index is required")
	}
	switch c.Engine.Driver {
	case DriverLocal:
	case DriverElastic:
		if c.Engine.URL == "" {
			return fmt.Errorf("engine.url is required for the %s driver", DriverElastic)
		}
	default:
		return fmt.Errorf("engine.driver must be %q or %q, got %q", DriverLocal, DriverElastic, c.Engine.Driver)
	}
	for docType, pattern := range c.Permalinks {
		if !strings.HasPrefix(pattern, "/") {
			return fmt.Errorf("permalinks.%s must start with /, got %q", docType, pattern)
		}
	}
	return nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
