// Package config loads runtime settings from the environment, an optional .env file
// and the MCP server list.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/itinera/pkg/adapters/mcp"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Prefix namespaces every variable, e.g. ITINERA_MODEL.
const Prefix = "ITINERA"

// Store drivers.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds all configuration for the itinera binaries.
// Keys with an unprefixed fallback (OPENAI_API_KEY, OPENWEATHER_API_KEY) are read from
// either form, the prefixed one winning.
type Config struct {
	// Model gateway
	Model        string        `envconfig:"MODEL" default:"gpt-4"`
	ModelBaseURL string        `envconfig:"MODEL_BASE_URL"`
	OpenAIAPIKey string        `envconfig:"OPENAI_API_KEY"`
	SystemPrompt string        `envconfig:"SYSTEM_PROMPT"`
	ModelTimeout time.Duration `envconfig:"MODEL_TIMEOUT" default:"2m"`

	// Checkpoint store
	Store         string        `envconfig:"STORE" default:"file"`
	StorePath     string        `envconfig:"STORE_PATH" default:".itinera"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	RedisTTL      time.Duration `envconfig:"REDIS_TTL" default:"0"`
	// RedisLock guards threads across processes; only meaningful with a shared store.
	RedisLock bool `envconfig:"REDIS_LOCK" default:"false"`

	// Encryption at rest (base64 AES-256 keys) and redaction of tool argument keys
	EncryptionKey          string   `envconfig:"ENCRYPTION_KEY"`
	EncryptionFallbackKeys []string `envconfig:"ENCRYPTION_FALLBACK_KEYS"`
	RedactKeys             []string `envconfig:"REDACT_KEYS"`

	// Turn loop
	MaxTurns         int           `envconfig:"MAX_TURNS" default:"8"`
	MaxParallelTools int           `envconfig:"MAX_PARALLEL_TOOLS" default:"4"`
	ToolTimeout      time.Duration `envconfig:"TOOL_TIMEOUT" default:"30s"`
	Concurrency      int           `envconfig:"CONCURRENCY" default:"0"`

	// Tools
	MCPServers        string `envconfig:"MCP_SERVERS"`
	OpenWeatherAPIKey string `envconfig:"OPENWEATHER_API_KEY"`

	// Surfaces and observability
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:":8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"auto"` // auto, json or pretty
}

// Load reads .env files (default ".env"; missing files are ignored) and then the environment.
// Variables already set in the environment are never overridden by a file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables.
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that envconfig cannot.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreFile, StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("config: unknown store %q (want memory, file, sqlite or redis)", c.Store)
	}
	switch c.LogFormat {
	case "auto", "json", "pretty":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	if c.MaxTurns <= 0 {
		return fmt.Errorf("config: max turns must be positive, got %d", c.MaxTurns)
	}
	if c.MaxParallelTools <= 0 {
		return fmt.Errorf("config: max parallel tools must be positive, got %d", c.MaxParallelTools)
	}
	if c.RedisLock && c.Store != StoreRedis {
		return errors.New("config: redis lock requires the redis store")
	}
	if _, _, err := c.EncryptionKeys(); err != nil {
		return err
	}
	return nil
}

// EncryptionKeys decodes the active and fallback keys. active is nil when encryption is off.
func (c *Config) EncryptionKeys() (active []byte, fallback [][]byte, err error) {
	if c.EncryptionKey == "" {
		if len(c.EncryptionFallbackKeys) > 0 {
			return nil, nil, errors.New("config: fallback encryption keys require an active key")
		}
		return nil, nil, nil
	}
	if active, err = decodeKey(c.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("config: encryption key: %w", err)
	}
	for i, k := range c.EncryptionFallbackKeys {
		key, err := decodeKey(k)
		if err != nil {
			return nil, nil, fmt.Errorf("config: fallback encryption key %d: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("not valid base64: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("want 32 bytes, got %d", len(key))
	}
	return key, nil
}

// MCPServer is one entry of the MCP server list.
type MCPServer struct {
	Name string
	mcp.StdioServer
}

type serverFile struct {
	Servers map[string]mcp.StdioServer `yaml:"servers"`
}

// LoadMCPServers reads the YAML server list at path, sorted by name.
// Environment references like ${OPENWEATHER_API_KEY} in env values are expanded.
//
//	servers:
//	  weather:
//	    command: python
//	    args: [weather_mcp.py]
//	    env: {OPENWEATHER_API_KEY: "${OPENWEATHER_API_KEY}"}
func LoadMCPServers(path string) ([]MCPServer, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read MCP server list: %w", err)
	}

	var file serverFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse MCP server list %s: %w", path, err)
	}

	out := make([]MCPServer, 0, len(file.Servers))
	for name, srv := range file.Servers {
		if srv.Command == "" {
			return nil, fmt.Errorf("MCP server %q has no command", name)
		}
		for k, v := range srv.Env {
			srv.Env[k] = os.ExpandEnv(v)
		}
		out = append(out, MCPServer{Name: name, StdioServer: srv})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
