// Package config loads editor-mcp settings: defaults in code, then an
// optional YAML file, then environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// DefaultSystemPrompt opens every conversation sent to the backend.
const DefaultSystemPrompt = "You are a helpful coding assistant with access to the user's Pulsar editor IDE."

// Session host kinds.
const (
	SessionHostMemory = "memory"
	SessionHostRedis  = "redis"
)

// Auth modes.
const (
	AuthNone  = "none"
	AuthHS256 = "hs256"
	AuthJWKS  = "jwks"
	AuthOIDC  = "oidc"
)

// Config holds all editor-mcp configuration. Environment variables override
// file values; unset variables leave them alone.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Agent    AgentConfig    `yaml:"agent"`
	Server   ServerConfig   `yaml:"server"`
	Project  ProjectConfig  `yaml:"project"`
	Sessions SessionsConfig `yaml:"sessions"`
	Auth     AuthConfig     `yaml:"auth"`
	LogLevel string         `yaml:"log_level" env:"EDITOR_MCP_LOG_LEVEL"`
}

// BackendConfig points at an OpenAI-compatible chat completions API.
type BackendConfig struct {
	Endpoint     string `yaml:"endpoint" env:"EDITOR_MCP_API_ENDPOINT"`
	APIKey       string `yaml:"api_key" env:"EDITOR_MCP_API_KEY"`
	DefaultModel string `yaml:"default_model" env:"EDITOR_MCP_MODEL"`
	MaxTokens    int    `yaml:"max_tokens" env:"EDITOR_MCP_MAX_TOKENS"`
	// ModelsTTL bounds how long the model list is cached.
	ModelsTTL time.Duration `yaml:"models_ttl" env:"EDITOR_MCP_MODELS_TTL"`
}

type AgentConfig struct {
	SystemPrompt string        `yaml:"system_prompt" env:"EDITOR_MCP_SYSTEM_PROMPT"`
	MaxRounds    int           `yaml:"max_rounds" env:"EDITOR_MCP_MAX_ROUNDS"`
	CallTimeout  time.Duration `yaml:"call_timeout" env:"EDITOR_MCP_CALL_TIMEOUT"`
	SchemaTTL    time.Duration `yaml:"schema_ttl" env:"EDITOR_MCP_SCHEMA_TTL"`
}

type ServerConfig struct {
	Address string `yaml:"address" env:"EDITOR_MCP_ADDRESS"`
	Port    int    `yaml:"port" env:"EDITOR_MCP_PORT"`
	// PublicEndpoint is the externally visible MCP URL. Derived from the
	// port when empty.
	PublicEndpoint string        `yaml:"public_endpoint" env:"EDITOR_MCP_PUBLIC_ENDPOINT"`
	IdleTimeout    time.Duration `yaml:"idle_timeout" env:"EDITOR_MCP_IDLE_TIMEOUT"`
}

type ProjectConfig struct {
	Roots  []string `yaml:"roots" env:"EDITOR_MCP_PROJECT_ROOTS"`
	Ignore []string `yaml:"ignore" env:"EDITOR_MCP_IGNORE"`
}

type SessionsConfig struct {
	Host      string `yaml:"host" env:"EDITOR_MCP_SESSION_HOST"`
	RedisAddr string `yaml:"redis_addr" env:"EDITOR_MCP_REDIS_ADDR"`
	KeyPrefix string `yaml:"key_prefix" env:"EDITOR_MCP_REDIS_KEY_PREFIX"`
}

type AuthConfig struct {
	Mode      string   `yaml:"mode" env:"EDITOR_MCP_AUTH_MODE"`
	Secret    string   `yaml:"secret" env:"EDITOR_MCP_AUTH_SECRET"`
	JWKSURL   string   `yaml:"jwks_url" env:"EDITOR_MCP_AUTH_JWKS_URL"`
	Issuer    string   `yaml:"issuer" env:"EDITOR_MCP_AUTH_ISSUER"`
	Audiences []string `yaml:"audiences" env:"EDITOR_MCP_AUTH_AUDIENCES"`
	Scopes    []string `yaml:"scopes" env:"EDITOR_MCP_AUTH_SCOPES"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			Endpoint:     "https://api.openai.com",
			DefaultModel: "gpt-4o",
			MaxTokens:    1000,
			ModelsTTL:    10 * time.Minute,
		},
		Agent: AgentConfig{
			SystemPrompt: DefaultSystemPrompt,
			MaxRounds:    10,
			CallTimeout:  60 * time.Second,
			SchemaTTL:    30 * time.Second,
		},
		Server: ServerConfig{
			Address: "127.0.0.1",
			Port:    3000,
		},
		Project: ProjectConfig{
			Ignore: []string{"**/.git/**", "**/node_modules/**"},
		},
		Sessions: SessionsConfig{
			Host:      SessionHostMemory,
			RedisAddr: "localhost:6379",
			KeyPrefix: "editor-mcp:sessions:",
		},
		Auth:     AuthConfig{Mode: AuthNone},
		LogLevel: "info",
	}
}

// DefaultSearchPaths returns the config file search order:
// ./editor-mcp.yaml, then ~/.config/editor-mcp/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"editor-mcp.yaml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "editor-mcp", "config.yaml"))
	}
	return paths
}

// Load builds the effective configuration. An explicit path must exist;
// otherwise the first existing DefaultSearchPaths entry is used, if any.
func Load(path string) (*Config, error) {
	cfg := Default()

	file, err := findConfig(path)
	if err != nil {
		return nil, err
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", file, err)
		}
	}

	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}
	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Agent.MaxRounds <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_rounds must be positive: %d", c.Agent.MaxRounds))
	}
	switch c.Sessions.Host {
	case SessionHostMemory, SessionHostRedis:
	default:
		errs = append(errs, fmt.Errorf("sessions.host must be %q or %q, got %q", SessionHostMemory, SessionHostRedis, c.Sessions.Host))
	}
	switch strings.ToLower(c.Auth.Mode) {
	case AuthNone, "":
	case AuthHS256:
		if c.Auth.Secret == "" {
			errs = append(errs, errors.New("auth.secret is required for hs256"))
		}
	case AuthJWKS:
		if c.Auth.JWKSURL == "" {
			errs = append(errs, errors.New("auth.jwks_url is required for jwks"))
		}
	case AuthOIDC:
		if c.Auth.Issuer == "" {
			errs = append(errs, errors.New("auth.issuer is required for oidc"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.mode %q", c.Auth.Mode))
	}
	return errors.Join(errs...)
}

// ListenAddr is the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// MCPEndpoint is the public URL of the MCP endpoint.
func (c *Config) MCPEndpoint() string {
	if c.Server.PublicEndpoint != "" {
		return c.Server.PublicEndpoint
	}
	return fmt.Sprintf("http://localhost:%d/mcp", c.Server.Port)
}
