// Package config loads the service configuration from a YAML file, a .env file
// and environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	GraphIncident  = "incident"
	GraphAssistant = "assistant"
)

type AgentConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	BaseURL     string   `yaml:"base_url,omitempty"`
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Tools       []string `yaml:"tools,omitempty"`
	// ToolsFile declares process-backed tools.
	ToolsFile     string `yaml:"tools_file,omitempty"`
	MaxToolTurns  int    `yaml:"max_tool_turns,omitempty"`
	FormatRetries int    `yaml:"format_retries,omitempty"`
}

type MetricsConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"`
	Queries  []string      `yaml:"queries,omitempty"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db,omitempty"`
	RunTTL   time.Duration `yaml:"run_ttl,omitempty"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

type WorkflowConfig struct {
	// Graph selects the compiled workflow: incident or assistant.
	Graph string `yaml:"graph,omitempty"`
	// MaxAttempts bounds the verify/retry loop. It has no default.
	MaxAttempts int `yaml:"max_attempts"`
	TopK        int `yaml:"top_k,omitempty"`
}

type RemediationConfig struct {
	WebhookURL string        `yaml:"webhook_url,omitempty"`
	LockTTL    time.Duration `yaml:"lock_ttl,omitempty"`
}

// RunsConfig protects persisted runs. Keys are base64 encoded 32 byte AES keys.
type RunsConfig struct {
	EncryptionKey string   `yaml:"encryption_key,omitempty"`
	FallbackKeys  []string `yaml:"fallback_keys,omitempty"`
	// RedactKeys are regular expressions; matching state value keys are masked.
	RedactKeys []string `yaml:"redact_keys,omitempty"`
}

// Keys decodes the encryption keys. The first is the active key; it is nil
// when encryption is off.
func (r RunsConfig) Keys() ([][]byte, error) {
	if r.EncryptionKey == "" {
		return nil, nil
	}
	var keys [][]byte
	for _, k := range append([]string{r.EncryptionKey}, r.FallbackKeys...) {
		b, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return nil, fmt.Errorf("runs: encryption key is not base64: %w", err)
		}
		if len(b) != 32 {
			return nil, fmt.Errorf("runs: encryption key must be 32 bytes, got %d", len(b))
		}
		keys = append(keys, b)
	}
	return keys, nil
}

type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Config is the full service configuration.
type Config struct {
	Agent       AgentConfig       `yaml:"agent"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Redis       RedisConfig       `yaml:"redis"`
	Server      ServerConfig      `yaml:"server"`
	Workflow    WorkflowConfig    `yaml:"workflow"`
	Remediation RemediationConfig `yaml:"remediation"`
	Runs        RunsConfig        `yaml:"runs"`
	Log         LogConfig         `yaml:"log"`
}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped; variables already set are kept.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads path (optional) and applies environment overrides, then defaults,
// then validation.
func Load(path string) (*Config, error) {
	return LoadWith(path, os.LookupEnv)
}

// LoadWith is Load with a custom environment.
func LoadWith(path string, lookup LookupFunc) (*Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decodeYAMLStrict(b, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decodeYAMLStrict(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("AGENT_PROVIDER", &cfg.Agent.Provider)
	str("AGENT_MODEL", &cfg.Agent.Model)
	str("AGENT_BASE_URL", &cfg.Agent.BaseURL)
	str("AGENT_TOOLS_FILE", &cfg.Agent.ToolsFile)
	if v, ok := lookup("AGENT_TEMPERATURE"); ok && strings.TrimSpace(v) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("AGENT_TEMPERATURE: %w", err))
		} else {
			cfg.Agent.Temperature = f
		}
	}
	num("AGENT_MAX_TOKENS", &cfg.Agent.MaxTokens)
	if v, ok := lookup("AGENT_TOOLS"); ok && strings.TrimSpace(v) != "" {
		cfg.Agent.Tools = splitList(v)
	}
	str("METRICS_ENDPOINT", &cfg.Metrics.Endpoint)
	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("PORT", &cfg.Server.Port)
	str("WORKFLOW_GRAPH", &cfg.Workflow.Graph)
	num("WORKFLOW_MAX_ATTEMPTS", &cfg.Workflow.MaxAttempts)
	str("REMEDIATION_WEBHOOK_URL", &cfg.Remediation.WebhookURL)
	str("RUNS_ENCRYPTION_KEY", &cfg.Runs.EncryptionKey)
	str("LOG_LEVEL", &cfg.Log.Level)
	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Agent.Provider == "" {
		cfg.Agent.Provider = ProviderOpenAI
	}
	cfg.Agent.Provider = strings.ToLower(cfg.Agent.Provider)
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 2048
	}
	if cfg.Workflow.Graph == "" {
		cfg.Workflow.Graph = GraphIncident
	}
	cfg.Workflow.Graph = strings.ToLower(cfg.Workflow.Graph)
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Workflow.MaxAttempts <= 0 {
		errs = append(errs, errors.New("workflow.max_attempts is required and must be > 0"))
	}
	switch c.Agent.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("agent.provider %q is not supported", c.Agent.Provider))
	}
	switch c.Workflow.Graph {
	case GraphIncident, GraphAssistant:
	default:
		errs = append(errs, fmt.Errorf("workflow.graph %q must be incident or assistant", c.Workflow.Graph))
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, fmt.Errorf("agent.temperature must be within [0, 2]"))
	}
	if c.Agent.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("agent.max_tokens must be >= 0"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Workflow.TopK < 0 {
		errs = append(errs, fmt.Errorf("workflow.top_k must be >= 0"))
	}
	if _, err := c.Runs.Keys(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
