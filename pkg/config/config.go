package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

const (
	// FileNameJSON is the primary config file, looked up at the repo root.
	FileNameJSON = "commit-story.config.json"
	// FileNameYAML is accepted when the JSON file is absent.
	FileNameYAML = "commit-story.config.yaml"
)

type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderGemini Provider = "gemini"
)

type Protocol string

const (
	ProtocolHTTP Protocol = "http"
	ProtocolGRPC Protocol = "grpc"
)

// Config is loaded once at startup and handed to components as an immutable
// value. Components never read process-wide environment state themselves.
type Config struct {
	// Dev switches telemetry export on. Background hook runs with dev=false
	// emit nothing.
	Dev bool `json:"dev" yaml:"dev"`
	// Debug switches narrative console output on.
	Debug bool `json:"debug" yaml:"debug"`

	JournalDir string `json:"journal_dir" yaml:"journal_dir"`
	// Timezone used for display timestamps: IANA name ("America/Chicago") or
	// fixed offset ("+09:00", "UTC-5"). Empty means system local time.
	Timezone string `json:"timezone" yaml:"timezone"`

	LLM       LLMConfig       `json:"llm" yaml:"llm"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
}

type LLMConfig struct {
	Provider         Provider `json:"provider" yaml:"provider"`
	Model            string   `json:"model" yaml:"model"`
	BaseURL          string   `json:"base_url" yaml:"base_url"`
	TimeoutSeconds   int      `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxContextTokens int      `json:"max_context_tokens" yaml:"max_context_tokens"`

	// APIKey comes from the environment (OPENAI_API_KEY / GEMINI_API_KEY),
	// never from the config file.
	APIKey string `json:"-" yaml:"-"`
}

// Timeout returns the per-section generation deadline.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type TelemetryConfig struct {
	Endpoint    string   `json:"endpoint" yaml:"endpoint"`
	Protocol    Protocol `json:"protocol" yaml:"protocol"`
	ServiceName string   `json:"service_name" yaml:"service_name"`
}

// Default returns the configuration used when no config file exists. The
// model is left empty and resolved per provider by Load.
func Default() Config {
	return Config{
		JournalDir: "journal",
		LLM: LLMConfig{
			Provider:         ProviderOpenAI,
			TimeoutSeconds:   60,
			MaxContextTokens: 32000,
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			Protocol:    ProtocolHTTP,
			ServiceName: "commit-story",
		},
	}
}

// DefaultModel returns the model used when the config omits llm.model.
func DefaultModel(p Provider) string {
	if p == ProviderGemini {
		return "gemini-2.0-flash"
	}
	return "gpt-4o-mini"
}

// Load reads the config file from repoRoot (JSON first, YAML variant as a
// fallback), applies environment overrides, and validates the result. A
// missing file yields defaults.
func Load(repoRoot string) (Config, error) {
	cfg := Default()

	jsonPath := filepath.Join(repoRoot, FileNameJSON)
	yamlPath := filepath.Join(repoRoot, FileNameYAML)

	switch {
	case fileExists(jsonPath):
		data, err := os.ReadFile(jsonPath)
		if err != nil {
			return Config{}, goerr.Wrap(err, "failed to read config", goerr.V("path", jsonPath))
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, goerr.Wrap(err, "failed to parse config", goerr.V("path", jsonPath))
		}
	case fileExists(yamlPath):
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return Config{}, goerr.Wrap(err, "failed to read config", goerr.V("path", yamlPath))
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, goerr.Wrap(err, "failed to parse config", goerr.V("path", yamlPath))
		}
	}

	applyEnvOverrides(&cfg)
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultModel(cfg.LLM.Provider)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := parseBoolEnv("COMMIT_STORY_DEV"); ok {
		cfg.Dev = v
	}
	if v, ok := parseBoolEnv("COMMIT_STORY_DEBUG"); ok {
		cfg.Debug = v
	}

	switch cfg.LLM.Provider {
	case ProviderGemini:
		cfg.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
	default:
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

func parseBoolEnv(key string) (bool, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return v, true
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return goerr.New("unsupported llm provider", goerr.V("provider", c.LLM.Provider))
	}
	switch c.Telemetry.Protocol {
	case ProtocolHTTP, ProtocolGRPC:
	default:
		return goerr.New("unsupported telemetry protocol", goerr.V("protocol", c.Telemetry.Protocol))
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return goerr.New("llm timeout must be positive", goerr.V("timeout_seconds", c.LLM.TimeoutSeconds))
	}
	if c.LLM.MaxContextTokens <= 0 {
		return goerr.New("max context tokens must be positive", goerr.V("max_context_tokens", c.LLM.MaxContextTokens))
	}
	if c.LLM.Model == "" {
		return goerr.New("llm model is empty")
	}
	if c.JournalDir == "" {
		return goerr.New("journal_dir is empty")
	}
	if filepath.IsAbs(c.JournalDir) {
		return goerr.New("journal_dir must be relative to the repository root", goerr.V("journal_dir", c.JournalDir))
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the display timezone. Accepts IANA names and fixed
// offsets like "+09:00", "-0530", "UTC+8".
func (c Config) Location() (*time.Location, error) {
	return resolveLocation(c.Timezone)
}

func resolveLocation(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local, nil
	}

	if loc, ok := parseFixedOffset(tz); ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid timezone", goerr.V("timezone", tz))
	}
	return loc, nil
}

// parseFixedOffset handles "+09:00", "-0530", "UTC+8", "GMT-05:00".
func parseFixedOffset(raw string) (*time.Location, bool) {
	s := strings.TrimSpace(raw)
	u := strings.ToUpper(s)
	if strings.HasPrefix(u, "UTC") || strings.HasPrefix(u, "GMT") {
		s = strings.TrimSpace(s[3:])
		if s == "" {
			return time.UTC, true
		}
	}
	if s == "" {
		return nil, false
	}

	sign := 1
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		sign = -1
		s = s[1:]
	default:
		return nil, false
	}

	var hours, mins int
	var err error
	switch {
	case strings.Contains(s, ":"):
		parts := strings.SplitN(s, ":", 2)
		if hours, err = strconv.Atoi(parts[0]); err != nil {
			return nil, false
		}
		if mins, err = strconv.Atoi(parts[1]); err != nil {
			return nil, false
		}
	case len(s) == 4:
		if hours, err = strconv.Atoi(s[:2]); err != nil {
			return nil, false
		}
		if mins, err = strconv.Atoi(s[2:]); err != nil {
			return nil, false
		}
	default:
		if hours, err = strconv.Atoi(s); err != nil {
			return nil, false
		}
	}

	if hours > 14 || mins > 59 {
		return nil, false
	}

	offset := sign * (hours*3600 + mins*60)
	name := "UTC" + raw
	if strings.HasPrefix(strings.ToUpper(raw), "UTC") || strings.HasPrefix(strings.ToUpper(raw), "GMT") {
		name = raw
	}
	return time.FixedZone(name, offset), true
}
