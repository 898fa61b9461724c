package runo

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	defaults "github.com/Paranoid-AF/runo/default"
)

// Model backends.
const (
	BackendNgram  = "ngram"
	BackendRemote = "remote"
)

// Config represents the user's runo configuration.
type Config struct {
	Version  int            `json:"version"`
	Model    ModelConfig    `json:"model"`
	Sampling SamplingConfig `json:"sampling"`
	Server   ServerConfig   `json:"server"`
}

// ModelConfig selects and locates the character model.
type ModelConfig struct {
	// Backend is "ngram" (a local model directory) or "remote" (an HTTP model server).
	Backend string `json:"backend"`
	// Dir holds char2idx.json and, for the ngram backend, model.msgpack.
	Dir            string `json:"dir"`
	BaseURL        string `json:"base_url,omitempty"`
	APIKey         string `json:"api_key,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	// KeepAliveMinutes is how long an idle loaded model stays in memory.
	KeepAliveMinutes int `json:"keep_alive_minutes,omitempty"`
}

// SamplingConfig holds the generation defaults and tuning constants.
type SamplingConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	Lines            int     `json:"lines,omitempty"`
	ProbabilityFloor float64 `json:"probability_floor,omitempty"`
	DegenerateMass   float64 `json:"degenerate_mass,omitempty"`
	KeywordWeight    float64 `json:"keyword_weight,omitempty"`
	KeywordDecay     float64 `json:"keyword_decay,omitempty"`
	KeywordFloor     float64 `json:"keyword_floor,omitempty"`
	// Seed fixes the random source. Zero means a random seed per request.
	Seed uint64 `json:"seed,omitempty"`
}

// ServerConfig holds daemon listener settings.
type ServerConfig struct {
	Socket   string `json:"socket,omitempty"`
	HTTPAddr string `json:"http_addr,omitempty"`
}

// ConfigDir returns the config directory path.
// Resolution order: $RUNO_CONFIG_DIR > $XDG_CONFIG_HOME/runo > ~/.config/runo
func ConfigDir() string {
	if dir := os.Getenv("RUNO_CONFIG_DIR"); dir != "" {
		return dir
	}
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "runo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("/tmp", "runo-config")
	}
	return filepath.Join(home, ".config", "runo")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

// DefaultConfig returns the default configuration from the embedded default_config.json.
func DefaultConfig() *Config {
	var cfg Config
	if err := json.Unmarshal(defaults.DefaultConfigJSON, &cfg); err != nil {
		panic("runo: invalid embedded default_config.json: " + err.Error())
	}
	return &cfg
}

// LoadConfig loads config from disk or returns defaults if not found.
func LoadConfig() (*Config, error) {
	path := ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults(DefaultConfig())
	return &cfg, nil
}

func (cfg *Config) applyDefaults(d *Config) {
	if cfg.Version == 0 {
		cfg.Version = d.Version
	}
	if cfg.Model.Backend == "" {
		cfg.Model.Backend = d.Model.Backend
	}
	if cfg.Model.TimeoutSeconds == 0 {
		cfg.Model.TimeoutSeconds = d.Model.TimeoutSeconds
	}
	if cfg.Model.KeepAliveMinutes == 0 {
		cfg.Model.KeepAliveMinutes = d.Model.KeepAliveMinutes
	}
	if cfg.Sampling.Temperature == 0 {
		cfg.Sampling.Temperature = d.Sampling.Temperature
	}
	if cfg.Sampling.Lines == 0 {
		cfg.Sampling.Lines = d.Sampling.Lines
	}
	if cfg.Sampling.ProbabilityFloor == 0 {
		cfg.Sampling.ProbabilityFloor = d.Sampling.ProbabilityFloor
	}
	if cfg.Sampling.DegenerateMass == 0 {
		cfg.Sampling.DegenerateMass = d.Sampling.DegenerateMass
	}
	if cfg.Sampling.KeywordWeight == 0 {
		cfg.Sampling.KeywordWeight = d.Sampling.KeywordWeight
	}
	if cfg.Sampling.KeywordDecay == 0 {
		cfg.Sampling.KeywordDecay = d.Sampling.KeywordDecay
	}
	if cfg.Sampling.KeywordFloor == 0 {
		cfg.Sampling.KeywordFloor = d.Sampling.KeywordFloor
	}
}

// ValidateConfig checks configuration for potential issues and returns warnings.
func ValidateConfig(cfg *Config) []string {
	var warnings []string
	if cfg == nil {
		return warnings
	}

	switch cfg.Model.Backend {
	case BackendNgram:
		if ResolveModelDir(cfg) == "" {
			warnings = append(warnings, "model.dir is not set; generation is unavailable until a model directory is configured")
		}
	case BackendRemote:
		if ResolveModelBaseURL(cfg) == "" {
			warnings = append(warnings, "model.backend is remote but model.base_url is not set")
		}
		if ResolveModelDir(cfg) == "" {
			warnings = append(warnings, "model.dir is not set; the remote backend still needs char2idx.json")
		}
	default:
		warnings = append(warnings, fmt.Sprintf("unknown model.backend %q; expected %q or %q", cfg.Model.Backend, BackendNgram, BackendRemote))
	}

	s := cfg.Sampling
	if !(s.Temperature > 0) || math.IsInf(s.Temperature, 0) {
		warnings = append(warnings, fmt.Sprintf("sampling.temperature %v must be positive", s.Temperature))
	}
	if s.Lines < 0 {
		warnings = append(warnings, fmt.Sprintf("sampling.lines %d is negative", s.Lines))
	}
	if s.KeywordWeight > 1 {
		warnings = append(warnings, fmt.Sprintf("sampling.keyword_weight %v above 1 injects a keyword on every line", s.KeywordWeight))
	}
	if s.KeywordDecay < 0 || s.KeywordDecay > 1 {
		warnings = append(warnings, fmt.Sprintf("sampling.keyword_decay %v outside [0, 1]", s.KeywordDecay))
	}
	return warnings
}

// ResolveModelDir returns the model directory.
// Priority: $RUNO_MODEL_DIR env > config value.
func ResolveModelDir(cfg *Config) string {
	if dir := os.Getenv("RUNO_MODEL_DIR"); dir != "" {
		return dir
	}
	if cfg != nil {
		return cfg.Model.Dir
	}
	return ""
}

// ResolveModelBaseURL returns the remote model base URL.
// Priority: $RUNO_MODEL_BASE_URL env > config value.
func ResolveModelBaseURL(cfg *Config) string {
	if url := os.Getenv("RUNO_MODEL_BASE_URL"); url != "" {
		return url
	}
	if cfg != nil {
		return cfg.Model.BaseURL
	}
	return ""
}

// ResolveModelAPIKey returns the remote model API key.
// Priority: $RUNO_MODEL_API_KEY env > config value.
func ResolveModelAPIKey(cfg *Config) string {
	if key := os.Getenv("RUNO_MODEL_API_KEY"); key != "" {
		return key
	}
	if cfg != nil {
		return cfg.Model.APIKey
	}
	return ""
}

// ResolveSocketPath returns the daemon socket path.
// Priority: $RUNO_SOCKET env > config value > $XDG_RUNTIME_DIR/runo.sock > /tmp/runo-<uid>.sock
func ResolveSocketPath(cfg *Config) string {
	if path := os.Getenv("RUNO_SOCKET"); path != "" {
		return path
	}
	if cfg != nil && cfg.Server.Socket != "" {
		return cfg.Server.Socket
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "runo.sock")
	}
	return fmt.Sprintf("/tmp/runo-%d.sock", os.Getuid())
}
