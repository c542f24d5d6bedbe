// Package config loads the cropdoc YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agrisense/cropdoc/internal/classify"
	"github.com/agrisense/cropdoc/internal/verify"
)

// DefaultPath is where the CLI looks for a config file.
const DefaultPath = "cropdoc.yaml"

// Config holds all cropdoc configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Models   ModelsConfig   `yaml:"models"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Port           int    `yaml:"port"`
	RateLimit      string `yaml:"rate_limit"` // limiter format, e.g. "10-S"
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

// ModelsConfig locates the ONNX runtime and graphs.
type ModelsConfig struct {
	RuntimeLibrary string `yaml:"runtime_library"` // onnxruntime shared library; empty uses the loader default

	VerifierModel    string `yaml:"verifier_model"`
	VerifierMetadata string `yaml:"verifier_metadata"`
	VerifierTopK     int    `yaml:"verifier_top_k"`

	// Optional trained condition network. Empty disables it.
	DiseaseModel    string `yaml:"disease_model"`
	DiseaseMetadata string `yaml:"disease_metadata"`

	InferenceTimeout string `yaml:"inference_timeout"`
}

// AnalysisConfig tunes the diagnosis pipeline.
type AnalysisConfig struct {
	ImageSize     int      `yaml:"image_size"`
	TextureWindow int      `yaml:"texture_window"`
	PlantKeywords []string `yaml:"plant_keywords"`
	// FallbackSeed pins the fallback disease pick. Unset derives it from
	// the image fingerprint.
	FallbackSeed *int64              `yaml:"fallback_seed,omitempty"`
	Thresholds   classify.Thresholds `yaml:"thresholds"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
	File   string `yaml:"file"`   // rotated log file; empty logs to stderr only
	MaxAge string `yaml:"max_age"`
}

// Default returns a config with every field set to its default.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			RateLimit:      "10-S",
			MaxUploadBytes: 10 << 20,
		},
		Models: ModelsConfig{
			VerifierModel:    filepath.Join("models", "mobilenet_v2.onnx"),
			VerifierMetadata: filepath.Join("models", "mobilenet_v2.json"),
			VerifierTopK:     5,
			InferenceTimeout: "10s",
		},
		Analysis: AnalysisConfig{
			ImageSize:     224,
			TextureWindow: 5,
			PlantKeywords: append([]string(nil), verify.DefaultKeywords...),
			Thresholds:    classify.DefaultThresholds(),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			MaxAge: "168h",
		},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file yields the defaults only when path is DefaultPath; an
// explicitly named file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case os.IsNotExist(err) && path == DefaultPath:
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("CROPDOC_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CROPDOC_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("CROPDOC_ORT_LIB"); v != "" {
		c.Models.RuntimeLibrary = v
	}
	if v := os.Getenv("CROPDOC_VERIFIER_MODEL"); v != "" {
		c.Models.VerifierModel = v
	}
	if v := os.Getenv("CROPDOC_DISEASE_MODEL"); v != "" {
		c.Models.DiseaseModel = v
	}
	if v := os.Getenv("CROPDOC_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// InferenceTimeout returns the parsed inference timeout, 0 when unset.
func (c *Config) InferenceTimeout() time.Duration {
	return parseDuration(c.Models.InferenceTimeout)
}

// LogMaxAge returns how long rotated log files are kept.
func (c *Config) LogMaxAge() time.Duration {
	if d := parseDuration(c.Logging.MaxAge); d > 0 {
		return d
	}
	return 7 * 24 * time.Hour
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if c.Models.VerifierModel == "" || c.Models.VerifierMetadata == "" {
		return fmt.Errorf("verifier_model and verifier_metadata are required")
	}
	if c.Models.DiseaseModel != "" && c.Models.DiseaseMetadata == "" {
		return fmt.Errorf("disease_metadata is required when disease_model is set")
	}
	if c.Models.InferenceTimeout != "" {
		if _, err := time.ParseDuration(c.Models.InferenceTimeout); err != nil {
			return fmt.Errorf("invalid inference_timeout: %w", err)
		}
	}
	if c.Logging.MaxAge != "" {
		if _, err := time.ParseDuration(c.Logging.MaxAge); err != nil {
			return fmt.Errorf("invalid logging max_age: %w", err)
		}
	}
	if c.Analysis.ImageSize <= 0 {
		return fmt.Errorf("image_size must be positive")
	}
	if c.Analysis.TextureWindow <= 0 || c.Analysis.TextureWindow > c.Analysis.ImageSize {
		return fmt.Errorf("texture_window must be in [1,%d]", c.Analysis.ImageSize)
	}
	if len(c.Analysis.PlantKeywords) == 0 {
		return fmt.Errorf("plant_keywords must not be empty")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %s (valid: json, console)", c.Logging.Format)
	}
	return nil
}
