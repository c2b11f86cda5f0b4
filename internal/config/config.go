// Package config loads the exam-diagrams configuration from YAML, merged
// over built-in defaults and overridden by environment variables.
package config

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/ironsheep/exam-diagrams/internal/cascade"
	"github.com/ironsheep/exam-diagrams/internal/detection"
	"github.com/ironsheep/exam-diagrams/internal/model"
	"github.com/ironsheep/exam-diagrams/internal/pipeline"
)

// Environment variables read by Load.
const (
	EnvAPIKey   = "GEMINI_API_KEY"
	EnvLogLevel = "EXAMDIAG_LOG_LEVEL"
	EnvModel    = "EXAMDIAG_MODEL"
	EnvBaseURL  = "EXAMDIAG_BASE_URL"
)

// Config is the complete configuration.
type Config struct {
	pipeline.Config `yaml:",inline"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Model     model.Config     `yaml:"model"`
	OCR       OCRConfig        `yaml:"ocr"`
	Detection detection.Params `yaml:"detection"`
	Cascade   cascade.Options  `yaml:"cascade"`
	Store     StoreConfig      `yaml:"store"`
	Export    ExportConfig     `yaml:"export"`
}

// OCRConfig controls the local OCR fallback.
type OCRConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Language string `yaml:"language"`
}

// StoreConfig names the SQLite database. Empty disables the store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ExportConfig names the output files. A relative path is resolved against
// the output directory; an empty workbook path disables the workbook.
type ExportConfig struct {
	JSON     string `yaml:"json"`
	Workbook string `yaml:"workbook"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Config:    pipeline.DefaultConfig(),
		LogLevel:  "info",
		LogFormat: "text",
		Model:     model.DefaultConfig(),
		OCR:       OCRConfig{Enabled: true, Language: "eng"},
		Detection: detection.DefaultParams(),
		Cascade:   cascade.DefaultOptions(),
		Export:    ExportConfig{JSON: "enriched/enriched_questions.json"},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. An empty path uses the defaults alone.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.Model.APIKey = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model.Model = v
	}
	if v := os.Getenv(EnvBaseURL); v != "" {
		c.Model.BaseURL = v
	}
}

// Validate rejects values the pipeline cannot run with.
func (c Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if c.DPI <= 0 {
		return errors.Errorf("dpi must be positive, got %d", c.DPI)
	}
	if c.BatchSize <= 0 {
		return errors.Errorf("batch_size must be positive, got %d", c.BatchSize)
	}
	if c.BatchDelay < 0 {
		return errors.Errorf("batch_delay must not be negative, got %s", c.BatchDelay)
	}
	if c.Cascade.HeuristicTop < 0 || c.Cascade.HeuristicBottom > 1 || c.Cascade.HeuristicTop >= c.Cascade.HeuristicBottom {
		return errors.Errorf("heuristic band %.2f..%.2f must lie within 0..1", c.Cascade.HeuristicTop, c.Cascade.HeuristicBottom)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return errors.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return 0, errors.Errorf("invalid log_level %q", c.LogLevel)
	}
	return level, nil
}

// Logger builds the slog logger described by the configuration.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := c.Level()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Write saves the configuration as YAML, omitting the API key.
func (c Config) Write(w io.Writer) error {
	c.Model.APIKey = ""
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "encode config")
	}
	return enc.Close()
}
