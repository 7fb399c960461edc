// Package config loads the engine configuration from a YAML file with
// RELEVANCE_* environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"harshagw/relevance/internal/logger"
	"harshagw/relevance/internal/similarity"
)

// Config is the top-level configuration.
type Config struct {
	Similarity SimilarityConfig `yaml:"similarity"`
	Index      IndexConfig      `yaml:"index"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// SimilarityConfig selects the ranking function and its parameters.
// D is optional; when unset each model uses its own default.
type SimilarityConfig struct {
	Model            string   `yaml:"model"`
	K1               float32  `yaml:"k1"`
	B                float32  `yaml:"b"`
	D                *float32 `yaml:"d,omitempty"`
	DiscountOverlaps bool     `yaml:"discountOverlaps"`
}

// IndexConfig controls where the index lives and when the in-memory
// segment is flushed.
type IndexConfig struct {
	Dir            string `yaml:"dir"`
	FlushThreshold int    `yaml:"flushThreshold"`
	// Synonyms maps a term to the terms indexed at the same position.
	Synonyms map[string][]string `yaml:"synonyms,omitempty"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server. Port 0 disables it.
type MetricsConfig struct {
	Port int `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment
// overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Similarity: SimilarityConfig{
			Model:            "bm25",
			K1:               similarity.DefaultK1,
			B:                similarity.DefaultB,
			DiscountOverlaps: true,
		},
		Index: IndexConfig{
			Dir:            "./data",
			FlushThreshold: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("RELEVANCE_SIMILARITY_MODEL"); v != "" {
		cfg.Similarity.Model = v
	}
	if err := envFloat("RELEVANCE_SIMILARITY_K1", &cfg.Similarity.K1); err != nil {
		return err
	}
	if err := envFloat("RELEVANCE_SIMILARITY_B", &cfg.Similarity.B); err != nil {
		return err
	}
	if v := os.Getenv("RELEVANCE_SIMILARITY_D"); v != "" {
		var d float32
		if err := envFloat("RELEVANCE_SIMILARITY_D", &d); err != nil {
			return err
		}
		cfg.Similarity.D = &d
	}
	if v := os.Getenv("RELEVANCE_SIMILARITY_DISCOUNT_OVERLAPS"); v != "" {
		discount, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing RELEVANCE_SIMILARITY_DISCOUNT_OVERLAPS: %w", err)
		}
		cfg.Similarity.DiscountOverlaps = discount
	}
	if v := os.Getenv("RELEVANCE_INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if err := envInt("RELEVANCE_INDEX_FLUSH_THRESHOLD", &cfg.Index.FlushThreshold); err != nil {
		return err
	}
	if v := os.Getenv("RELEVANCE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RELEVANCE_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if err := envInt("RELEVANCE_METRICS_PORT", &cfg.Metrics.Port); err != nil {
		return err
	}
	return nil
}

func envFloat(key string, dst *float32) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = float32(f)
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", key, err)
	}
	*dst = n
	return nil
}

// Build constructs the configured model. Parameters a model does not take
// are ignored.
func (c SimilarityConfig) Build() (*similarity.Model, error) {
	kind, err := similarity.ParseKind(c.Model)
	if err != nil {
		return nil, err
	}
	opt := similarity.WithDiscountOverlaps(c.DiscountOverlaps)

	var m *similarity.Model
	switch kind {
	case similarity.Classic:
		m, err = similarity.NewBM25(c.K1, c.B, opt)
	case similarity.L:
		m, err = similarity.NewBM25L(c.K1, c.B, c.d(similarity.DefaultD), opt)
	case similarity.Plus:
		m, err = similarity.NewBM25Plus(c.K1, c.B, c.d(similarity.DefaultPlusD), opt)
	case similarity.Robertson:
		m, err = similarity.NewRobertson(c.K1, c.B, opt)
	case similarity.Ltc:
		m = similarity.NewLtc(opt)
	case similarity.Lnc:
		if strings.EqualFold(strings.TrimSpace(c.Model), "lnclpc") {
			m = similarity.NewLncLpc(opt)
		} else {
			m = similarity.NewLnc(opt)
		}
	case similarity.Ldp:
		m, err = similarity.NewLdp(c.B, c.d(similarity.DefaultD), opt)
	}
	if err != nil {
		return nil, fmt.Errorf("similarity %q: %w", c.Model, err)
	}

	logger.WithComponent("similarity").Info("using similarity", "similarity", m.String())
	return m, nil
}

func (c SimilarityConfig) d(def float32) float32 {
	if c.D == nil {
		return def
	}
	return *c.D
}
