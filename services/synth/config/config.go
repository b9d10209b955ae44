// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads synthesis engine configuration.
//
// Priority is env > file > defaults. Files are parsed as YAML first and
// JSON second. Environment variables use the SYNTH_ prefix.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianSynth/pkg/logging"
	"github.com/AleutianAI/AleutianSynth/pkg/telemetry"
	"github.com/AleutianAI/AleutianSynth/services/synth/cache"
	"github.com/AleutianAI/AleutianSynth/services/synth/learner"
	"github.com/AleutianAI/AleutianSynth/services/synth/routing"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SYNTH_"

var validate = validator.New()

// Config is the full engine configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// MaxIterations is the synthesize-invocation budget shared by one call tree.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations" validate:"gte=1"`

	// MaxDepth forces leaves at this recursion depth.
	MaxDepth int `json:"max_depth" yaml:"max_depth" validate:"gte=0"`

	// ParallelSubproblems solves independent subproblems of a wave concurrently.
	ParallelSubproblems bool `json:"parallel_subproblems" yaml:"parallel_subproblems"`

	// MaxParallelism bounds concurrent subproblems per wave.
	MaxParallelism int `json:"max_parallelism" yaml:"max_parallelism" validate:"gte=1"`

	// StopOnFirstValid disables next-ranked strategy retries.
	StopOnFirstValid bool `json:"stop_on_first_valid" yaml:"stop_on_first_valid"`

	// MaxValidationRetries bounds strategy retries and leaf regenerations.
	MaxValidationRetries int `json:"max_validation_retries" yaml:"max_validation_retries" validate:"gte=0"`

	// ValidationTimeoutMS is the per-attempt collaborator timeout. Zero disables it.
	ValidationTimeoutMS int `json:"validation_timeout_ms" yaml:"validation_timeout_ms" validate:"gte=0"`

	// MaxRetries is the number of collaborator retries after a retryable failure.
	MaxRetries int `json:"max_retries" yaml:"max_retries" validate:"gte=0"`

	// EnabledStrategies filters the registry by name. Empty enables all.
	EnabledStrategies []string `json:"enabled_strategies" yaml:"enabled_strategies" validate:"dive,required"`

	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Learner   LearnerConfig   `json:"learner" yaml:"learner"`
	History   HistoryConfig   `json:"history" yaml:"history"`
	Log       LogConfig       `json:"log" yaml:"log"`
	Generator GeneratorConfig `json:"generator" yaml:"generator"`
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`
	Policy    PolicyConfig    `json:"policy" yaml:"policy"`
}

// CacheConfig sizes the three engine caches. TTLs of zero never expire.
type CacheConfig struct {
	SolutionMaxSize     int `json:"solution_max_size" yaml:"solution_max_size" validate:"gte=1"`
	SolutionTTLSeconds  int `json:"solution_ttl_seconds" yaml:"solution_ttl_seconds" validate:"gte=0"`
	StrategyMaxSize     int `json:"strategy_max_size" yaml:"strategy_max_size" validate:"gte=1"`
	StrategyTTLSeconds  int `json:"strategy_ttl_seconds" yaml:"strategy_ttl_seconds" validate:"gte=0"`
	ExecutionMaxSize    int `json:"execution_max_size" yaml:"execution_max_size" validate:"gte=1"`
	ExecutionTTLSeconds int `json:"execution_ttl_seconds" yaml:"execution_ttl_seconds" validate:"gte=0"`
}

// LearnerConfig configures the strategy learner.
type LearnerConfig struct {
	MaxHistory int `json:"max_history" yaml:"max_history" validate:"gte=1"`
}

// HistoryConfig configures the optional episodic history store.
type HistoryConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Path       string `json:"path" yaml:"path"`
	InMemory   bool   `json:"in_memory" yaml:"in_memory"`
	QueryLimit int    `json:"query_limit" yaml:"query_limit" validate:"gte=1"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `json:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	JSON  bool   `json:"json" yaml:"json"`
	Dir   string `json:"dir" yaml:"dir"`
}

// GeneratorConfig configures the model-backed generator.
type GeneratorConfig struct {
	Model             string  `json:"model" yaml:"model"`
	BaseURL           string  `json:"base_url" yaml:"base_url" validate:"omitempty,url"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`
}

// PolicyConfig configures the leaked-secret scan of generated leaves.
type PolicyConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// MinConfidence is the lowest finding confidence that rejects a leaf.
	MinConfidence string `json:"min_confidence" yaml:"min_confidence" validate:"oneof=low medium high"`
}

// TelemetryConfig selects OpenTelemetry exporters. "none" disables a signal.
type TelemetryConfig struct {
	TraceExporter  string `json:"trace_exporter" yaml:"trace_exporter" validate:"oneof=none stdout otlp"`
	MetricExporter string `json:"metric_exporter" yaml:"metric_exporter" validate:"oneof=none stdout prometheus"`
	OTLPEndpoint   string `json:"otlp_endpoint" yaml:"otlp_endpoint"`

	// MetricsAddr serves /metrics when the prometheus exporter is used.
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
}

// SDKConfig converts TelemetryConfig for pkg/telemetry.
func (c TelemetryConfig) SDKConfig(service string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = service
	tc.TraceExporter = c.TraceExporter
	tc.MetricExporter = c.MetricExporter
	if c.OTLPEndpoint != "" {
		tc.OTLPEndpoint = c.OTLPEndpoint
	}
	return tc
}

// DefaultConfig returns the default configuration.
//
// Outputs:
//   - Config: Sequential solving, retries enabled, no history store.
func DefaultConfig() Config {
	return Config{
		MaxIterations:        100,
		MaxDepth:             5,
		ParallelSubproblems:  false,
		MaxParallelism:       4,
		StopOnFirstValid:     false,
		MaxValidationRetries: 2,
		ValidationTimeoutMS:  30000,
		MaxRetries:           2,
		Cache: CacheConfig{
			SolutionMaxSize:     cache.DefaultSolutionMaxSize,
			SolutionTTLSeconds:  int(cache.DefaultSolutionTTL / time.Second),
			StrategyMaxSize:     cache.DefaultStrategyMaxSize,
			StrategyTTLSeconds:  int(cache.DefaultStrategyTTL / time.Second),
			ExecutionMaxSize:    cache.DefaultExecutionMaxSize,
			ExecutionTTLSeconds: int(cache.DefaultExecutionTTL / time.Second),
		},
		Learner: LearnerConfig{MaxHistory: learner.DefaultMaxHistory},
		History: HistoryConfig{QueryLimit: routing.DefaultHistoryLimit},
		Log:     LogConfig{Level: "info"},
		Generator: GeneratorConfig{
			Model:             "gpt-4o-mini",
			RequestsPerSecond: 1,
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  telemetry.ExporterNone,
			MetricExporter: telemetry.ExporterNone,
		},
		Policy: PolicyConfig{Enabled: true, MinConfidence: "high"},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - path: Path to a YAML/JSON config file. Optional; a missing file is
//     not an error.
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file is unreadable or the result is invalid.
func Load(path string) (Config, error) {
	config := DefaultConfig()

	if path != "" {
		if err := loadFile(path, &config); err != nil {
			return config, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := loadEnv(&config); err != nil {
		return config, fmt.Errorf("load config from env: %w", err)
	}

	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

func loadFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		if jsonErr := json.Unmarshal(data, config); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

// loadEnv applies SYNTH_* overrides. Malformed numbers are errors rather
// than silently ignored.
func loadEnv(config *Config) error {
	ints := map[string]*int{
		"MAX_ITERATIONS":         &config.MaxIterations,
		"MAX_DEPTH":              &config.MaxDepth,
		"MAX_PARALLELISM":        &config.MaxParallelism,
		"MAX_VALIDATION_RETRIES": &config.MaxValidationRetries,
		"VALIDATION_TIMEOUT_MS":  &config.ValidationTimeoutMS,
		"MAX_RETRIES":            &config.MaxRetries,
		"SOLUTION_CACHE_SIZE":    &config.Cache.SolutionMaxSize,
		"STRATEGY_CACHE_SIZE":    &config.Cache.StrategyMaxSize,
		"STRATEGY_CACHE_TTL":     &config.Cache.StrategyTTLSeconds,
		"LEARNER_MAX_HISTORY":    &config.Learner.MaxHistory,
		"HISTORY_QUERY_LIMIT":    &config.History.QueryLimit,
	}
	var errs []error
	for key, dst := range ints {
		v := os.Getenv(EnvPrefix + key)
		if v == "" {
			continue
		}
		i, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
			continue
		}
		*dst = i
	}

	bools := map[string]*bool{
		"PARALLEL_SUBPROBLEMS": &config.ParallelSubproblems,
		"STOP_ON_FIRST_VALID":  &config.StopOnFirstValid,
		"HISTORY_ENABLED":      &config.History.Enabled,
		"HISTORY_IN_MEMORY":    &config.History.InMemory,
		"LOG_JSON":             &config.Log.JSON,
		"POLICY_ENABLED":       &config.Policy.Enabled,
	}
	for key, dst := range bools {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	if v := os.Getenv(EnvPrefix + "ENABLED_STRATEGIES"); v != "" {
		config.EnabledStrategies = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "HISTORY_PATH"); v != "" {
		config.History.Path = v
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		config.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "LOG_DIR"); v != "" {
		config.Log.Dir = v
	}
	if v := os.Getenv(EnvPrefix + "GENERATOR_MODEL"); v != "" {
		config.Generator.Model = v
	}
	if v := os.Getenv(EnvPrefix + "GENERATOR_BASE_URL"); v != "" {
		config.Generator.BaseURL = v
	}
	if v := os.Getenv(EnvPrefix + "TRACE_EXPORTER"); v != "" {
		config.Telemetry.TraceExporter = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "METRIC_EXPORTER"); v != "" {
		config.Telemetry.MetricExporter = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "OTLP_ENDPOINT"); v != "" {
		config.Telemetry.OTLPEndpoint = v
	}
	if v := os.Getenv(EnvPrefix + "METRICS_ADDR"); v != "" {
		config.Telemetry.MetricsAddr = v
	}
	if v := os.Getenv(EnvPrefix + "POLICY_MIN_CONFIDENCE"); v != "" {
		config.Policy.MinConfidence = strings.ToLower(v)
	}
	if v := os.Getenv(EnvPrefix + "GENERATOR_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sGENERATOR_RPS: %w", EnvPrefix, err))
		} else {
			config.Generator.RequestsPerSecond = f
		}
	}
	return errors.Join(errs...)
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks struct tags and cross-field rules.
//
// Outputs:
//   - error: Non-nil if configuration is invalid.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.History.Enabled && !c.History.InMemory && c.History.Path == "" {
		return errors.New("history.path is required when history is enabled and not in memory")
	}
	seen := make(map[string]bool, len(c.EnabledStrategies))
	for _, name := range c.EnabledStrategies {
		if seen[name] {
			return fmt.Errorf("enabled_strategies lists %q twice", name)
		}
		seen[name] = true
	}
	return nil
}

// ValidationTimeout is ValidationTimeoutMS as a duration.
func (c Config) ValidationTimeout() time.Duration {
	return time.Duration(c.ValidationTimeoutMS) * time.Millisecond
}

// LoggingConfig converts LogConfig for pkg/logging.
func (c LogConfig) LoggingConfig(service string) (logging.Config, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return logging.Config{}, err
	}
	return logging.Config{Level: level, Dir: c.Dir, Service: service, JSON: c.JSON}, nil
}

// Seconds converts a TTL in seconds to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
