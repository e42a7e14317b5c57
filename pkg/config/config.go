// Copyright 2026 © The TrendSurf Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the process-wide settings once at startup.
//
// Sources are layered in order: built-in defaults, YAML/JSON files given with
// --config, a dotenv file, legacy Azure environment variables, TRENDSURF_*
// environment variables and finally --set key=value overrides. The dotenv
// file holds the same variable names as the environment and loses to it.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/jllopis/trendsurf/pkg/errors"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are separated
// by a double underscore: TRENDSURF_SERVICE__API_VERSION -> service.api_version.
const EnvPrefix = "TRENDSURF_"

// Failure policies for run and index failures.
const (
	PolicyAbort   = "abort"
	PolicyDegrade = "degrade"
)

// DefaultEnvFile is read when present and no --env-file is given.
const DefaultEnvFile = ".env"

// DefaultTopic is used when the command line carries no topic.
const DefaultTopic = "AI safety and NIST AI Risk Management Framework updates for financial services"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Service   ServiceConfig   `koanf:"service"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Poll      PollConfig      `koanf:"poll"`
	Index     IndexConfig     `koanf:"index"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Store     StoreConfig     `koanf:"store"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

// ServiceConfig points at the hosted assistant service.
type ServiceConfig struct {
	Endpoint       string        `koanf:"endpoint"`
	APIVersion     string        `koanf:"api_version"`
	APIKey         string        `koanf:"api_key"`
	Model          string        `koanf:"model"`
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

type PipelineConfig struct {
	DefaultTopic    string        `koanf:"default_topic"`
	OutputDir       string        `koanf:"output_dir"`
	DefinitionsPath string        `koanf:"definitions_path"` // optional YAML override of agent definitions
	StageTimeout    time.Duration `koanf:"stage_timeout"`
	RunFailure      string        `koanf:"run_failure"`   // abort, degrade
	IndexFailure    string        `koanf:"index_failure"` // abort, degrade
	Guardrails      bool          `koanf:"guardrails"`    // topic injection check and post scanning
	MaxTopicLength  int           `koanf:"max_topic_length"`
	RunDirectories  bool          `koanf:"run_directories"` // write each run under output_dir/<run_id>
}

// PollConfig bounds the run status poll loop.
type PollConfig struct {
	Interval    time.Duration `koanf:"interval"`
	MaxAttempts int           `koanf:"max_attempts"`
	Timeout     time.Duration `koanf:"timeout"`
}

// IndexConfig describes the reference document and its indexing poll bounds.
type IndexConfig struct {
	DocumentPath string        `koanf:"document_path"`
	Name         string        `koanf:"name"`
	Interval     time.Duration `koanf:"interval"`
	MaxAttempts  int           `koanf:"max_attempts"`
	Timeout      time.Duration `koanf:"timeout"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
	ServiceName  string `koanf:"service_name"`
}

type StoreConfig struct {
	LedgerPath string `koanf:"ledger_path"` // empty disables the SQLite run ledger
}

var defaults = map[string]any{
	"log.level":  "info",
	"log.format": "text",

	"service.api_version":     "2025-01-01-preview",
	"service.model":           "gpt-4.1",
	"service.request_timeout": "60s",

	"pipeline.default_topic":    DefaultTopic,
	"pipeline.output_dir":       "output",
	"pipeline.stage_timeout":    "10m",
	"pipeline.run_failure":      PolicyAbort,
	"pipeline.index_failure":    PolicyAbort,
	"pipeline.guardrails":       true,
	"pipeline.max_topic_length": 500,
	"pipeline.run_directories":  false,

	"poll.interval":     "2s",
	"poll.max_attempts": 300,
	"poll.timeout":      "10m",

	"index.document_path": "data/brand_kit.md",
	"index.name":          "FinGuard Capital Brand Kit",
	"index.interval":      "2s",
	"index.max_attempts":  90,
	"index.timeout":       "3m",

	"telemetry.exporter":     "none",
	"telemetry.service_name": "trendsurf",
}

// legacyEnv maps the Azure OpenAI environment variables used by deployment scripts.
var legacyEnv = map[string]string{
	"AZURE_OPENAI_ENDPOINT":    "service.endpoint",
	"AZURE_OPENAI_API_VERSION": "service.api_version",
	"AZURE_OPENAI_API_KEY":     "service.api_key",
	"MODEL_DEPLOYMENT_NAME":    "service.model",
}

// Load reads defaults, the optional file at path, ./.env when present and
// the environment.
func Load(path string) (*Config, error) {
	var src sources
	if path != "" {
		src.paths = append(src.paths, path)
	}
	return load(src)
}

// LoadWithCLI accepts --config <path> (repeatable), --env-file <path> and
// --set key=value arguments on top of Load's sources. An explicit env file
// must exist.
func LoadWithCLI(args []string) (*Config, error) {
	src, err := parseCLIOverrides(args)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "parse config flags", err)
	}
	return load(src)
}

type sources struct {
	paths   []string
	envFile string
	sets    map[string]any
}

func load(src sources) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	for _, path := range src.paths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "load config file", err).
				WithContext("path", path)
		}
	}

	if err := loadEnvFile(k, src.envFile); err != nil {
		return nil, err
	}

	for name, key := range legacyEnv {
		if value, ok := os.LookupEnv(name); ok && value != "" {
			if err := k.Set(key, value); err != nil {
				return nil, err
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "load environment", err)
	}

	for key, value := range src.sets {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "decode config", err)
	}
	return &cfg, nil
}

// loadEnvFile applies a dotenv file with the same name mapping as the
// process environment. With path empty, DefaultEnvFile is read if it exists.
func loadEnvFile(k *koanf.Koanf, path string) error {
	if path == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		path = DefaultEnvFile
	}

	vars := koanf.New(".")
	if err := vars.Load(file.Provider(path), dotenv.Parser()); err != nil {
		return errors.New(errors.CodeInvalidInput, "load env file", err).
			WithContext("path", path)
	}
	for name, value := range vars.All() {
		key, ok := legacyEnv[name]
		switch {
		case ok:
		case strings.HasPrefix(name, EnvPrefix):
			key = envKey(name)
		default:
			continue
		}
		if str, isStr := value.(string); isStr && str == "" {
			continue
		}
		if err := k.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// TRENDSURF_POLL__MAX_ATTEMPTS -> poll.max_attempts
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func parseCLIOverrides(args []string) (sources, error) {
	src := sources{sets: make(map[string]any)}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var value string
		switch {
		case arg == "--config" || arg == "--set" || arg == "--env-file":
			if i+1 >= len(args) {
				return sources{}, fmt.Errorf("missing value for %s", arg)
			}
			value = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			arg, value = "--config", strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "--env-file="):
			arg, value = "--env-file", strings.TrimPrefix(arg, "--env-file=")
		case strings.HasPrefix(arg, "--set="):
			arg, value = "--set", strings.TrimPrefix(arg, "--set=")
		default:
			return sources{}, fmt.Errorf("unknown config flag %q", arg)
		}

		switch arg {
		case "--config":
			src.paths = append(src.paths, value)
			continue
		case "--env-file":
			src.envFile = value
			continue
		}
		key, raw, ok := strings.Cut(value, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return sources{}, fmt.Errorf("invalid --set %q, expected key=value", value)
		}
		src.sets[key] = parseSetValue(raw)
	}
	return src, nil
}

// parseSetValue decodes JSON scalars and objects, falling back to the raw string.
func parseSetValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

// Validate checks the settings every pipeline run depends on.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Service.Endpoint) == "" {
		problems = append(problems, "service.endpoint is required")
	}
	if strings.TrimSpace(c.Service.Model) == "" {
		problems = append(problems, "service.model is required")
	}
	if !validPolicy(c.Pipeline.RunFailure) {
		problems = append(problems, fmt.Sprintf("pipeline.run_failure must be %q or %q", PolicyAbort, PolicyDegrade))
	}
	if !validPolicy(c.Pipeline.IndexFailure) {
		problems = append(problems, fmt.Sprintf("pipeline.index_failure must be %q or %q", PolicyAbort, PolicyDegrade))
	}
	if c.Poll.Interval <= 0 || c.Index.Interval <= 0 {
		problems = append(problems, "poll intervals must be positive")
	}
	if c.Poll.MaxAttempts < 1 || c.Index.MaxAttempts < 1 {
		problems = append(problems, "poll max_attempts must be at least 1")
	}
	if c.Pipeline.MaxTopicLength < 0 {
		problems = append(problems, "pipeline.max_topic_length must not be negative")
	}
	if len(problems) > 0 {
		return errors.New(errors.CodeInvalidInput, "invalid configuration: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

func validPolicy(p string) bool {
	return p == PolicyAbort || p == PolicyDegrade
}
