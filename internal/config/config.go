package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/signalnine/sfmbench/internal/corpus"
	"github.com/signalnine/sfmbench/internal/dataset"
	"github.com/signalnine/sfmbench/internal/pipeline"
)

type Config struct {
	Software            string            `yaml:"software"`
	Input               string            `yaml:"input"`
	Output              string            `yaml:"output"`
	Result              string            `yaml:"result"`
	Limit               int               `yaml:"limit"`
	Order               dataset.Order     `yaml:"order"`
	OnFailure           corpus.Policy     `yaml:"on_failure"`
	Parallel            int               `yaml:"parallel"`
	Verbose             bool              `yaml:"verbose"`
	StageTimeoutMinutes int               `yaml:"stage_timeout_minutes"`
	EnvFile             string            `yaml:"env_file"`
	Env                 map[string]string `yaml:"env"`
	Tool                Tool              `yaml:"tool"`
	Dataset             dataset.Layout    `yaml:"dataset"`
	Executor            Executor          `yaml:"executor"`
}

type Tool struct {
	Profile string          `yaml:"profile"`
	Engine  pipeline.Engine `yaml:"engine"`

	// ExtraArgs are appended to a stage's arguments, keyed by stage name.
	ExtraArgs map[string][]string `yaml:"extra_args"`
}

type Executor struct {
	Kind        string  `yaml:"kind"`
	Image       string  `yaml:"image"`
	User        string  `yaml:"user"`
	CPULimit    float64 `yaml:"cpu_limit"`
	MemoryLimit int64   `yaml:"memory_limit"`
}

const (
	ExecutorLocal  = "local"
	ExecutorDocker = "docker"
)

// Error marks a configuration problem found before any dataset runs.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "configuration: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

func errorf(format string, args ...any) error {
	return &Error{Err: fmt.Errorf(format, args...)}
}

func Default() *Config {
	return &Config{
		Output:    "reconstructions",
		Result:    "results.json",
		Limit:     -1,
		Order:     dataset.ByName,
		OnFailure: corpus.FailFast,
		Parallel:  1,
		Tool: Tool{
			Profile: pipeline.DefaultProfile,
			Engine:  pipeline.Global,
		},
		Dataset:  dataset.DefaultLayout,
		Executor: Executor{Kind: ExecutorLocal},
	}
}

// Load reads a YAML config file on top of the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errorf("reading config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errorf("parsing config %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return nil, &Error{Err: fmt.Errorf("invalid config %s: %w", path, err)}
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults
// when the path was not chosen explicitly.
func LoadOrDefault(path string, explicit bool) (*Config, error) {
	if !explicit {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
	}
	return Load(path)
}

func validate(cfg *Config) error {
	if cfg.Limit < -1 {
		return fmt.Errorf("limit must be -1 (no limit) or non-negative, got %d", cfg.Limit)
	}
	if cfg.Order != dataset.ByName && cfg.Order != dataset.ByListing {
		return fmt.Errorf("order must be %q or %q, got %q", dataset.ByName, dataset.ByListing, cfg.Order)
	}
	if !cfg.OnFailure.Valid() {
		return fmt.Errorf("on_failure must be %q or %q, got %q", corpus.FailFast, corpus.Continue, cfg.OnFailure)
	}
	if cfg.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1")
	}
	if cfg.StageTimeoutMinutes < 0 {
		return fmt.Errorf("stage_timeout_minutes must not be negative")
	}
	if _, err := pipeline.LookupProfile(cfg.Tool.Profile); err != nil {
		return err
	}
	if !cfg.Tool.Engine.Valid() {
		return fmt.Errorf("tool engine must be %q or %q, got %q", pipeline.Global, pipeline.Incremental, cfg.Tool.Engine)
	}
	for name := range cfg.Tool.ExtraArgs {
		if !knownStage(name) {
			return fmt.Errorf("extra_args: unknown stage %q", name)
		}
	}
	switch cfg.Executor.Kind {
	case ExecutorLocal:
	case ExecutorDocker:
		if cfg.Executor.Image == "" {
			return fmt.Errorf("executor image is required for docker")
		}
	default:
		return fmt.Errorf("executor kind must be %q or %q, got %q", ExecutorLocal, ExecutorDocker, cfg.Executor.Kind)
	}
	l := cfg.Dataset
	if l.ImagesDir == "" || l.GroundTruthDir == "" || l.IntrinsicsFile == "" || l.CalibrationFile == "" {
		return fmt.Errorf("dataset layout entries must not be empty")
	}
	return nil
}

func knownStage(name string) bool {
	for _, s := range pipeline.Stages {
		if s == name {
			return true
		}
	}
	return false
}

// Check validates the config after command-line overrides and verifies the
// software and input roots exist. The software root is inside the image
// for the docker executor and is not checked.
func (cfg *Config) Check() error {
	if err := validate(cfg); err != nil {
		return &Error{Err: err}
	}
	if cfg.Input == "" {
		return errorf("input datasets folder is required")
	}
	if cfg.Software == "" {
		return errorf("software folder is required")
	}
	if cfg.Executor.Kind == ExecutorLocal {
		if err := requireDir(cfg.Software); err != nil {
			return errorf("software folder: %w", err)
		}
	}
	if err := requireDir(cfg.Input); err != nil {
		return errorf("input datasets folder: %w", err)
	}
	return nil
}

func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}

// StageEnv returns the extra environment for stages: the env file first,
// then the env map, each in key order. Env map entries win.
func (cfg *Config) StageEnv() ([]string, error) {
	vars := map[string]string{}
	if cfg.EnvFile != "" {
		fileVars, err := godotenv.Read(cfg.EnvFile)
		if err != nil {
			return nil, errorf("reading env file %s: %w", cfg.EnvFile, err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}
	for k, v := range cfg.Env {
		vars[k] = v
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env, nil
}
