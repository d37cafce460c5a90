// Package config loads deltamin job files.
//
// A job file is YAML:
//
//	run_root: ./ddmin-runs
//	known_failures: ./known_failures.json
//	log_level: info
//	jobs:
//	  - name: parser-crash
//	    target: ./bin/parse
//	    args: ["--strict", "<INPUT>"]
//	    input: crashes/id-000017
//	    input_mode: file
//	    timeout: 5s
//	    fail_exit_codes: [134, 139]
//	    parallelism: 4
//	    cache: true
//	    cache_size: 65536
//	    compression: zstd
//
// Relative paths are resolved against the directory holding the job file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aalhour/deltamin/internal/compression"
	"github.com/aalhour/deltamin/internal/logging"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Input delivery modes.
const (
	InputModeStdin = "stdin"
	InputModeFile  = "file"
)

// Defaults applied to unset job fields.
const (
	DefaultSplit   = 2
	DefaultTimeout = "30s"
)

// Config is the top-level job file.
type Config struct {
	// RunRoot is the directory that receives one subdirectory per job run.
	RunRoot string `yaml:"run_root"`

	// KnownFailures is the JSON file used to deduplicate reproducers. Empty disables it.
	KnownFailures string `yaml:"known_failures,omitempty"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text, json

	Jobs []Job `yaml:"jobs"`
}

// Job describes one input to minimize against one target.
type Job struct {
	Name   string            `yaml:"name"`
	Target string            `yaml:"target"`
	Args   []string          `yaml:"args,omitempty"`
	Env    map[string]string `yaml:"env,omitempty"`

	// Input is the failing input file.
	Input string `yaml:"input"`

	// Output, if set, receives the raw minimized bytes.
	Output string `yaml:"output,omitempty"`

	Split     int    `yaml:"split"`
	Timeout   string `yaml:"timeout"`
	InputMode string `yaml:"input_mode"`

	// FailExitCodes restricts which exit codes count as reproducing the failure.
	// Empty means any non-zero exit.
	FailExitCodes    []int `yaml:"fail_exit_codes,omitempty"`
	TimeoutIsFailure bool  `yaml:"timeout_is_failure"`

	Parallelism int    `yaml:"parallelism"`
	Cache       bool   `yaml:"cache"`
	CacheSize   int    `yaml:"cache_size,omitempty"`
	Compression string `yaml:"compression"`
}

// Default returns a configuration with no jobs and default settings.
func Default() *Config {
	return &Config{
		RunRoot:   "ddmin-runs",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// DefaultJob returns a job with every optional field at its default.
func DefaultJob() Job {
	return Job{
		Split:       DefaultSplit,
		Timeout:     DefaultTimeout,
		InputMode:   InputModeStdin,
		Parallelism: 1,
		Compression: "none",
	}
}

// Load reads, defaults, resolves, and validates a job file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.applyJobDefaults()
	cfg.resolvePaths(filepath.Dir(path))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets DDMIN_RUN_ROOT and DDMIN_LOG_LEVEL override the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DDMIN_RUN_ROOT"); v != "" {
		c.RunRoot = v
	}
	if v := os.Getenv("DDMIN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

func (c *Config) applyJobDefaults() {
	for i := range c.Jobs {
		c.Jobs[i].ApplyDefaults()
	}
}

// ApplyDefaults fills unset optional fields.
func (j *Job) ApplyDefaults() {
	d := DefaultJob()
	if j.Split == 0 {
		j.Split = d.Split
	}
	if j.Timeout == "" {
		j.Timeout = d.Timeout
	}
	if j.InputMode == "" {
		j.InputMode = d.InputMode
	}
	if j.Parallelism == 0 {
		j.Parallelism = d.Parallelism
	}
	if j.Compression == "" {
		j.Compression = d.Compression
	}
	if j.Name == "" && j.Input != "" {
		j.Name = strings.TrimSuffix(filepath.Base(j.Input), filepath.Ext(j.Input))
	}
}

func (c *Config) resolvePaths(dir string) {
	c.RunRoot = resolve(dir, c.RunRoot)
	c.KnownFailures = resolve(dir, c.KnownFailures)
	for i := range c.Jobs {
		j := &c.Jobs[i]
		j.Input = resolve(dir, j.Input)
		j.Output = resolve(dir, j.Output)
		// Bare names such as "python3" are looked up in PATH, not next to the file.
		if strings.ContainsRune(j.Target, filepath.Separator) {
			j.Target = resolve(dir, j.Target)
		}
	}
}

func resolve(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q (want text or json)", ErrInvalidConfig, c.LogFormat)
	}
	if len(c.Jobs) == 0 {
		return fmt.Errorf("%w: no jobs", ErrInvalidConfig)
	}

	seen := make(map[string]bool, len(c.Jobs))
	for i := range c.Jobs {
		j := &c.Jobs[i]
		if err := j.Validate(); err != nil {
			return fmt.Errorf("job %d (%s): %w", i, j.Name, err)
		}
		if seen[j.Name] {
			return fmt.Errorf("%w: duplicate job name %q", ErrInvalidConfig, j.Name)
		}
		seen[j.Name] = true
	}
	return nil
}

// Validate checks a single job.
func (j *Job) Validate() error {
	if j.Target == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidConfig)
	}
	if j.Input == "" {
		return fmt.Errorf("%w: input is required", ErrInvalidConfig)
	}
	if j.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if j.Split < 1 {
		return fmt.Errorf("%w: split must be >= 1, got %d", ErrInvalidConfig, j.Split)
	}
	if j.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism must be >= 1, got %d", ErrInvalidConfig, j.Parallelism)
	}
	if j.CacheSize < 0 {
		return fmt.Errorf("%w: cache_size must not be negative, got %d", ErrInvalidConfig, j.CacheSize)
	}
	if j.InputMode != InputModeStdin && j.InputMode != InputModeFile {
		return fmt.Errorf("%w: input_mode %q (want stdin or file)", ErrInvalidConfig, j.InputMode)
	}
	if _, err := j.TimeoutDuration(); err != nil {
		return err
	}
	if _, err := compression.ParseType(j.Compression); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// TimeoutDuration parses Timeout. "0" disables the per-call timeout.
func (j *Job) TimeoutDuration() (time.Duration, error) {
	if j.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(j.Timeout)
	if err != nil {
		return 0, fmt.Errorf("%w: timeout: %v", ErrInvalidConfig, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: timeout must not be negative", ErrInvalidConfig)
	}
	return d, nil
}
