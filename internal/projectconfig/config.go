// Package projectconfig provides the ProjectConfig struct and loader for
// .loadeval.yaml project-level configuration files.
package projectconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the project configuration file looked up by Load.
const FileName = ".loadeval.yaml"

// Default values for project configuration. New() references them and no
// other code should duplicate them.
const (
	DefaultDataset = "survey_sample"
	DefaultSystem  = "sqlite"

	DefaultInputSuffix     = ".csv"
	DefaultCandidateSuffix = "_converted.csv"

	// DefaultDeadline is the batch deadline in seconds.
	DefaultDeadline = 60

	DefaultMetricKind = "csv"

	DefaultCacheDir = ".loadeval-cache"
)

// PathsConfig holds optional directory overrides. Empty values mean the
// directories are derived from the dataset and system names.
type PathsConfig struct {
	Inputs  string `yaml:"inputs,omitempty"`
	Results string `yaml:"results,omitempty"`
}

// DefaultsConfig holds default run parameters.
type DefaultsConfig struct {
	Dataset         string `yaml:"dataset,omitempty"`
	System          string `yaml:"system,omitempty"`
	Deadline        int    `yaml:"deadline,omitempty"`
	Workers         int    `yaml:"workers,omitempty"`
	InputSuffix     string `yaml:"input_suffix,omitempty"`
	CandidateSuffix string `yaml:"candidate_suffix,omitempty"`
	Verbose         *bool  `yaml:"verbose,omitempty"`
}

// MetricConfig selects the metric and carries its kind-specific parameters.
type MetricConfig struct {
	Kind   string         `yaml:"kind,omitempty"`
	Params map[string]any `yaml:"params,omitempty"`
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"`
}

// ProjectConfig is the top-level configuration loaded from .loadeval.yaml.
type ProjectConfig struct {
	Paths    PathsConfig    `yaml:"paths,omitempty"`
	Defaults DefaultsConfig `yaml:"defaults,omitempty"`
	Metric   MetricConfig   `yaml:"metric,omitempty"`
	Cache    CacheConfig    `yaml:"cache,omitempty"`
}

// New returns a ProjectConfig with all hard-coded defaults populated.
func New() *ProjectConfig {
	return &ProjectConfig{
		Defaults: DefaultsConfig{
			Dataset:         DefaultDataset,
			System:          DefaultSystem,
			Deadline:        DefaultDeadline,
			InputSuffix:     DefaultInputSuffix,
			CandidateSuffix: DefaultCandidateSuffix,
			Verbose:         boolPtr(false),
		},
		Metric: MetricConfig{
			Kind: DefaultMetricKind,
		},
		Cache: CacheConfig{
			Enabled: boolPtr(false),
			Dir:     DefaultCacheDir,
		},
	}
}

// Load finds .loadeval.yaml by walking up from startDir (max 10 levels),
// validates and unmarshals it, and fills in missing fields with defaults.
// If no config file is found, returns defaults with a nil error.
func Load(startDir string) (*ProjectConfig, error) {
	data, err := findConfigFile(startDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("loading %s: %w", FileName, err)
	}
	return parse(data, FileName)
}

// LoadFile loads an explicitly named config file. Unlike Load, a missing
// file is an error.
func LoadFile(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return parse(data, path)
}

func parse(data []byte, name string) (*ProjectConfig, error) {
	if errs := ValidateBytes(data); len(errs) > 0 {
		return nil, &ValidationError{File: name, Problems: errs}
	}

	var fileCfg ProjectConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	cfg := New()
	mergeConfig(cfg, &fileCfg)
	return cfg, nil
}

// findConfigFile walks up from dir looking for .loadeval.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found.
func findConfigFile(dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, FileName)
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached filesystem root
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *ProjectConfig) {
	// Paths
	if src.Paths.Inputs != "" {
		dst.Paths.Inputs = src.Paths.Inputs
	}
	if src.Paths.Results != "" {
		dst.Paths.Results = src.Paths.Results
	}

	// Defaults
	if src.Defaults.Dataset != "" {
		dst.Defaults.Dataset = src.Defaults.Dataset
	}
	if src.Defaults.System != "" {
		dst.Defaults.System = src.Defaults.System
	}
	if src.Defaults.Deadline != 0 {
		dst.Defaults.Deadline = src.Defaults.Deadline
	}
	if src.Defaults.Workers != 0 {
		dst.Defaults.Workers = src.Defaults.Workers
	}
	if src.Defaults.InputSuffix != "" {
		dst.Defaults.InputSuffix = src.Defaults.InputSuffix
	}
	if src.Defaults.CandidateSuffix != "" {
		dst.Defaults.CandidateSuffix = src.Defaults.CandidateSuffix
	}
	if src.Defaults.Verbose != nil {
		dst.Defaults.Verbose = src.Defaults.Verbose
	}

	// Metric: params belong to a kind, so a new kind drops nothing but
	// also inherits nothing.
	if src.Metric.Kind != "" {
		dst.Metric.Kind = src.Metric.Kind
	}
	if src.Metric.Params != nil {
		dst.Metric.Params = src.Metric.Params
	}

	// Cache
	if src.Cache.Enabled != nil {
		dst.Cache.Enabled = src.Cache.Enabled
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}
}

func boolPtr(b bool) *bool {
	return &b
}
