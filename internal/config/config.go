// Package config holds the immutable settings for one evaluation run.
package config

import (
	"path/filepath"
	"time"

	"github.com/spboyer/loadeval/internal/dataset"
	"github.com/spboyer/loadeval/internal/projectconfig"
)

// EvalConfig is built once per run and then only read.
type EvalConfig struct {
	dataset         string
	system          string
	inputDir        string
	resultsDir      string
	inputSuffix     string
	candidateSuffix string
	deadline        time.Duration
	workers         int
	verbose         bool
}

// Option configures an EvalConfig.
type Option func(*EvalConfig)

// NewEvalConfig creates the configuration for evaluating system on dataset.
// Directories default to "<dataset>/clean" for inputs and
// "results/<system>/<dataset>/loading" for candidates.
func NewEvalConfig(datasetName, system string, opts ...Option) *EvalConfig {
	cfg := &EvalConfig{
		dataset:         datasetName,
		system:          system,
		inputDir:        filepath.Join(datasetName, "clean"),
		resultsDir:      filepath.Join("results", system, datasetName, "loading"),
		inputSuffix:     projectconfig.DefaultInputSuffix,
		candidateSuffix: projectconfig.DefaultCandidateSuffix,
		deadline:        projectconfig.DefaultDeadline * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithInputDir overrides the reference input directory.
func WithInputDir(dir string) Option {
	return func(c *EvalConfig) {
		if dir != "" {
			c.inputDir = dir
		}
	}
}

// WithResultsDir overrides the candidate directory.
func WithResultsDir(dir string) Option {
	return func(c *EvalConfig) {
		if dir != "" {
			c.resultsDir = dir
		}
	}
}

func WithInputSuffix(suffix string) Option {
	return func(c *EvalConfig) {
		c.inputSuffix = suffix
	}
}

func WithCandidateSuffix(suffix string) Option {
	return func(c *EvalConfig) {
		c.candidateSuffix = suffix
	}
}

// WithDeadline sets the wall-clock budget for collecting the whole batch.
func WithDeadline(d time.Duration) Option {
	return func(c *EvalConfig) {
		c.deadline = d
	}
}

// WithWorkers sets the pool size. Zero or less means the default policy.
func WithWorkers(n int) Option {
	return func(c *EvalConfig) {
		c.workers = n
	}
}

func WithVerbose(verbose bool) Option {
	return func(c *EvalConfig) {
		c.verbose = verbose
	}
}

func (c *EvalConfig) Dataset() string         { return c.dataset }
func (c *EvalConfig) System() string          { return c.system }
func (c *EvalConfig) InputDir() string        { return c.inputDir }
func (c *EvalConfig) ResultsDir() string      { return c.resultsDir }
func (c *EvalConfig) InputSuffix() string     { return c.inputSuffix }
func (c *EvalConfig) CandidateSuffix() string { return c.candidateSuffix }
func (c *EvalConfig) Deadline() time.Duration { return c.deadline }
func (c *EvalConfig) Workers() int            { return c.workers }
func (c *EvalConfig) Verbose() bool           { return c.verbose }

// Layout returns the input layout described by the config.
func (c *EvalConfig) Layout() dataset.Layout {
	return dataset.Layout{
		InputDir:        c.inputDir,
		ResultsDir:      c.resultsDir,
		InputSuffix:     c.inputSuffix,
		CandidateSuffix: c.candidateSuffix,
	}
}
