package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spboyer/loadeval/internal/cache"
	"github.com/spboyer/loadeval/internal/config"
	"github.com/spboyer/loadeval/internal/metrics"
	"github.com/spboyer/loadeval/internal/orchestration"
	"github.com/spboyer/loadeval/internal/projectconfig"
	"github.com/spboyer/loadeval/internal/scoring"
	"github.com/spboyer/loadeval/internal/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	configPath    string
	datasetName   string
	systemName    string
	inputDir      string
	resultsDir    string
	workers       int
	deadline      time.Duration
	metricKind    string
	metricCommand string
	headerRows    int
	outputPath    string
	format        string
	verbose       bool
	enableCache   bool
	runCacheDir   string
)

func addEvaluationFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configPath, "config", "", "Project config file (default: nearest "+projectconfig.FileName+")")
	cmd.Flags().StringVar(&datasetName, "dataset", projectconfig.DefaultDataset, "Dataset name")
	cmd.Flags().StringVar(&systemName, "system", projectconfig.DefaultSystem, "System under test")
	cmd.Flags().StringVar(&inputDir, "input-dir", "", "Reference CSV directory (default: <dataset>/clean)")
	cmd.Flags().StringVar(&resultsDir, "results-dir", "", "Candidate CSV directory (default: results/<system>/<dataset>/loading)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of concurrent workers (default: CPU count minus 2, at least 1)")
	cmd.Flags().DurationVar(&deadline, "deadline", projectconfig.DefaultDeadline*time.Second, "Time allowed for the whole batch")
	cmd.Flags().StringVar(&metricKind, "metric", projectconfig.DefaultMetricKind, "Metric: csv, program")
	cmd.Flags().StringVar(&metricCommand, "metric-command", "", "Command for the program metric (implies --metric program)")
	cmd.Flags().IntVar(&headerRows, "header-rows", metrics.DefaultHeaderRows, "Leading rows treated as the header by the csv metric")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output JSON file for results (gzip-compressed when it ends in .gz)")
	cmd.Flags().StringVar(&format, "format", "default", "Output format: default, github-comment")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output with per-file scores")
	cmd.Flags().BoolVar(&enableCache, "cache", false, "Enable result caching")
	cmd.Flags().StringVar(&runCacheDir, "cache-dir", projectconfig.DefaultCacheDir, "Cache directory for storing results")
}

// override returns flagVal when the flag was set on the command line and
// fileVal otherwise.
func override[T any](changed bool, flagVal, fileVal T) T {
	if changed {
		return flagVal
	}
	return fileVal
}

func loadProjectConfig() (*projectconfig.ProjectConfig, error) {
	if configPath != "" {
		return projectconfig.LoadFile(configPath)
	}
	return projectconfig.Load(".")
}

func buildEvalConfig(cmd *cobra.Command, pc *projectconfig.ProjectConfig) *config.EvalConfig {
	changed := cmd.Flags().Changed

	fileDeadline := time.Duration(pc.Defaults.Deadline) * time.Second
	fileVerbose := pc.Defaults.Verbose != nil && *pc.Defaults.Verbose

	return config.NewEvalConfig(
		override(changed("dataset"), datasetName, pc.Defaults.Dataset),
		override(changed("system"), systemName, pc.Defaults.System),
		config.WithInputDir(override(changed("input-dir"), inputDir, pc.Paths.Inputs)),
		config.WithResultsDir(override(changed("results-dir"), resultsDir, pc.Paths.Results)),
		config.WithInputSuffix(pc.Defaults.InputSuffix),
		config.WithCandidateSuffix(pc.Defaults.CandidateSuffix),
		config.WithDeadline(override(changed("deadline"), deadline, fileDeadline)),
		config.WithWorkers(override(changed("workers"), workers, pc.Defaults.Workers)),
		config.WithVerbose(override(changed("verbose"), verbose, fileVerbose)),
	)
}

func buildMetric(cmd *cobra.Command, pc *projectconfig.ProjectConfig) (metrics.Metric, error) {
	changed := cmd.Flags().Changed

	kind := pc.Metric.Kind
	params := map[string]any{}
	for k, v := range pc.Metric.Params {
		params[k] = v
	}

	switch {
	case changed("metric"):
		if metricKind != kind {
			// file params belong to the file's metric kind
			params = map[string]any{}
		}
		kind = metricKind
	case changed("metric-command"):
		if kind != string(metrics.KindProgram) {
			params = map[string]any{}
		}
		kind = string(metrics.KindProgram)
	}

	if changed("metric-command") {
		params["command"] = metricCommand
	}
	if changed("header-rows") {
		params["header_rows"] = headerRows
	}

	return metrics.Create(metrics.Kind(kind), params)
}

func buildCache(cmd *cobra.Command, pc *projectconfig.ProjectConfig) (*cache.Cache, error) {
	fileEnabled := pc.Cache.Enabled != nil && *pc.Cache.Enabled
	if !override(cmd.Flags().Changed("cache"), enableCache, fileEnabled) {
		return nil, nil
	}

	absCacheDir, err := filepath.Abs(override(cmd.Flags().Changed("cache-dir"), runCacheDir, pc.Cache.Dir))
	if err != nil {
		return nil, fmt.Errorf("resolving cache directory: %w", err)
	}
	return cache.New(absCacheDir), nil
}

func runEvaluationE(cmd *cobra.Command, _ []string) error {
	switch format {
	case "default", "github-comment":
	default:
		return fmt.Errorf("unknown output format: %s (supported: default, github-comment)", format)
	}

	pc, err := loadProjectConfig()
	if err != nil {
		return err
	}

	cfg := buildEvalConfig(cmd, pc)

	metric, err := buildMetric(cmd, pc)
	if err != nil {
		return fmt.Errorf("creating metric: %w", err)
	}

	resultCache, err := buildCache(cmd, pc)
	if err != nil {
		return err
	}

	var scorerOpts []scoring.Option
	if resultCache != nil {
		scorerOpts = append(scorerOpts, scoring.WithCache(resultCache))
		if cfg.Verbose() {
			fmt.Printf("Cache enabled: %s\n", resultCache.Dir())
		}
	}
	scorer := scoring.New(cfg.Layout(), metric, scorerOpts...)

	coordinator := orchestration.NewCoordinator(cfg, scorer, orchestration.WithMetricName(metric.Name()))

	progress := newProgressPrinter(cfg.Verbose(), format == "default" && term.IsTerminal(int(os.Stdout.Fd())))
	coordinator.OnProgress(progress.listen)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	fmt.Printf("--- EVALUATING %s ---\n", strings.ToUpper(cfg.System()))

	outcome, err := coordinator.Run(ctx)
	progress.stopSpinner()
	if err != nil {
		return &FatalError{Err: fmt.Errorf("evaluation failed: %w", err)}
	}

	switch format {
	case "github-comment":
		fmt.Print(FormatGitHubComment(outcome))
	default:
		printSummary(outcome)
	}

	if outputPath != "" {
		if err := saveOutcome(outcome, outputPath); err != nil {
			return fmt.Errorf("failed to save output: %w", err)
		}
		fmt.Printf("Results saved to: %s\n", outputPath)
	}

	return nil
}

// progressPrinter turns coordinator events into console lines. Events
// arrive on the coordinator goroutine, one at a time.
type progressPrinter struct {
	verbose     bool
	showSpinner bool
	stop        func()
}

func newProgressPrinter(verbose, showSpinner bool) *progressPrinter {
	return &progressPrinter{verbose: verbose, showSpinner: showSpinner}
}

func (p *progressPrinter) stopSpinner() {
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
}

func (p *progressPrinter) listen(event orchestration.ProgressEvent) {
	switch event.EventType {
	case orchestration.EventBatchStart:
		fmt.Printf("Processing %d files using %d workers...\n", event.Total, event.Workers)
		if p.showSpinner && event.Total > 0 {
			p.stop = spinner.Start(os.Stdout, "Waiting for the first result")
		}
	case orchestration.EventItemComplete:
		p.stopSpinner()
		if !p.verbose {
			fmt.Printf("[%d/%d] Processed...\n", event.Index, event.Total)
			return
		}
		status := "✓"
		if !event.Record.Succeeded() {
			status = "✗"
		}
		cached := ""
		if event.Cached {
			cached = " [cached]"
		}
		fmt.Printf("[%d/%d] %s %s header=%.4f record=%.4f cell=%.4f%s\n",
			event.Index, event.Total, status, event.Item,
			event.Record.HeaderF1, event.Record.RecordF1, event.Record.CellF1, cached)
	case orchestration.EventDeadlineExpired:
		p.stopSpinner()
		fmt.Println("\nTIMEOUT: Some workers took too long. Calculating partial results.")
		if p.verbose {
			fmt.Printf("  collected=%d cancelled=%d abandoned=%d\n", event.Collected, event.Cancelled, event.Orphaned)
		}
	case orchestration.EventBatchComplete:
		p.stopSpinner()
		if p.verbose {
			duration := time.Duration(event.DurationMs) * time.Millisecond
			fmt.Printf("Batch %s in %s\n", event.State, formatDuration(duration))
		}
	}
}
