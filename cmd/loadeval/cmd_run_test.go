package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/spboyer/loadeval/internal/models"
	"github.com/spboyer/loadeval/internal/orchestration"
	"github.com/spboyer/loadeval/internal/projectconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureStdout redirects os.Stdout and returns captured output.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	fn()

	if err := w.Close(); err != nil {
		t.Fatalf("close pipe writer: %v", err)
	}
	os.Stdout = old

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("read pipe: %v", err)
	}
	return buf.String()
}

type fixture struct {
	root       string
	inputDir   string
	resultsDir string
}

// newFixture lays out two reference files. a.csv has a perfect candidate,
// b.csv has none.
func newFixture(t *testing.T) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		root:       root,
		inputDir:   filepath.Join(root, "clean"),
		resultsDir: filepath.Join(root, "loading"),
	}
	require.NoError(t, os.MkdirAll(f.inputDir, 0o755))
	require.NoError(t, os.MkdirAll(f.resultsDir, 0o755))

	f.write(t, f.inputDir, "a.csv", "id,name\n1,ann\n")
	f.write(t, f.inputDir, "b.csv", "id,name\n2,bob\n")
	f.write(t, f.resultsDir, "a.csv_converted.csv", "id,name\n1,ann\n")
	return f
}

func (f fixture) write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func (f fixture) args(extra ...string) []string {
	return append([]string{"--input-dir", f.inputDir, "--results-dir", f.resultsDir, "--workers", "2"}, extra...)
}

// run executes the root command from an isolated working directory.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	var err error
	out := captureStdout(t, func() {
		cmd := newRootCommand()
		cmd.SetArgs(args)
		err = cmd.Execute()
	})
	return out, err
}

// ---------------------------------------------------------------------------
// Argument validation
// ---------------------------------------------------------------------------

func TestRootCommand_RejectsPositionalArgs(t *testing.T) {
	_, err := run(t, "eval.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitError, exitCode(err))
}

func TestRootCommand_UnknownFormat(t *testing.T) {
	f := newFixture(t)
	_, err := run(t, f.args("--format", "xml")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output format")
	assert.Equal(t, ExitError, exitCode(err))
}

func TestRootCommand_UnknownMetric(t *testing.T) {
	f := newFixture(t)
	_, err := run(t, f.args("--metric", "fuzzy")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid metric kind")
	assert.Equal(t, ExitError, exitCode(err))
}

func TestRootCommand_FlagsParsed(t *testing.T) {
	cmd := newRootCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"--dataset", "census",
		"--system", "duckdb",
		"--deadline", "90s",
		"-o", "out.json",
		"-v",
	}))

	val, err := cmd.Flags().GetString("dataset")
	require.NoError(t, err)
	assert.Equal(t, "census", val)

	val, err = cmd.Flags().GetString("output")
	require.NoError(t, err)
	assert.Equal(t, "out.json", val)

	d, err := cmd.Flags().GetDuration("deadline")
	require.NoError(t, err)
	assert.Equal(t, "1m30s", d.String())

	boolVal, err := cmd.Flags().GetBool("verbose")
	require.NoError(t, err)
	assert.True(t, boolVal)
}

// ---------------------------------------------------------------------------
// Fatal conditions
// ---------------------------------------------------------------------------

func TestRootCommand_MissingResultsDir(t *testing.T) {
	f := newFixture(t)
	out, err := run(t, "--input-dir", f.inputDir, "--results-dir", filepath.Join(f.root, "nope"))

	require.ErrorIs(t, err, orchestration.ErrResultsDirMissing)
	assert.Equal(t, ExitFatal, exitCode(err))
	assert.Contains(t, out, "--- EVALUATING SQLITE ---")
	assert.NotContains(t, out, "FINAL SCORES")
}

func TestRootCommand_NoInputFiles(t *testing.T) {
	f := newFixture(t)
	empty := filepath.Join(f.root, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))

	out, err := run(t, "--input-dir", empty, "--results-dir", f.resultsDir)

	require.ErrorIs(t, err, orchestration.ErrNoResults)
	assert.Equal(t, ExitFatal, exitCode(err))
	assert.Contains(t, out, "Processing 0 files")
	assert.NotContains(t, out, "FINAL SCORES")
}

// ---------------------------------------------------------------------------
// Full runs
// ---------------------------------------------------------------------------

func TestRootCommand_FullRun(t *testing.T) {
	f := newFixture(t)
	outPath := filepath.Join(f.root, "outcome.json")

	out, err := run(t, f.args("-o", outPath)...)
	require.NoError(t, err)
	assert.Equal(t, ExitSuccess, exitCode(err))

	assert.Contains(t, out, "--- EVALUATING SQLITE ---\n")
	assert.Contains(t, out, "Processing 2 files using 2 workers...\n")
	assert.Contains(t, out, "[1/2] Processed...\n")
	assert.Contains(t, out, "[2/2] Processed...\n")
	assert.Contains(t, out, "\n========================================\n FINAL SCORES: sqlite on survey_sample\n========================================\n")
	assert.Contains(t, out, "Success Rate:  50.00%\n")
	assert.Contains(t, out, "Header F1:     0.5000\n")
	assert.Contains(t, out, "Record F1:     0.5000\n")
	assert.Contains(t, out, "Cell F1:       0.5000\n")
	assert.NotContains(t, out, "TIMEOUT")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var outcome models.EvaluationOutcome
	require.NoError(t, json.Unmarshal(data, &outcome))
	assert.Equal(t, models.StateDone, outcome.State)
	assert.Equal(t, 2, outcome.Summary.Total)
	assert.Equal(t, 1, outcome.Summary.Succeeded)
	assert.Len(t, outcome.Results, 2)
	assert.Equal(t, "csv(header_rows=1)", outcome.Setup.Metric)
}

func TestRootCommand_VerboseProgress(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, f.args("--verbose", "--workers", "1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "[1/2] ✓ a.csv header=1.0000 record=1.0000 cell=1.0000\n")
	assert.Contains(t, out, "[2/2] ✗ b.csv header=0.0000 record=0.0000 cell=0.0000\n")
	assert.Contains(t, out, "Batch done in ")
}

func TestRootCommand_GzipOutput(t *testing.T) {
	f := newFixture(t)
	outPath := filepath.Join(f.root, "outcome.json.gz")

	_, err := run(t, f.args("-o", outPath)...)
	require.NoError(t, err)

	file, err := os.Open(outPath)
	require.NoError(t, err)
	defer file.Close()

	zr, err := gzip.NewReader(file)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	var outcome models.EvaluationOutcome
	require.NoError(t, json.Unmarshal(data, &outcome))
	assert.Equal(t, 2, outcome.Collected)
}

func TestRootCommand_GitHubCommentFormat(t *testing.T) {
	f := newFixture(t)

	out, err := run(t, f.args("--format", "github-comment")...)
	require.NoError(t, err)
	assert.Contains(t, out, "## 📊 loadeval: sqlite on survey_sample")
	assert.Contains(t, out, "| Success Rate | 50.00% |")
	assert.Contains(t, out, "- `b.csv`")
	assert.NotContains(t, out, "FINAL SCORES")
}

func TestRootCommand_CacheServesSecondRun(t *testing.T) {
	f := newFixture(t)
	cacheDir := filepath.Join(f.root, "cache")

	_, err := run(t, f.args("--cache", "--cache-dir", cacheDir)...)
	require.NoError(t, err)

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the item with a candidate reaches the metric")

	out, err := run(t, f.args("--cache", "--cache-dir", cacheDir, "--verbose")...)
	require.NoError(t, err)
	assert.Contains(t, out, "a.csv header=1.0000 record=1.0000 cell=1.0000 [cached]")
}

func TestRootCommand_ProjectConfigDefaults(t *testing.T) {
	root := t.TempDir()
	clean := filepath.Join(root, "census", "clean")
	loading := filepath.Join(root, "results", "duckdb", "census", "loading")
	require.NoError(t, os.MkdirAll(clean, 0o755))
	require.NoError(t, os.MkdirAll(loading, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(clean, "x.csv"), []byte("h\n1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(loading, "x.csv_converted.csv"), []byte("h\n1\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, projectconfig.FileName), []byte(`
defaults:
  dataset: census
  system: duckdb
  workers: 1
`), 0o644))

	t.Chdir(root)
	var err error
	out := captureStdout(t, func() {
		cmd := newRootCommand()
		cmd.SetArgs([]string{})
		err = cmd.Execute()
	})

	require.NoError(t, err)
	assert.Contains(t, out, "--- EVALUATING DUCKDB ---")
	assert.Contains(t, out, "Processing 1 files using 1 workers...")
	assert.Contains(t, out, " FINAL SCORES: duckdb on census")
	assert.Contains(t, out, "Success Rate:  100.00%")
}

func TestRootCommand_InvalidProjectConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("defaults:\n  deadline: -1\n"), 0o644))

	_, err := run(t, "--config", cfgPath)
	require.Error(t, err)

	var ve *projectconfig.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, ExitError, exitCode(err))
}

const slowMetricScript = `#!/bin/sh
case "$1" in
  valid)
    exit 0
    ;;
  measure)
    case "$3" in
      *slow*) sleep 30 ;;
    esac
    echo "[1, 1, 1, 1, 1, 1, 1, 1, 1]"
    ;;
esac
`

func TestRootCommand_DeadlineYieldsPartialResults(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping program metric tests on Windows")
	}

	f := newFixture(t)
	f.write(t, f.inputDir, "slow.csv", "id\n1\n")
	f.write(t, f.inputDir, "slower.csv", "id\n1\n")
	f.write(t, f.resultsDir, "slow.csv_converted.csv", "id\n1\n")
	f.write(t, f.resultsDir, "slower.csv_converted.csv", "id\n1\n")

	script := filepath.Join(f.root, "metric.sh")
	require.NoError(t, os.WriteFile(script, []byte(slowMetricScript), 0o755))

	out, err := run(t,
		"--input-dir", f.inputDir,
		"--results-dir", f.resultsDir,
		"--workers", "1",
		"--deadline", "1s",
		"--metric-command", script,
	)

	require.NoError(t, err, "a partial result is not a failure")
	assert.Equal(t, ExitSuccess, exitCode(err))
	assert.Contains(t, out, "Processing 4 files using 1 workers...")
	assert.Contains(t, out, "TIMEOUT: Some workers took too long. Calculating partial results.")
	assert.Contains(t, out, " FINAL SCORES: sqlite on survey_sample")
	assert.Contains(t, out, "Partial results: 2 of 4 files collected before the deadline")
}

// ---------------------------------------------------------------------------
// Metric selection
// ---------------------------------------------------------------------------

func TestBuildMetric(t *testing.T) {
	tests := []struct {
		name     string
		file     projectconfig.MetricConfig
		args     []string
		wantName string
		wantErr  bool
	}{
		{
			name:     "defaults to csv",
			file:     projectconfig.New().Metric,
			wantName: "csv(header_rows=1)",
		},
		{
			name:     "header rows flag",
			file:     projectconfig.New().Metric,
			args:     []string{"--header-rows", "2"},
			wantName: "csv(header_rows=2)",
		},
		{
			name:     "file params",
			file:     projectconfig.MetricConfig{Kind: "csv", Params: map[string]any{"header_rows": 3}},
			wantName: "csv(header_rows=3)",
		},
		{
			name:     "metric command implies program",
			file:     projectconfig.MetricConfig{Kind: "csv", Params: map[string]any{"header_rows": 3}},
			args:     []string{"--metric-command", "score"},
			wantName: "program:score",
		},
		{
			name:     "program from file",
			file:     projectconfig.MetricConfig{Kind: "program", Params: map[string]any{"command": "score", "args": []any{"--fast"}}},
			wantName: "program:score --fast",
		},
		{
			name:    "program without command",
			args:    []string{"--metric", "program"},
			file:    projectconfig.New().Metric,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCommand()
			require.NoError(t, cmd.ParseFlags(tt.args))

			pc := projectconfig.New()
			pc.Metric = tt.file

			m, err := buildMetric(cmd, pc)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, m.Name())
		})
	}
}
