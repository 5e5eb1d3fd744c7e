package metrics

import (
	"bytes"
	"context"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeMetricScript = `#!/bin/sh
case "$1" in
  valid)
    echo "checking $2" >&2
    [ -s "$2" ]
    ;;
  measure)
    echo "loading $2 and $3"
    echo "[0.1, 0.2, 0.9, 0.3, 0.4, 0.8, 0.5, 0.6, 0.7, 42]"
    ;;
  garbage)
    echo "not json"
    ;;
esac
`

func newFakeProgram(t *testing.T, sub ...string) (*programMetric, string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping program metric tests on Windows")
	}
	dir := t.TempDir()
	script := writeFile(t, dir, "metric.sh", fakeMetricScript)

	pm, err := NewProgramMetric(ProgramMetricArgs{Command: "sh", Args: append([]string{script}, sub...)})
	require.NoError(t, err)
	return pm, dir
}

func TestProgramMetric_Constructor(t *testing.T) {
	t.Run("requires command", func(t *testing.T) {
		_, err := NewProgramMetric(ProgramMetricArgs{})
		require.Error(t, err)
	})

	t.Run("default timeout is 30 seconds", func(t *testing.T) {
		pm, err := NewProgramMetric(ProgramMetricArgs{Command: "echo"})
		require.NoError(t, err)
		require.Equal(t, defaultProgramTimeoutSeconds, int(pm.timeout.Seconds()))
	})
}

func TestProgramMetric_Valid(t *testing.T) {
	pm, dir := newFakeProgram(t)
	full := writeFile(t, dir, "full.csv", "a\n1\n")
	empty := writeFile(t, dir, "empty.csv", "")

	var diag bytes.Buffer
	ok, err := pm.Valid(context.Background(), full, &diag)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, diag.String(), "checking "+full)

	ok, err = pm.Valid(context.Background(), empty, io.Discard)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestProgramMetric_Measure(t *testing.T) {
	pm, dir := newFakeProgram(t)
	ref := writeFile(t, dir, "ref.csv", "a\n1\n")

	var diag bytes.Buffer
	got, err := pm.Measure(context.Background(), ref, ref, &diag)
	require.NoError(t, err)

	assert.Equal(t, 0.9, got.HeaderF1)
	assert.Equal(t, 0.8, got.RecordF1)
	assert.Equal(t, 0.7, got.CellF1)
	assert.Contains(t, diag.String(), "loading")
}

func TestProgramMetric_MeasureBadReport(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping program metric tests on Windows")
	}
	script := writeFile(t, t.TempDir(), "metric.sh", "#!/bin/sh\necho 'not json'\n")
	pm, err := NewProgramMetric(ProgramMetricArgs{Command: "sh", Args: []string{script}})
	require.NoError(t, err)

	_, err = pm.Measure(context.Background(), "a", "b", io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing metric report")
}

func TestProgramMetric_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping program metric tests on Windows")
	}
	pm, err := NewProgramMetric(ProgramMetricArgs{Command: "sh", Args: []string{"-c", "sleep 10", "--"}, Timeout: 1})
	require.NoError(t, err)

	_, err = pm.Measure(context.Background(), "a", "b", io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestProgramMetric_MissingBinary(t *testing.T) {
	pm, err := NewProgramMetric(ProgramMetricArgs{Command: "definitely-not-a-real-metric-binary"})
	require.NoError(t, err)

	_, err = pm.Valid(context.Background(), "a.csv", io.Discard)
	require.Error(t, err)
}

func TestLastLine(t *testing.T) {
	last, rest := lastLine("one\ntwo\n\n  [1,2]  \n\n")
	assert.Equal(t, "[1,2]", last)
	assert.Equal(t, "one\ntwo", rest)

	last, rest = lastLine("")
	assert.Empty(t, last)
	assert.Empty(t, rest)
}
