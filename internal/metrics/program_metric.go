package metrics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// defaultProgramTimeoutSeconds bounds a single metric program invocation.
const defaultProgramTimeoutSeconds = 30

// ProgramMetricArgs holds the arguments for creating a program metric.
type ProgramMetricArgs struct {
	// Command is the program to execute.
	Command string `mapstructure:"command"`
	// Args are passed before the subcommand ("valid" or "measure").
	Args []string `mapstructure:"args"`
	// Timeout is the maximum execution time in seconds. Defaults to 30 if not set.
	Timeout int `mapstructure:"timeout"`
}

// programMetric runs an external program for every call, so a crash or hang
// inside the metric stays inside that process.
//
//	<command> <args...> valid <path>            exit 0 = valid, non-zero = invalid
//	<command> <args...> measure <ref> <cand>    last stdout line is a JSON number array
//
// Everything else the program prints is treated as diagnostics.
type programMetric struct {
	command string
	args    []string
	timeout time.Duration
}

// NewProgramMetric creates a [programMetric].
func NewProgramMetric(args ProgramMetricArgs) (*programMetric, error) {
	if args.Command == "" {
		return nil, errors.New("program metric must have a 'command'")
	}

	timeout := args.Timeout
	if timeout <= 0 {
		timeout = defaultProgramTimeoutSeconds
	}

	return &programMetric{
		command: args.Command,
		args:    args.Args,
		timeout: time.Duration(timeout) * time.Second,
	}, nil
}

func (pm *programMetric) Name() string {
	return strings.Join(append([]string{string(KindProgram) + ":" + pm.command}, pm.args...), " ")
}

func (pm *programMetric) Valid(ctx context.Context, path string, diag io.Writer) (bool, error) {
	if _, err := pm.run(ctx, diag, "valid", path); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (pm *programMetric) Measure(ctx context.Context, referencePath, candidatePath string, diag io.Writer) (Measures, error) {
	stdout, err := pm.run(ctx, diag, "measure", referencePath, candidatePath)
	if err != nil {
		return Measures{}, err
	}

	report, rest := lastLine(stdout)
	if rest != "" {
		fmt.Fprintln(diag, rest) //nolint:errcheck
	}
	if report == "" {
		return Measures{}, errors.New("metric program printed no report")
	}

	var values []float64
	if err := json.Unmarshal([]byte(report), &values); err != nil {
		return Measures{}, fmt.Errorf("parsing metric report %q: %w", report, err)
	}
	return MeasuresFromTuple(values)
}

// run executes the program with the given subcommand. stderr goes straight
// to diag; stdout is returned to the caller.
func (pm *programMetric) run(ctx context.Context, diag io.Writer, sub ...string) (string, error) {
	if diag == nil {
		diag = io.Discard
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, pm.timeout)
	defer cancel()

	args := append(append([]string{}, pm.args...), sub...)
	cmd := exec.CommandContext(timeoutCtx, pm.command, args...)
	cmd.WaitDelay = time.Second

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = diag

	err := cmd.Run()
	if err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		fmt.Fprint(diag, stdout.String()) //nolint:errcheck
		return "", fmt.Errorf("metric program timed out after %v", pm.timeout)
	}
	if err != nil {
		fmt.Fprint(diag, stdout.String()) //nolint:errcheck
		return "", err
	}
	return stdout.String(), nil
}

// lastLine splits out the last non-empty line of s.
func lastLine(s string) (last, rest string) {
	lines := strings.Split(strings.TrimRight(s, "\r\n\t "), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l, strings.TrimSpace(strings.Join(lines[:i], "\n"))
		}
	}
	return "", ""
}
