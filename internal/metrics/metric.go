package metrics

import (
	"context"
	"fmt"
	"io"

	"github.com/go-viper/mapstructure/v2"
)

//go:generate go tool mockgen -source=metric.go -destination=mock_metric.go -package=metrics

// Kind identifies a metric implementation.
type Kind string

const (
	// KindCSV is the built-in header/record/cell comparison.
	KindCSV Kind = "csv"
	// KindProgram delegates to an external command, one process per call.
	KindProgram Kind = "program"
)

// Metric scores a candidate file against its reference.
//
// Implementations may write free-form diagnostics to diag. Callers hand
// every invocation its own writer, so implementations never need to
// coordinate output with each other.
type Metric interface {
	// Name identifies the metric in results and cache keys.
	Name() string

	// Valid reports whether the file at path is well-formed enough to be
	// scored at all.
	Valid(ctx context.Context, path string, diag io.Writer) (bool, error)

	// Measure compares candidatePath against referencePath.
	Measure(ctx context.Context, referencePath, candidatePath string, diag io.Writer) (Measures, error)
}

// Create builds a metric of the given kind from loosely typed parameters,
// as read from a config file.
func Create(kind Kind, params map[string]any) (Metric, error) {
	switch kind {
	case KindCSV, "":
		var v struct {
			HeaderRows *int `mapstructure:"header_rows"`
		}
		if err := mapstructure.Decode(params, &v); err != nil {
			return nil, fmt.Errorf("decoding csv metric params: %w", err)
		}

		headerRows := DefaultHeaderRows
		if v.HeaderRows != nil {
			headerRows = *v.HeaderRows
		}
		return NewCSVMetric(headerRows)
	case KindProgram:
		var args ProgramMetricArgs
		if err := mapstructure.Decode(params, &args); err != nil {
			return nil, fmt.Errorf("decoding program metric params: %w", err)
		}
		return NewProgramMetric(args)
	default:
		return nil, fmt.Errorf("'%s' is not a valid metric kind", kind)
	}
}
