package metrics

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spboyer/loadeval/internal/dataset"
)

// DefaultHeaderRows is the number of leading rows treated as the header.
const DefaultHeaderRows = 1

// csvMetric compares two CSV files as multisets of header cells, data
// records and data cells, and reports precision, recall and F1 for each.
type csvMetric struct {
	headerRows int
}

// NewCSVMetric creates the built-in CSV metric.
func NewCSVMetric(headerRows int) (*csvMetric, error) {
	if headerRows < 0 {
		return nil, fmt.Errorf("header rows must be >= 0, got %d", headerRows)
	}
	return &csvMetric{headerRows: headerRows}, nil
}

func (m *csvMetric) Name() string { return fmt.Sprintf("%s(header_rows=%d)", KindCSV, m.headerRows) }

func (m *csvMetric) Valid(ctx context.Context, path string, diag io.Writer) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := dataset.ReadRecords(path, true); err != nil {
		fmt.Fprintf(diag, "not a valid csv: %v\n", err) //nolint:errcheck
		return false, nil
	}
	return true, nil
}

func (m *csvMetric) Measure(ctx context.Context, referencePath, candidatePath string, diag io.Writer) (Measures, error) {
	if err := ctx.Err(); err != nil {
		return Measures{}, err
	}

	ref, err := dataset.ReadRecords(referencePath, false)
	if err != nil {
		return Measures{}, fmt.Errorf("reading reference: %w", err)
	}
	cand, err := dataset.ReadRecords(candidatePath, false)
	if err != nil {
		return Measures{}, fmt.Errorf("reading candidate: %w", err)
	}

	refHeader, refData := dataset.SplitHeader(ref, m.headerRows)
	candHeader, candData := dataset.SplitHeader(cand, m.headerRows)

	var out Measures
	out.HeaderPrecision, out.HeaderRecall, out.HeaderF1 = compare(cells(refHeader), cells(candHeader))
	out.RecordPrecision, out.RecordRecall, out.RecordF1 = compare(rows(refData), rows(candData))
	out.CellPrecision, out.CellRecall, out.CellF1 = compare(cells(refData), cells(candData))

	fmt.Fprintf(diag, "header p=%.4f r=%.4f f1=%.4f\n", out.HeaderPrecision, out.HeaderRecall, out.HeaderF1) //nolint:errcheck
	fmt.Fprintf(diag, "record p=%.4f r=%.4f f1=%.4f\n", out.RecordPrecision, out.RecordRecall, out.RecordF1) //nolint:errcheck
	fmt.Fprintf(diag, "cell   p=%.4f r=%.4f f1=%.4f\n", out.CellPrecision, out.CellRecall, out.CellF1)     //nolint:errcheck

	return out, nil
}

func cells(records [][]string) []string {
	var out []string
	for _, rec := range records {
		for _, c := range rec {
			out = append(out, strings.TrimSpace(c))
		}
	}
	return out
}

func rows(records [][]string) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		trimmed := make([]string, len(rec))
		for i, c := range rec {
			trimmed[i] = strings.TrimSpace(c)
		}
		out = append(out, strings.Join(trimmed, "\x1f"))
	}
	return out
}

// compare matches candidate values against reference values as multisets.
// Two empty sides agree perfectly.
func compare(reference, candidate []string) (precision, recall, f1 float64) {
	if len(reference) == 0 && len(candidate) == 0 {
		return 1, 1, 1
	}

	remaining := make(map[string]int, len(reference))
	for _, v := range reference {
		remaining[v]++
	}
	matched := 0
	for _, v := range candidate {
		if remaining[v] > 0 {
			remaining[v]--
			matched++
		}
	}

	if len(candidate) > 0 {
		precision = float64(matched) / float64(len(candidate))
	}
	if len(reference) > 0 {
		recall = float64(matched) / float64(len(reference))
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return precision, recall, f1
}
