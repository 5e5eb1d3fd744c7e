package metrics

import "fmt"

// Positions of the summary F1 values in the external metric report. The
// report is a flat tuple of precision, recall and F1 for the header, the
// records and the cells, in that order.
const (
	posHeaderPrecision = iota
	posHeaderRecall
	posHeaderF1
	posRecordPrecision
	posRecordRecall
	posRecordF1
	posCellPrecision
	posCellRecall
	posCellF1

	tupleLen
)

// Measures is the full metric report for one reference/candidate pair.
type Measures struct {
	HeaderPrecision float64 `json:"header_precision"`
	HeaderRecall    float64 `json:"header_recall"`
	HeaderF1        float64 `json:"header_f1"`
	RecordPrecision float64 `json:"record_precision"`
	RecordRecall    float64 `json:"record_recall"`
	RecordF1        float64 `json:"record_f1"`
	CellPrecision   float64 `json:"cell_precision"`
	CellRecall      float64 `json:"cell_recall"`
	CellF1          float64 `json:"cell_f1"`
}

// MeasuresFromTuple maps a positional metric report onto named fields.
// Values past the known positions are ignored.
func MeasuresFromTuple(values []float64) (Measures, error) {
	if len(values) < tupleLen {
		return Measures{}, fmt.Errorf("metric report has %d values, expected at least %d", len(values), tupleLen)
	}
	return Measures{
		HeaderPrecision: values[posHeaderPrecision],
		HeaderRecall:    values[posHeaderRecall],
		HeaderF1:        values[posHeaderF1],
		RecordPrecision: values[posRecordPrecision],
		RecordRecall:    values[posRecordRecall],
		RecordF1:        values[posRecordF1],
		CellPrecision:   values[posCellPrecision],
		CellRecall:      values[posCellRecall],
		CellF1:          values[posCellF1],
	}, nil
}

// Tuple returns the positional form of m.
func (m Measures) Tuple() []float64 {
	t := make([]float64, tupleLen)
	t[posHeaderPrecision] = m.HeaderPrecision
	t[posHeaderRecall] = m.HeaderRecall
	t[posHeaderF1] = m.HeaderF1
	t[posRecordPrecision] = m.RecordPrecision
	t[posRecordRecall] = m.RecordRecall
	t[posRecordF1] = m.RecordF1
	t[posCellPrecision] = m.CellPrecision
	t[posCellRecall] = m.CellRecall
	t[posCellF1] = m.CellF1
	return t
}
