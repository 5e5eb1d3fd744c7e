package metrics

import "github.com/spboyer/loadeval/internal/models"

// Aggregate reduces a ResultSet to its summary statistics. Failed records
// contribute zero to every mean, so each score mean is sum/N over all
// records, not only the successful ones.
//
// The caller must not pass an empty set.
func Aggregate(results models.ResultSet) models.SummaryStatistics {
	n := len(results)
	success := make([]float64, 0, n)
	header := make([]float64, 0, n)
	record := make([]float64, 0, n)
	cell := make([]float64, 0, n)

	succeeded := 0
	for _, r := range results {
		if r.Succeeded() {
			succeeded++
		}
		success = append(success, float64(r.Success))
		header = append(header, r.HeaderF1)
		record = append(record, r.RecordF1)
		cell = append(cell, r.CellF1)
	}

	return models.SummaryStatistics{
		Total:       n,
		Succeeded:   succeeded,
		SuccessRate: Mean(success),
		HeaderF1:    Mean(header),
		RecordF1:    Mean(record),
		CellF1:      Mean(cell),
	}
}
