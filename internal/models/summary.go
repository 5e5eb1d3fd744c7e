package models

// SummaryStatistics is computed once over a complete or partial ResultSet.
// Every ratio is in [0, 1].
type SummaryStatistics struct {
	Total       int     `json:"total"`
	Succeeded   int     `json:"succeeded"`
	SuccessRate float64 `json:"success_rate"`
	HeaderF1    float64 `json:"header_f1"`
	RecordF1    float64 `json:"record_f1"`
	CellF1      float64 `json:"cell_f1"`
}
