package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
)

// ReadRecords reads every row of a CSV file. When strict is set, every row
// must have the same number of fields as the first one.
func ReadRecords(path string, strict bool) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	if !strict {
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
	}
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csv: parse %s: %w", path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("csv: %s is empty (no header row)", path)
	}

	return records, nil
}

// SplitHeader separates the first headerRows rows from the data rows.
// headerRows is clamped to the number of available rows.
func SplitHeader(records [][]string, headerRows int) (header, data [][]string) {
	if headerRows < 0 {
		headerRows = 0
	}
	if headerRows > len(records) {
		headerRows = len(records)
	}
	return records[:headerRows], records[headerRows:]
}
