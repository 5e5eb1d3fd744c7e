package models

import "time"

// State is the terminal state of a batch run.
type State string

const (
	StateInit            State = "init"
	StateSubmitting      State = "submitting"
	StateCollecting      State = "collecting"
	StateDone            State = "done"
	StateDeadlineExpired State = "deadline_expired"
)

// Terminal reports whether the batch has stopped collecting.
func (s State) Terminal() bool {
	return s == StateDone || s == StateDeadlineExpired
}

// WorkItem identifies one evaluation unit: the file name of a reference
// input, e.g. "survey_001.csv".
type WorkItem string

// ResultRecord is the fixed-shape outcome of scoring one WorkItem.
// Scores stay at zero unless Success is 1.
type ResultRecord struct {
	Item     WorkItem `json:"file"`
	Success  int      `json:"success"`
	HeaderF1 float64  `json:"header_f1"`
	RecordF1 float64  `json:"record_f1"`
	CellF1   float64  `json:"cell_f1"`
}

// Succeeded reports whether the record carries metric scores.
func (r ResultRecord) Succeeded() bool {
	return r.Success == 1
}

// FailedRecord returns the zero record for item.
func FailedRecord(item WorkItem) ResultRecord {
	return ResultRecord{Item: item}
}

// ResultSet holds records in the order they arrived.
type ResultSet []ResultRecord

// EvaluationOutcome represents the complete result of a batch run
type EvaluationOutcome struct {
	Dataset   string       `json:"dataset"`
	System    string       `json:"system"`
	Timestamp time.Time    `json:"timestamp"`
	Setup     OutcomeSetup `json:"config"`
	State     State        `json:"state"`

	Submitted int `json:"submitted"`
	Collected int `json:"collected"`
	Cancelled int `json:"cancelled"`
	// Orphaned counts items that were still running when the deadline
	// expired. Their results are discarded.
	Orphaned int `json:"orphaned"`

	DurationMs int64             `json:"duration_ms"`
	Summary    SummaryStatistics `json:"summary"`
	Results    ResultSet         `json:"results"`
}

// Partial reports whether the outcome was aggregated from fewer records
// than were submitted.
func (o *EvaluationOutcome) Partial() bool {
	return o.Collected < o.Submitted
}

type OutcomeSetup struct {
	Metric     string `json:"metric"`
	Workers    int    `json:"workers"`
	DeadlineMs int64  `json:"deadline_ms"`
	InputDir   string `json:"input_dir"`
	ResultsDir string `json:"results_dir"`
}
