// Package orchestration runs a batch of work items through the worker pool
// under a single deadline and reduces what arrives into an outcome.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spboyer/loadeval/internal/config"
	"github.com/spboyer/loadeval/internal/metrics"
	"github.com/spboyer/loadeval/internal/models"
	"github.com/spboyer/loadeval/internal/pool"
	"github.com/spboyer/loadeval/internal/scoring"
)

// Fatal harness conditions. Everything else a batch can run into is
// reported through the outcome.
var (
	ErrResultsDirMissing = errors.New("results directory does not exist")
	ErrInputsUnavailable = errors.New("input directory cannot be read")
	ErrNoResults         = errors.New("no results were collected")
)

// ItemScorer scores a single work item. Implementations must not return
// until they have a record, and must not panic for ordinary failures.
type ItemScorer interface {
	Evaluate(ctx context.Context, item models.WorkItem) scoring.Result
}

// ProgressListener receives progress updates
type ProgressListener func(event ProgressEvent)

// EventType represents the type of progress event
type EventType string

const (
	EventBatchStart      EventType = "batch_start"
	EventItemComplete    EventType = "item_complete"
	EventDeadlineExpired EventType = "deadline_expired"
	EventBatchComplete   EventType = "batch_complete"
)

// ProgressEvent represents a progress update
type ProgressEvent struct {
	EventType EventType
	Item      models.WorkItem
	// Index is the 1-based arrival position of Item.
	Index   int
	Total   int
	Workers int
	Record  models.ResultRecord
	Cached  bool

	// Set on EventDeadlineExpired.
	Collected int
	Cancelled int
	Orphaned  int

	State      models.State
	DurationMs int64
}

// Coordinator drives one batch: submit every item, collect in arrival
// order until done or out of time, then aggregate.
type Coordinator struct {
	cfg        *config.EvalConfig
	scorer     ItemScorer
	metricName string

	stateMu sync.Mutex
	state   models.State

	progressMu sync.Mutex
	listeners  []ProgressListener
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMetricName records the metric identity in the outcome.
func WithMetricName(name string) CoordinatorOption {
	return func(c *Coordinator) {
		c.metricName = name
	}
}

// NewCoordinator creates a coordinator in the INIT state.
func NewCoordinator(cfg *config.EvalConfig, scorer ItemScorer, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		cfg:    cfg,
		scorer: scorer,
		state:  models.StateInit,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// OnProgress registers a progress listener
func (c *Coordinator) OnProgress(listener ProgressListener) {
	c.progressMu.Lock()
	defer c.progressMu.Unlock()
	c.listeners = append(c.listeners, listener)
}

func (c *Coordinator) notifyProgress(event ProgressEvent) {
	c.progressMu.Lock()
	listeners := make([]ProgressListener, len(c.listeners))
	copy(listeners, c.listeners)
	c.progressMu.Unlock()

	for _, listener := range listeners {
		listener(event)
	}
}

// State returns the current lifecycle state.
func (c *Coordinator) State() models.State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s models.State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
	slog.Debug("batch state changed", "state", s)
}

// Workers returns the pool size the batch will use.
func (c *Coordinator) Workers() int {
	if n := c.cfg.Workers(); n > 0 {
		return n
	}
	return pool.DefaultSize()
}

// Run checks the directory layout, enumerates the inputs and evaluates
// them. A missing results directory or unreadable input directory stops
// the run before anything is submitted.
func (c *Coordinator) Run(ctx context.Context) (*models.EvaluationOutcome, error) {
	layout := c.cfg.Layout()

	info, err := os.Stat(layout.ResultsDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", layout.ResultsDir, ErrResultsDirMissing)
	}

	items, err := layout.ListInputs()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputsUnavailable, err)
	}

	return c.RunItems(ctx, items)
}

// RunItems evaluates items. Deadline expiry and parent cancellation are not
// errors: whatever arrived in time is aggregated. ErrNoResults is returned
// when nothing arrived at all.
func (c *Coordinator) RunItems(ctx context.Context, items []models.WorkItem) (*models.EvaluationOutcome, error) {
	startTime := time.Now()
	workers := c.Workers()

	p := pool.New[scoring.Result](workers)
	// Close detaches anything still running; its result is never read.
	defer p.Close()

	c.notifyProgress(ProgressEvent{
		EventType: EventBatchStart,
		Total:     len(items),
		Workers:   workers,
	})

	c.setState(models.StateSubmitting)
	futures := make([]*pool.Future[scoring.Result], 0, len(items))
	owners := make(map[*pool.Future[scoring.Result]]models.WorkItem, len(items))
	for _, item := range items {
		f, err := p.Submit(
			func(ctx context.Context) scoring.Result { return c.scorer.Evaluate(ctx, item) },
			func(any) scoring.Result { return scoring.Result{Record: models.FailedRecord(item)} },
		)
		if err != nil {
			return nil, fmt.Errorf("submitting %s: %w", item, err)
		}
		futures = append(futures, f)
		owners[f] = item
	}

	c.setState(models.StateCollecting)
	collectCtx, cancel := context.WithTimeout(ctx, c.cfg.Deadline())
	defer cancel()

	results := make(models.ResultSet, 0, len(futures))
	collected := make(map[*pool.Future[scoring.Result]]bool, len(futures))
	for f := range pool.AsCompleted(collectCtx, futures) {
		res := f.Result()
		results = append(results, res.Record)
		collected[f] = true

		c.notifyProgress(ProgressEvent{
			EventType: EventItemComplete,
			Item:      owners[f],
			Index:     len(results),
			Total:     len(futures),
			Record:    res.Record,
			Cached:    res.Cached,
		})
	}

	var cancelled, orphaned int
	if len(results) == len(futures) {
		c.setState(models.StateDone)
	} else {
		for _, f := range futures {
			if collected[f] {
				continue
			}
			if f.Cancel() {
				cancelled++
			} else {
				orphaned++
			}
		}
		c.setState(models.StateDeadlineExpired)

		slog.Debug("collection stopped early", "reason", context.Cause(collectCtx),
			"collected", len(results), "cancelled", cancelled, "orphaned", orphaned)
		c.notifyProgress(ProgressEvent{
			EventType: EventDeadlineExpired,
			Total:     len(futures),
			Collected: len(results),
			Cancelled: cancelled,
			Orphaned:  orphaned,
		})
	}

	state := c.State()
	duration := time.Since(startTime)
	c.notifyProgress(ProgressEvent{
		EventType:  EventBatchComplete,
		Total:      len(futures),
		Collected:  len(results),
		State:      state,
		DurationMs: duration.Milliseconds(),
	})

	if len(results) == 0 {
		return nil, ErrNoResults
	}

	return &models.EvaluationOutcome{
		Dataset:   c.cfg.Dataset(),
		System:    c.cfg.System(),
		Timestamp: startTime,
		Setup: models.OutcomeSetup{
			Metric:     c.metricName,
			Workers:    workers,
			DeadlineMs: c.cfg.Deadline().Milliseconds(),
			InputDir:   c.cfg.InputDir(),
			ResultsDir: c.cfg.ResultsDir(),
		},
		State:      state,
		Submitted:  len(futures),
		Collected:  len(results),
		Cancelled:  cancelled,
		Orphaned:   orphaned,
		DurationMs: duration.Milliseconds(),
		Summary:    metrics.Aggregate(results),
		Results:    results,
	}, nil
}
