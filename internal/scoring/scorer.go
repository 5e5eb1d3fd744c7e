// Package scoring turns one work item into one ResultRecord.
package scoring

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spboyer/loadeval/internal/cache"
	"github.com/spboyer/loadeval/internal/dataset"
	"github.com/spboyer/loadeval/internal/metrics"
	"github.com/spboyer/loadeval/internal/models"
)

// ErrInvalidCandidate is the failure reason when the metric rejects a
// candidate file before measuring it.
var ErrInvalidCandidate = errors.New("candidate file is not valid")

// Result is a scored record plus where it came from.
type Result struct {
	Record models.ResultRecord
	// Cached is true when the record was served from the result cache.
	Cached bool
}

// Scorer evaluates single items against a metric. It is safe for
// concurrent use as long as the metric is.
type Scorer struct {
	layout dataset.Layout
	metric metrics.Metric
	cache  *cache.Cache
}

// Option configures a Scorer.
type Option func(*Scorer)

// WithCache enables result caching. A nil cache disables it.
func WithCache(c *cache.Cache) Option {
	return func(s *Scorer) {
		s.cache = c
	}
}

// New creates a Scorer for items laid out according to layout.
func New(layout dataset.Layout, metric metrics.Metric, opts ...Option) *Scorer {
	s := &Scorer{layout: layout, metric: metric}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score evaluates item and always returns a record. Every failure,
// including a panic inside the metric, becomes the zero record.
func (s *Scorer) Score(ctx context.Context, item models.WorkItem) models.ResultRecord {
	return s.Evaluate(ctx, item).Record
}

// Evaluate is Score with cache provenance.
func (s *Scorer) Evaluate(ctx context.Context, item models.WorkItem) (res Result) {
	var diag bytes.Buffer

	defer func() {
		if r := recover(); r != nil {
			res = Result{Record: recordFor(item, metrics.Measures{}, fmt.Errorf("metric panicked: %v", r))}
		}
		flushDiagnostics(ctx, item, &diag)
	}()

	referencePath := s.layout.ReferencePath(item)
	candidatePath := s.layout.CandidatePath(item)

	if err := dataset.CheckCandidate(candidatePath); err != nil {
		return Result{Record: recordFor(item, metrics.Measures{}, err)}
	}

	key := s.cacheKey(item, referencePath, candidatePath)
	if key != "" {
		if rec, ok := s.cache.Get(key); ok {
			slog.Debug("cache hit", "item", item, "key", key)
			return Result{Record: *rec, Cached: true}
		}
	}

	m, err := s.measure(ctx, referencePath, candidatePath, &diag)
	rec := recordFor(item, m, err)

	// A cancelled call says nothing about the files, so keep it out of the cache.
	if key != "" && ctx.Err() == nil {
		if err := s.cache.Put(key, &rec); err != nil {
			slog.Warn("failed to cache result", "item", item, "error", err)
		}
	}
	return Result{Record: rec}
}

func (s *Scorer) measure(ctx context.Context, referencePath, candidatePath string, diag io.Writer) (metrics.Measures, error) {
	if err := ctx.Err(); err != nil {
		return metrics.Measures{}, err
	}

	ok, err := s.metric.Valid(ctx, candidatePath, diag)
	if err != nil {
		return metrics.Measures{}, fmt.Errorf("checking %s: %w", candidatePath, err)
	}
	if !ok {
		return metrics.Measures{}, fmt.Errorf("%s: %w", candidatePath, ErrInvalidCandidate)
	}

	return s.metric.Measure(ctx, referencePath, candidatePath, diag)
}

func (s *Scorer) cacheKey(item models.WorkItem, referencePath, candidatePath string) string {
	if s.cache == nil {
		return ""
	}
	key, err := cache.CacheKey(s.metric.Name(), item, referencePath, candidatePath)
	if err != nil {
		slog.Debug("skipping cache", "item", item, "error", err)
		return ""
	}
	return key
}

// recordFor is the only place a failure turns into data.
func recordFor(item models.WorkItem, m metrics.Measures, err error) models.ResultRecord {
	if err != nil {
		slog.Debug("item failed", "item", item, "error", err)
		return models.FailedRecord(item)
	}
	return models.ResultRecord{
		Item:     item,
		Success:  1,
		HeaderF1: m.HeaderF1,
		RecordF1: m.RecordF1,
		CellF1:   m.CellF1,
	}
}

func flushDiagnostics(ctx context.Context, item models.WorkItem, diag *bytes.Buffer) {
	if diag.Len() == 0 || !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return
	}
	slog.Debug("metric diagnostics", "item", item, "output", diag.String())
}
