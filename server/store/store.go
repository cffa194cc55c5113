// Package store persists the ledger of index runs served by the API.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// IndexRun records one index request.
type IndexRun struct {
	RunID       string `json:"run_id"`
	SourceKey   string `json:"source_key"`
	TotalChunks int    `json:"total_chunks"`
	TotalTokens int    `json:"total_tokens"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms"`
	Timestamp   int64  `json:"timestamp"`
}

// RunSummary aggregates the whole ledger.
type RunSummary struct {
	TotalRuns    int     `json:"total_runs"`
	FailedRuns   int     `json:"failed_runs"`
	Sources      int     `json:"sources"`
	TotalChunks  int64   `json:"total_chunks"`
	TotalTokens  int64   `json:"total_tokens"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// ListOptions filters List. An empty SourceKey lists every source.
type ListOptions struct {
	SourceKey string
	Limit     int
}

// RunStore defines the interface for index-run persistence.
type RunStore interface {
	Add(ctx context.Context, r IndexRun) (IndexRun, error)
	Get(ctx context.Context, id string) (IndexRun, error)
	List(ctx context.Context, opts ListOptions) ([]IndexRun, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context) (RunSummary, error)
	Close() error
}

// prepare fills the generated fields of a run about to be stored.
func prepare(r IndexRun) IndexRun {
	if r.RunID == "" {
		r.RunID = uuid.NewString()
	}
	if r.Timestamp == 0 {
		r.Timestamp = time.Now().UnixMilli()
	}
	if r.Status == "" {
		r.Status = StatusSucceeded
		if r.Error != "" {
			r.Status = StatusFailed
		}
	}
	return r
}

func listLimit(opts ListOptions) int {
	if opts.Limit <= 0 {
		return DefaultListLimit
	}
	return opts.Limit
}
