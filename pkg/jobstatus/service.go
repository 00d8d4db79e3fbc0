// Package jobstatus assembles the client-facing progress report for one job.
package jobstatus

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/3leaps/runprogress/pkg/progress"
	"github.com/3leaps/runprogress/pkg/reportqueue"
)

// Store is the run directory as seen by the aggregator.
type Store interface {
	progress.DirLister

	// ReadStatus returns the status marker for key, or a placeholder when
	// the marker is absent.
	ReadStatus(ctx context.Context, key string) (string, error)

	// ReadQueue reads and parses the report queue.
	ReadQueue(ctx context.Context) (*reportqueue.Queue, error)

	// OutputDir is the year-labeled output directory of a job.
	OutputDir(key, jobName string) string
}

// StatusResponse is the payload returned to polling clients.
type StatusResponse struct {
	// Status is the job's status marker with surrounding whitespace trimmed.
	Status                   string  `json:"status" yaml:"status"`
	CurrentYear              int     `json:"currentYear" yaml:"currentYear"`
	TotalYears               int     `json:"totalYears" yaml:"totalYears"`
	FileCount                int     `json:"fileCount" yaml:"fileCount"`
	EstimatedPercentComplete float64 `json:"estimatedPercentComplete" yaml:"estimatedPercentComplete"`
	// TimeRemaining is in milliseconds.
	TimeRemaining float64 `json:"timeRemaining" yaml:"timeRemaining"`
}

// Service answers status queries. It holds no per-request state and is safe
// for concurrent use.
type Service struct {
	store     Store
	estimator *progress.Estimator
	logger    *zap.Logger
}

// NewService creates a Service. A nil logger disables logging.
func NewService(store Store, estimator *progress.Estimator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, estimator: estimator, logger: logger}
}

// GetStatus reports progress for the job identified by key whose output is
// written under jobName.
//
// The status marker and the queue record are read independently; a job that
// finishes between the two reads may report a stale marker.
func (s *Service) GetStatus(ctx context.Context, key, jobName string) (*StatusResponse, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: key parameter is required", ErrMissingParameter)
	}
	if !validSegment(key) {
		return nil, fmt.Errorf("%w: key %q", ErrInvalidParameter, key)
	}
	if jobName != "" && !validSegment(jobName) {
		return nil, fmt.Errorf("%w: name %q", ErrInvalidParameter, jobName)
	}

	status, err := s.store.ReadStatus(ctx, key)
	if err != nil {
		s.logger.Error("Failed to read status marker", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	queue, err := s.store.ReadQueue(ctx)
	if err != nil {
		s.logger.Error("Failed to read report queue", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	for _, issue := range queue.Issues {
		s.logger.Warn("Malformed report queue record",
			zap.Int("index", issue.Index),
			zap.String("record_key", issue.Key),
			zap.Bool("dropped", issue.Dropped),
			zap.Error(issue.Err))
	}

	job, ok := queue.Find(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	dir := s.store.OutputDir(key, jobName)
	snap, err := s.estimator.Estimate(ctx, s.store, dir, job.StartYear, job.EndYear, job.StartedAt(), job.IsComplete())
	if err != nil {
		s.logger.Error("Failed to list job output", zap.String("key", key), zap.String("dir", dir), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	resp := &StatusResponse{
		Status:                   status,
		CurrentYear:              len(snap.Years),
		TotalYears:               job.TotalYears(),
		FileCount:                snap.Count,
		EstimatedPercentComplete: snap.EstimatedPercentComplete,
		TimeRemaining:            snap.TimeRemainingMillis(),
	}
	if job.IsComplete() {
		resp.EstimatedPercentComplete = 1
		resp.TimeRemaining = 0
	}

	s.logger.Debug("Job status",
		zap.String("key", key),
		zap.String("name", jobName),
		zap.String("status", status),
		zap.Int("file_count", resp.FileCount),
		zap.Float64("percent", resp.EstimatedPercentComplete))

	return resp, nil
}

// validSegment reports whether s can be used as a single path segment.
func validSegment(s string) bool {
	if s == "." || s == ".." {
		return false
	}
	return !strings.ContainsAny(s, `/\`) && !strings.Contains(s, "\x00")
}
