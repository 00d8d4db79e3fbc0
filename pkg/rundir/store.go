// Package rundir reads the run directory written by the batch scheduler.
//
// Layout, relative to the base location:
//
//	report_queue.json
//	<key>/status.txt
//	<key>/output/subset/<job name>/<year>.<...>
//
// The scheduler owns every file; Store never writes.
package rundir

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/3leaps/runprogress/pkg/provider"
	"github.com/3leaps/runprogress/pkg/provider/file"
	"github.com/3leaps/runprogress/pkg/provider/s3"
	"github.com/3leaps/runprogress/pkg/reportqueue"
)

const (
	// StatusFileName is the per-job status marker.
	StatusFileName = "status.txt"

	// StatusUnknown is reported when a job has no status marker.
	StatusUnknown = "unknown"

	// maxObjectBytes bounds status and queue reads.
	maxObjectBytes = 64 << 20
)

// Store reads run directory artifacts through a provider.
type Store struct {
	p provider.Provider
}

// NewStore wraps a provider rooted at the run directory base.
func NewStore(p provider.Provider) *Store {
	return &Store{p: p}
}

// S3Options carries S3 settings that cannot be expressed in a location URI.
type S3Options struct {
	Region         string
	Endpoint       string
	Profile        string
	ForcePathStyle bool
}

// Open parses base and opens a Store on the matching provider.
func Open(ctx context.Context, base string, opts S3Options) (*Store, error) {
	loc, err := ParseLocation(base)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "s3":
		p, err := s3.New(ctx, s3.Config{
			Bucket:         loc.Bucket,
			Prefix:         loc.Prefix,
			Region:         opts.Region,
			Endpoint:       opts.Endpoint,
			Profile:        opts.Profile,
			ForcePathStyle: opts.ForcePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", loc, err)
		}
		return NewStore(p), nil
	default:
		p, err := file.New(file.Config{BaseDir: loc.Path})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", loc, err)
		}
		return NewStore(p), nil
	}
}

// Close releases the underlying provider.
func (s *Store) Close() error {
	return s.p.Close()
}

// StatusPath is the status marker key for a job.
func (s *Store) StatusPath(key string) string {
	return path.Join(key, StatusFileName)
}

// OutputDir is the year-labeled output directory for a job.
func (s *Store) OutputDir(key, jobName string) string {
	return path.Join(key, "output", "subset", jobName)
}

// ReadStatus returns the job's raw status string with surrounding whitespace
// removed, or StatusUnknown when the marker does not exist.
func (s *Store) ReadStatus(ctx context.Context, key string) (string, error) {
	b, err := s.read(ctx, s.StatusPath(key))
	if err != nil {
		if provider.IsNotFound(err) {
			return StatusUnknown, nil
		}
		return "", fmt.Errorf("read status for %s: %w", key, err)
	}
	return strings.TrimSpace(string(b)), nil
}

// ReadQueue reads and parses the report queue. Malformed records are
// reported in the queue's Issues rather than failing the read.
func (s *Store) ReadQueue(ctx context.Context) (*reportqueue.Queue, error) {
	b, err := s.read(ctx, reportqueue.FileName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", reportqueue.FileName, err)
	}
	return reportqueue.Parse(b)
}

// ListDir returns the names of the non-directory entries in dir. A missing
// directory yields an empty listing.
func (s *Store) ListDir(ctx context.Context, dir string) ([]string, error) {
	entries, err := provider.ListAll(ctx, s.p, dir)
	if err != nil {
		if provider.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir {
			continue
		}
		names = append(names, e.Name)
	}
	return names, nil
}

// Ping verifies the base location can be listed.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.p.List(ctx, provider.ListOptions{MaxKeys: 1})
	return err
}

func (s *Store) read(ctx context.Context, key string) ([]byte, error) {
	body, _, err := s.p.GetObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	b, err := io.ReadAll(io.LimitReader(body, maxObjectBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxObjectBytes {
		return nil, fmt.Errorf("%s exceeds %d bytes", key, maxObjectBytes)
	}
	return b, nil
}
