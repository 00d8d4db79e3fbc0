package jobstatus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/3leaps/runprogress/pkg/progress"
	"github.com/3leaps/runprogress/pkg/reportqueue"
	"github.com/3leaps/runprogress/pkg/rundir"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	status    string
	statusErr error
	records   []reportqueue.JobRecord
	issues    []reportqueue.Issue
	queueErr  error
	names     []string
	listErr   error

	calls   []string
	listDir string
}

func (f *fakeStore) ReadStatus(ctx context.Context, key string) (string, error) {
	f.calls = append(f.calls, "status")
	if f.statusErr != nil {
		return "", f.statusErr
	}
	if f.status == "" {
		return rundir.StatusUnknown, nil
	}
	return f.status, nil
}

func (f *fakeStore) ReadQueue(ctx context.Context) (*reportqueue.Queue, error) {
	f.calls = append(f.calls, "queue")
	if f.queueErr != nil {
		return nil, f.queueErr
	}
	return &reportqueue.Queue{Records: f.records, Issues: f.issues}, nil
}

func (f *fakeStore) ListDir(ctx context.Context, dir string) ([]string, error) {
	f.calls = append(f.calls, "list")
	f.listDir = dir
	return f.names, f.listErr
}

func (f *fakeStore) OutputDir(key, jobName string) string {
	return key + "/output/subset/" + jobName
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	est, err := progress.New(progress.DefaultConfig(), progress.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return NewService(store, est, zap.NewNop())
}

func startedAt(t time.Time) *reportqueue.Timestamp {
	return &reportqueue.Timestamp{Time: t}
}

func TestGetStatus_MissingKeyTouchesNothing(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store)

	for _, key := range []string{"", "   "} {
		_, err := svc.GetStatus(context.Background(), key, "ET")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingParameter)
	}
	assert.Empty(t, store.calls)
}

func TestGetStatus_InvalidParameters(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(t, store)

	tests := []struct {
		key  string
		name string
	}{
		{"../etc", "ET"},
		{"..", "ET"},
		{"a/b", "ET"},
		{"job-1", "../../x"},
		{"job-1", `sub\dir`},
	}
	for _, tt := range tests {
		t.Run(tt.key+"|"+tt.name, func(t *testing.T) {
			_, err := svc.GetStatus(context.Background(), tt.key, tt.name)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
	assert.Empty(t, store.calls)
}

func TestGetStatus_NotFoundEvenWithStatusMarker(t *testing.T) {
	store := &fakeStore{
		status:  "Running",
		records: []reportqueue.JobRecord{{Key: "other", StartYear: 2000, EndYear: 2001}},
	}
	svc := newTestService(t, store)

	_, err := svc.GetStatus(context.Background(), "job-1", "ET")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []string{"status", "queue"}, store.calls)
}

func TestGetStatus_QueueFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	est, err := progress.New(progress.DefaultConfig())
	require.NoError(t, err)

	store := &fakeStore{queueErr: errors.New("parse report_queue.json: unexpected end of JSON input")}
	svc := NewService(store, est, zap.New(core))

	_, err = svc.GetStatus(context.Background(), "job-1", "ET")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "unexpected end of JSON input")
	assert.Equal(t, 1, logs.FilterMessage("Failed to read report queue").Len())
}

func TestGetStatus_StoreFailures(t *testing.T) {
	records := []reportqueue.JobRecord{{Key: "job-1", StartYear: 2000, EndYear: 2001}}

	t.Run("status marker unreadable", func(t *testing.T) {
		svc := newTestService(t, &fakeStore{statusErr: errors.New("access denied"), records: records})
		_, err := svc.GetStatus(context.Background(), "job-1", "ET")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})

	t.Run("output listing fails", func(t *testing.T) {
		svc := newTestService(t, &fakeStore{listErr: errors.New("throttled"), records: records})
		_, err := svc.GetStatus(context.Background(), "job-1", "ET")
		assert.ErrorIs(t, err, ErrStoreUnavailable)
	})
}

func TestGetStatus_InProgress(t *testing.T) {
	store := &fakeStore{
		status: "Processing 2001",
		records: []reportqueue.JobRecord{
			{Key: "job-1", StartYear: 2000, EndYear: 2002, Status: "In Progress"},
		},
		names: []string{"2000.a", "2000.b", "2001.a", "notes.txt"},
	}
	svc := newTestService(t, store)

	resp, err := svc.GetStatus(context.Background(), "job-1", "ET")
	require.NoError(t, err)

	assert.Equal(t, "job-1/output/subset/ET", store.listDir)
	assert.Equal(t, "Processing 2001", resp.Status)
	assert.Equal(t, 2, resp.CurrentYear)
	assert.Equal(t, 3, resp.TotalYears)
	assert.Equal(t, 3, resp.FileCount)
	assert.InDelta(t, 3.0/602.0, resp.EstimatedPercentComplete, 1e-12)
	// No start time: 3 years * 3.5 minutes.
	assert.InDelta(t, 630000.0, resp.TimeRemaining, 1e-6)
}

func TestGetStatus_ExtrapolatesFromStartTime(t *testing.T) {
	names := make([]string, 0, 300)
	for i := 0; i < 300; i++ {
		names = append(names, fmt.Sprintf("2000.%03d.tif", i))
	}
	store := &fakeStore{
		records: []reportqueue.JobRecord{
			{Key: "job-1", StartYear: 2000, EndYear: 2001, Started: startedAt(fixedNow.Add(-30 * time.Minute)), Status: "In Progress"},
		},
		names: names,
	}
	svc := newTestService(t, store)

	resp, err := svc.GetStatus(context.Background(), "job-1", "ET")
	require.NoError(t, err)

	assert.Equal(t, rundir.StatusUnknown, resp.Status)
	assert.InDelta(t, 0.5, resp.EstimatedPercentComplete, 1e-12)
	assert.InDelta(t, float64(30*time.Minute/time.Millisecond), resp.TimeRemaining, 1)
}

func TestGetStatus_CompleteOverridesEstimate(t *testing.T) {
	tests := []struct {
		name  string
		names []string
	}{
		{"no output at all", nil},
		{"partial output", []string{"2000.a", "2001.a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{
				status: "Complete",
				records: []reportqueue.JobRecord{
					{Key: "job-1", StartYear: 2000, EndYear: 2010, Started: startedAt(fixedNow.Add(-time.Hour)), Status: reportqueue.StatusComplete},
				},
				names: tt.names,
			}
			svc := newTestService(t, store)

			resp, err := svc.GetStatus(context.Background(), "job-1", "ET")
			require.NoError(t, err)
			assert.Equal(t, 1.0, resp.EstimatedPercentComplete)
			assert.Equal(t, 0.0, resp.TimeRemaining)
			assert.Equal(t, 11, resp.TotalYears)
			assert.Equal(t, len(tt.names), resp.FileCount)
		})
	}
}

func TestGetStatus_DuplicateKeysUseFirst(t *testing.T) {
	store := &fakeStore{
		records: []reportqueue.JobRecord{
			{Key: "job-1", StartYear: 2000, EndYear: 2000, Status: "Pending"},
			{Key: "job-1", StartYear: 1990, EndYear: 2020, Status: reportqueue.StatusComplete},
		},
	}
	svc := newTestService(t, store)

	resp, err := svc.GetStatus(context.Background(), "job-1", "ET")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalYears)
	assert.Equal(t, 0.0, resp.EstimatedPercentComplete)
}

func TestGetStatus_RunDirectoryOnDisk(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("report_queue.json", `[
  {"key": "job-1", "start_year": 2000, "end_year": 2002, "started": null, "status": "In Progress"},
  {"key": "job-2", "start_year": 2000, "end_year": 2000, "started": null, "status": "Pending"}
]`)
	write("job-1/status.txt", "Processing\n")
	write("job-1/output/subset/ET/2000.a.tif", "")
	write("job-1/output/subset/ET/2000.b.tif", "")
	write("job-1/output/subset/ET/2001.a.tif", "")

	store, err := rundir.Open(context.Background(), root, rundir.S3Options{})
	require.NoError(t, err)
	svc := newTestService(t, store)

	resp, err := svc.GetStatus(context.Background(), "job-1", "ET")
	require.NoError(t, err)
	assert.Equal(t, "Processing", resp.Status)
	assert.Equal(t, 3, resp.FileCount)
	assert.InDelta(t, 3.0/602.0, resp.EstimatedPercentComplete, 1e-12)

	resp, err = svc.GetStatus(context.Background(), "job-2", "ET")
	require.NoError(t, err)
	assert.Equal(t, rundir.StatusUnknown, resp.Status)
	assert.Equal(t, 0, resp.FileCount)
	assert.Equal(t, 0.0, resp.EstimatedPercentComplete)
	assert.Equal(t, 0.0, resp.TimeRemaining)

	require.NoError(t, os.WriteFile(filepath.Join(root, "report_queue.json"), []byte("{not json"), 0o644))
	_, err = svc.GetStatus(context.Background(), "job-1", "ET")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestGetStatus_MalformedNeighbourRecord(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("report_queue.json", `[
  {"key": "good", "start_year": 2010, "end_year": 2012, "started": null, "status": "In Progress"},
  {"key": "other", "start_year": 2000, "end_year": 2001, "started": "last tuesday", "status": "In Progress"}
]`)
	write("good/output/subset/ET/2010.a.tif", "")
	write("other/output/subset/ET/2000.a.tif", "")

	store, err := rundir.Open(context.Background(), root, rundir.S3Options{})
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	est, err := progress.New(progress.DefaultConfig(), progress.WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	svc := NewService(store, est, zap.New(core))

	resp, err := svc.GetStatus(context.Background(), "good", "ET")
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalYears)
	assert.Equal(t, 1, resp.FileCount)

	warned := logs.FilterMessage("Malformed report queue record").All()
	require.Len(t, warned, 1)
	assert.Equal(t, "other", warned[0].ContextMap()["record_key"])

	resp, err = svc.GetStatus(context.Background(), "other", "ET")
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalYears)
	assert.Equal(t, 1, resp.FileCount)
	assert.Greater(t, resp.TimeRemaining, 0.0)
}
