package reportqueue

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// StatusComplete is the authoritative status of a finished job.
const StatusComplete = "Complete"

// JobRecord is one entry of report_queue.json.
//
// Records are produced and mutated by the job scheduler. This package only
// reads them; unknown fields are ignored.
type JobRecord struct {
	Key       string     `json:"key"`
	StartYear int        `json:"start_year"`
	EndYear   int        `json:"end_year"`
	Started   *Timestamp `json:"started,omitempty"`
	Status    string     `json:"status"`
}

// TotalYears is the declared inclusive year span.
func (r JobRecord) TotalYears() int {
	return r.EndYear - r.StartYear + 1
}

// IsComplete reports whether the record carries the Complete status.
func (r JobRecord) IsComplete() bool {
	return r.Status == StatusComplete
}

// StartedAt returns the start time, or nil when unknown.
func (r JobRecord) StartedAt() *time.Time {
	if r.Started == nil || r.Started.IsZero() {
		return nil
	}
	t := r.Started.Time
	return &t
}

// Timestamp decodes a job start time.
//
// The scheduler writes epoch milliseconds; RFC 3339 strings and numeric
// strings are accepted as well. A zero epoch is treated as unknown.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			ts.Time = time.Time{}
			return nil
		}
		if ms, err := strconv.ParseFloat(s, 64); err == nil {
			ts.Time = fromEpochMillis(ms)
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse started %q: %w", s, err)
		}
		ts.Time = t
		return nil
	}

	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("parse started: %w", err)
	}
	ts.Time = fromEpochMillis(ms)
	return nil
}

// MarshalJSON writes epoch milliseconds, or null for an unknown time.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatInt(ts.UnixMilli(), 10)), nil
}

func fromEpochMillis(ms float64) time.Time {
	if ms == 0 || math.IsNaN(ms) || math.IsInf(ms, 0) {
		return time.Time{}
	}
	sec, frac := math.Modf(ms / 1000)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
