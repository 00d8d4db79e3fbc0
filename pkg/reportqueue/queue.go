// Package reportqueue reads the report queue: the persisted JSON array of job
// records kept by the batch scheduler.
package reportqueue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FileName is the queue file name under the run directory base.
const FileName = "report_queue.json"

// Queue is a decoded report queue.
type Queue struct {
	Records []JobRecord

	// Issues lists records that did not decode cleanly. A record with an
	// unreadable start time is kept with Started unset; any other defect
	// drops the record.
	Issues []Issue
}

// Issue describes one malformed queue element.
type Issue struct {
	Index   int
	Key     string
	Dropped bool
	Err     error
}

func (i Issue) Error() string {
	action := "kept without start time"
	if i.Dropped {
		action = "dropped"
	}
	if i.Key == "" {
		return fmt.Sprintf("record %d %s: %v", i.Index, action, i.Err)
	}
	return fmt.Sprintf("record %d (%s) %s: %v", i.Index, i.Key, action, i.Err)
}

// Parse decodes a queue document.
//
// The document must be a JSON array. An empty document is an error since the
// scheduler always writes at least "[]". Elements are decoded one at a time
// so a malformed record does not hide its neighbours.
func Parse(data []byte) (*Queue, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("%s is empty", FileName)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &elems); err != nil {
		return nil, fmt.Errorf("parse %s: %w", FileName, err)
	}

	q := &Queue{Records: make([]JobRecord, 0, len(elems))}
	for i, raw := range elems {
		rec, issue := decodeRecord(i, raw)
		if issue != nil {
			q.Issues = append(q.Issues, *issue)
		}
		if issue == nil || !issue.Dropped {
			q.Records = append(q.Records, rec)
		}
	}
	return q, nil
}

// looseRecord is JobRecord with the start time left undecoded.
type looseRecord struct {
	Key       string          `json:"key"`
	StartYear int             `json:"start_year"`
	EndYear   int             `json:"end_year"`
	Started   json.RawMessage `json:"started,omitempty"`
	Status    string          `json:"status"`
}

func decodeRecord(index int, raw json.RawMessage) (JobRecord, *Issue) {
	var rec JobRecord
	err := json.Unmarshal(raw, &rec)
	if err == nil {
		return rec, nil
	}

	var loose looseRecord
	if lerr := json.Unmarshal(raw, &loose); lerr == nil {
		return JobRecord{
			Key:       loose.Key,
			StartYear: loose.StartYear,
			EndYear:   loose.EndYear,
			Status:    loose.Status,
		}, &Issue{Index: index, Key: loose.Key, Err: err}
	}

	var keyOnly struct {
		Key string `json:"key"`
	}
	_ = json.Unmarshal(raw, &keyOnly)
	return JobRecord{}, &Issue{Index: index, Key: keyOnly.Key, Dropped: true, Err: err}
}

// Find returns the first record whose key equals key exactly.
func (q *Queue) Find(key string) (*JobRecord, bool) {
	if q == nil {
		return nil, false
	}
	return Find(q.Records, key)
}

// Find returns the first record whose key equals key exactly.
func Find(records []JobRecord, key string) (*JobRecord, bool) {
	for i := range records {
		if records[i].Key == key {
			r := records[i]
			return &r, true
		}
	}
	return nil, false
}
