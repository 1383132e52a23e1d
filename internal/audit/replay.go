package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// TimestampFormat is the layout used in audit entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// ReplayFilter holds filtering criteria for replaying the log.
type ReplayFilter struct {
	ExecutionID string    // exact match; empty = all executions
	Decision    string    // exact match; empty = all decisions
	From        time.Time // zero value = no lower bound
	To          time.Time // zero value = no upper bound
}

// ReplaySummary holds decision counts and metadata for a replay.
type ReplaySummary struct {
	Total          int    `json:"total"`
	Executed       int    `json:"executed"`
	Rejected       int    `json:"rejected"`
	Blocked        int    `json:"blocked"`
	CompileFailed  int    `json:"compile_failed"`
	Faulted        int    `json:"faulted"`
	Cancelled      int    `json:"cancelled"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
	MaxDurationMs  int64  `json:"max_duration_ms"`
}

// ReplayResult holds filtered entries and their summary.
type ReplayResult struct {
	Filter  ReplayFilter  `json:"-"`
	Entries []Entry       `json:"entries"`
	Summary ReplaySummary `json:"summary"`
}

// Replay reads the audit log and returns entries matching the filter.
func Replay(path string, filter ReplayFilter) (*ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &ReplayResult{Filter: filter}
	err = eachLine(f, func(_ int, line []byte) bool {
		var entry Entry
		if json.Unmarshal(line, &entry) != nil {
			return true // skip malformed lines
		}
		if filter.Match(entry) {
			result.Entries = append(result.Entries, entry)
			updateSummary(&result.Summary, entry)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return result, nil
}

// Match reports whether e passes every criterion set on the filter. Entries
// with unparsable timestamps never match a time range.
func (f ReplayFilter) Match(e Entry) bool {
	if f.ExecutionID != "" && e.ExecutionID != f.ExecutionID {
		return false
	}
	if f.Decision != "" && !strings.EqualFold(e.Decision, f.Decision) {
		return false
	}
	if f.From.IsZero() && f.To.IsZero() {
		return true
	}
	ts, ok := parseTimestamp(e.Timestamp)
	if !ok {
		return false
	}
	if !f.From.IsZero() && ts.Before(f.From) {
		return false
	}
	return f.To.IsZero() || !ts.After(f.To)
}

func updateSummary(s *ReplaySummary, entry Entry) {
	s.Total++

	switch strings.ToLower(entry.Decision) {
	case DecisionExecuted:
		s.Executed++
	case DecisionRejected:
		s.Rejected++
	case DecisionBlocked:
		s.Blocked++
	case DecisionCompileFailed:
		s.CompileFailed++
	case DecisionFaulted:
		s.Faulted++
	case DecisionCancelled:
		s.Cancelled++
	}

	if entry.DurationMs > s.MaxDurationMs {
		s.MaxDurationMs = entry.DurationMs
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
