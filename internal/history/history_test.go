package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ppiankov/livecode/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 2, 1, 9, 30, 0, 123000000, time.UTC)

	rec := model.ExecutionRecord{
		ExecutionID:   "x-abc",
		Key:           "deadbeef",
		Level:         model.Restricted,
		Lane:          model.LaneExclusive,
		Mode:          "project",
		FailureReason: model.FailureSecurityViolation,
		ErrorMessage:  "blocked",
		Violations:    2,
		DurationMs:    17,
		StartedAt:     started,
	}
	if err := s.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}

	got, err := s.Get(ctx, "x-abc")
	if err != nil {
		t.Fatal(err)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", got.StartedAt, started)
	}
	got.StartedAt, rec.StartedAt = time.Time{}, time.Time{}
	if got != rec {
		t.Errorf("got %+v\nwant %+v", got, rec)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "x-missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"x-1", "x-2", "x-3"} {
		rec := model.ExecutionRecord{
			ExecutionID: id,
			Level:       model.FullAccess,
			Lane:        model.LaneParallel,
			Success:     true,
			StartedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Record(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[0].ExecutionID != "x-3" || recs[1].ExecutionID != "x-2" {
		t.Errorf("recent = %+v", recs)
	}
}

func TestRecordReplacesSameID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rec := model.ExecutionRecord{ExecutionID: "x-1", Level: model.Restricted, Lane: model.LaneExclusive}
	s.Record(ctx, rec)
	rec.Success = true
	s.Record(ctx, rec)

	recs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || !recs[0].Success {
		t.Errorf("recent = %+v", recs)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	recs := []model.ExecutionRecord{
		{ExecutionID: "x-1", Success: true, DurationMs: 10},
		{ExecutionID: "x-2", Success: true, DurationMs: 30},
		{ExecutionID: "x-3", FailureReason: model.FailureRuntimeFault, DurationMs: 20},
		{ExecutionID: "x-4", FailureReason: model.FailureRuntimeFault},
		{ExecutionID: "x-5", FailureReason: model.FailureCancelled},
	}
	for _, r := range recs {
		r.Level = model.Restricted
		r.Lane = model.LaneExclusive
		if err := s.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	st, err := s.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 5 || st.Succeeded != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.ByReason[model.FailureRuntimeFault] != 2 || st.ByReason[model.FailureCancelled] != 1 {
		t.Errorf("by reason = %v", st.ByReason)
	}
	if st.AvgDurationMs != 12 {
		t.Errorf("avg = %v, want 12", st.AvgDurationMs)
	}
}

func TestStatsEmpty(t *testing.T) {
	s := newTestStore(t)
	st, err := s.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 0 || st.AvgDurationMs != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	s.Record(context.Background(), model.ExecutionRecord{ExecutionID: "x-keep", Level: model.Restricted, Lane: model.LaneExclusive})
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if _, err := s2.Get(context.Background(), "x-keep"); err != nil {
		t.Fatalf("record lost after reopen: %v", err)
	}
}
