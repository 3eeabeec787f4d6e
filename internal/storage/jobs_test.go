package storage

import (
	"errors"
	"testing"
	"time"
)

func enqueue(t *testing.T, s *Store, id, jobType string, runAfter time.Time) {
	t.Helper()
	if err := s.EnqueueJob(Job{ID: id, Type: jobType, PayloadJSON: "{}", RunAfter: runAfter}); err != nil {
		t.Fatalf("EnqueueJob(%s) failed: %v", id, err)
	}
}

func TestClaimNextJobOrdering(t *testing.T) {
	s := openTestStore(t)

	earlier := time.Now().UTC().Add(-2 * time.Minute)
	later := time.Now().UTC().Add(-1 * time.Minute)
	enqueue(t, s, "job-late", JobTypeIngest, later)
	enqueue(t, s, "job-early", JobTypeIngest, earlier)

	first, err := s.ClaimNextJob([]string{JobTypeIngest})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if first == nil || first.ID != "job-early" {
		t.Fatalf("expected job-early, got %+v", first)
	}
	if first.Status != "running" {
		t.Errorf("claimed job not running: %s", first.Status)
	}

	second, err := s.ClaimNextJob([]string{JobTypeIngest})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if second == nil || second.ID != "job-late" {
		t.Fatalf("expected job-late, got %+v", second)
	}

	// A running job is never claimed twice.
	third, err := s.ClaimNextJob([]string{JobTypeIngest})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if third != nil {
		t.Errorf("expected empty queue, got %+v", third)
	}
}

func TestClaimNextJobFiltersByType(t *testing.T) {
	s := openTestStore(t)
	enqueue(t, s, "embed-job", JobTypeEmbed, time.Time{})

	got, err := s.ClaimNextJob([]string{JobTypeIngest})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if got != nil {
		t.Errorf("claimed a job of the wrong type: %+v", got)
	}

	got, err = s.ClaimNextJob([]string{JobTypeIngest, JobTypeEmbed})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if got == nil || got.ID != "embed-job" {
		t.Errorf("expected embed-job, got %+v", got)
	}
}

func TestClaimNextJobHonorsRunAfter(t *testing.T) {
	s := openTestStore(t)
	enqueue(t, s, "future-job", JobTypeIngest, time.Now().UTC().Add(time.Hour))

	got, err := s.ClaimNextJob([]string{JobTypeIngest})
	if err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if got != nil {
		t.Errorf("claimed a job scheduled for the future: %+v", got)
	}
}

func TestCompleteJob(t *testing.T) {
	s := openTestStore(t)
	enqueue(t, s, "job-1", JobTypeIngest, time.Time{})

	if _, err := s.ClaimNextJob([]string{JobTypeIngest}); err != nil {
		t.Fatalf("ClaimNextJob failed: %v", err)
	}
	if err := s.CompleteJob("job-1", `{"ok":true}`); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}

	j, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if j.Status != "completed" || j.ResultJSON != `{"ok":true}` {
		t.Errorf("unexpected job state: %+v", j)
	}

	if err := s.CompleteJob("missing", "{}"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFailJobBacksOffThenGivesUp(t *testing.T) {
	s := openTestStore(t)
	enqueue(t, s, "job-1", JobTypeIngest, time.Time{})

	if err := s.FailJob("job-1", "boom"); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	j, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if j.Status != "pending" || j.Attempts != 1 || j.LastError != "boom" {
		t.Errorf("unexpected state after first failure: %+v", j)
	}
	if !j.RunAfter.After(time.Now().UTC()) {
		t.Errorf("expected backoff into the future, got %v", j.RunAfter)
	}

	if err := s.FailJob("job-1", "boom again"); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}
	if err := s.FailJob("job-1", "final straw"); err != nil {
		t.Fatalf("FailJob failed: %v", err)
	}

	j, err = s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if j.Status != "failed" || j.Attempts != 3 {
		t.Errorf("expected exhausted job, got %+v", j)
	}
	if j.LastError != "final straw" {
		t.Errorf("last error not recorded: %q", j.LastError)
	}

	if err := s.FailJob("missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
