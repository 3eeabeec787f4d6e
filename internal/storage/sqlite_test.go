package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(id string) KnowledgeEntry {
	return KnowledgeEntry{ID: id, Title: "entry " + id, RawText: "raw", CreatedAt: time.Now().UTC()}
}

func testObjective(id, entryID, text string) Objective {
	now := time.Now().UTC()
	return Objective{
		ID:             id,
		EntryID:        entryID,
		Text:           text,
		NormalizedText: text, // callers pass pre-normalized text in tests
		Status:         "PROPOSED",
		Priority:       "MEDIUM",
		Metrics:        "[]",
		Tags:           "[]",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestMigrationsApplied(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations failed: %v", err)
	}
	want := []int{1, 2, 3}
	if len(versions) != len(want) {
		t.Fatalf("expected %d migrations, got %v", len(want), versions)
	}
	for i, v := range want {
		if versions[i] != v {
			t.Errorf("migration %d: got version %d, want %d", i, versions[i], v)
		}
	}
}

func TestDuplicateNormalizedTextRejected(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.IngestGraph(testEntry("e1"), []Objective{testObjective("o1", "e1", "launch the beta")}, nil); err != nil {
		t.Fatalf("first IngestGraph failed: %v", err)
	}

	_, err := s.IngestGraph(testEntry("e2"), []Objective{testObjective("o2", "e2", "launch the beta")}, nil)
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestIngestGraphRollsBack(t *testing.T) {
	s := openTestStore(t)

	now := time.Now().UTC()
	bad := Relationship{
		ID: "r1", SourceID: "o1", TargetID: "missing", Type: "SUPPORTS",
		CreatedAt: now, UpdatedAt: now,
	}
	_, err := s.IngestGraph(testEntry("e1"), []Objective{testObjective("o1", "e1", "objective one")}, []Relationship{bad})
	if err == nil {
		t.Fatal("expected foreign key violation")
	}

	// The partial write must not survive.
	if _, err := s.GetEntry("e1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("entry survived rollback: %v", err)
	}
	if _, err := s.GetObjective("o1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("objective survived rollback: %v", err)
	}
}

func TestSelfLoopRejectedBySchema(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.IngestGraph(testEntry("e1"), []Objective{testObjective("o1", "e1", "objective one")}, nil); err != nil {
		t.Fatalf("IngestGraph failed: %v", err)
	}

	now := time.Now().UTC()
	_, err := s.UpsertRelationship(Relationship{
		ID: "r1", SourceID: "o1", TargetID: "o1", Type: "SUPPORTS",
		CreatedAt: now, UpdatedAt: now,
	})
	if err == nil {
		t.Error("expected check constraint violation for self-loop")
	}
}
