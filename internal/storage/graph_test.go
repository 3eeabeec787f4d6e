package storage

import (
	"errors"
	"testing"
	"time"
)

func seedObjectives(t *testing.T, s *Store, texts ...string) []Objective {
	t.Helper()
	entry := testEntry("seed-entry")
	objectives := make([]Objective, len(texts))
	for i, text := range texts {
		o := testObjective(text, entry.ID, text)
		// Spread created_at so listing order is deterministic.
		o.CreatedAt = o.CreatedAt.Add(time.Duration(i) * time.Second)
		objectives[i] = o
	}
	if _, err := s.IngestGraph(entry, objectives, nil); err != nil {
		t.Fatalf("seeding objectives: %v", err)
	}
	return objectives
}

func TestListObjectivesByTextAndTag(t *testing.T) {
	s := openTestStore(t)

	entry := testEntry("e1")
	tagged := testObjective("o1", "e1", "Expand into the EU market")
	tagged.Tags = `["growth","q3"]`
	other := testObjective("o2", "e1", "Refactor the billing service")
	if _, err := s.IngestGraph(entry, []Objective{tagged, other}, nil); err != nil {
		t.Fatalf("IngestGraph failed: %v", err)
	}

	byText, err := s.ListObjectives(10, 0, "eu MARKET")
	if err != nil {
		t.Fatalf("ListObjectives by text failed: %v", err)
	}
	if len(byText) != 1 || byText[0].ID != "o1" {
		t.Errorf("text query: expected o1, got %v", byText)
	}

	byTag, err := s.ListObjectives(10, 0, "Growth")
	if err != nil {
		t.Fatalf("ListObjectives by tag failed: %v", err)
	}
	if len(byTag) != 1 || byTag[0].ID != "o1" {
		t.Errorf("tag query: expected o1, got %v", byTag)
	}

	// Tag matches are exact, not substring.
	none, err := s.ListObjectives(10, 0, "grow")
	if err != nil {
		t.Fatalf("ListObjectives failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no partial tag match, got %v", none)
	}
}

func TestListObjectivesPagination(t *testing.T) {
	s := openTestStore(t)
	seedObjectives(t, s, "first objective", "second objective", "third objective")

	page, err := s.ListObjectives(2, 0, "")
	if err != nil {
		t.Fatalf("ListObjectives failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page))
	}
	// Most recently created first.
	if page[0].Text != "third objective" || page[1].Text != "second objective" {
		t.Errorf("unexpected order: %s, %s", page[0].Text, page[1].Text)
	}

	rest, err := s.ListObjectives(2, 2, "")
	if err != nil {
		t.Fatalf("ListObjectives failed: %v", err)
	}
	if len(rest) != 1 || rest[0].Text != "first objective" {
		t.Errorf("unexpected second page: %v", rest)
	}
}

func TestObjectivesByIDs(t *testing.T) {
	s := openTestStore(t)
	seedObjectives(t, s, "alpha", "beta")

	got, err := s.ObjectivesByIDs([]string{"alpha", "missing"})
	if err != nil {
		t.Fatalf("ObjectivesByIDs failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "alpha" {
		t.Errorf("expected only alpha, got %v", got)
	}

	empty, err := s.ObjectivesByIDs(nil)
	if err != nil {
		t.Fatalf("ObjectivesByIDs(nil) failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no rows for empty input, got %v", empty)
	}
}

func TestUpdateObjectiveFields(t *testing.T) {
	s := openTestStore(t)
	seedObjectives(t, s, "alpha")

	status, owner := "ACTIVE", "platform team"
	updated, err := s.UpdateObjective("alpha", ObjectiveUpdate{Status: &status, Owner: &owner})
	if err != nil {
		t.Fatalf("UpdateObjective failed: %v", err)
	}
	if updated.Status != "ACTIVE" || updated.Owner != "platform team" {
		t.Errorf("update not applied: %+v", updated)
	}
	if updated.Priority != "MEDIUM" {
		t.Errorf("untouched field changed: %s", updated.Priority)
	}

	if _, err := s.UpdateObjective("missing", ObjectiveUpdate{Status: &status}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOutgoingRelationshipsJoinTarget(t *testing.T) {
	s := openTestStore(t)
	seedObjectives(t, s, "alpha", "beta")

	now := time.Now().UTC()
	if _, err := s.UpsertRelationship(Relationship{
		ID: "r1", SourceID: "alpha", TargetID: "beta", Type: "SUPPORTS",
		Rationale: "because", CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("UpsertRelationship failed: %v", err)
	}

	out, err := s.OutgoingRelationships([]string{"alpha"})
	if err != nil {
		t.Fatalf("OutgoingRelationships failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 edge, got %d", len(out))
	}
	e := out[0]
	if e.TargetText != "beta" || e.TargetStatus != "PROPOSED" || e.TargetPriority != "MEDIUM" {
		t.Errorf("target summary not joined: %+v", e)
	}

	// Incoming edges are not reported for the target.
	in, err := s.OutgoingRelationships([]string{"beta"})
	if err != nil {
		t.Fatalf("OutgoingRelationships failed: %v", err)
	}
	if len(in) != 0 {
		t.Errorf("expected no outgoing edges for beta, got %d", len(in))
	}
}

func TestEntryObjectiveIDs(t *testing.T) {
	s := openTestStore(t)
	seedObjectives(t, s, "alpha", "beta")

	entry, err := s.GetEntry("seed-entry")
	if err != nil {
		t.Fatalf("GetEntry failed: %v", err)
	}
	if entry.RawText != "raw" {
		t.Errorf("unexpected entry: %+v", entry)
	}

	ids, err := s.EntryObjectiveIDs("seed-entry")
	if err != nil {
		t.Fatalf("EntryObjectiveIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected 2 objective ids, got %v", ids)
	}
}
