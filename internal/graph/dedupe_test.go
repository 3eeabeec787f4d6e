package graph

import "testing"

func TestDedupeWithinBatch(t *testing.T) {
	candidates := []ObjectiveCandidate{
		{Key: "o1", Statement: "Launch the beta"},
		{Key: "o2", Statement: "  launch   THE beta "},
		{Key: "o3", Statement: "Hire two engineers"},
	}
	survivors, dups := Dedupe(candidates, nil)
	if len(survivors) != 2 {
		t.Fatalf("expected 2 survivors, got %d", len(survivors))
	}
	if dups != 1 {
		t.Errorf("expected 1 duplicate, got %d", dups)
	}
	// First occurrence wins and input order holds.
	if survivors[0].Key != "o1" || survivors[1].Key != "o3" {
		t.Errorf("unexpected survivor keys: %s, %s", survivors[0].Key, survivors[1].Key)
	}
}

func TestDedupeAgainstExisting(t *testing.T) {
	candidates := []ObjectiveCandidate{
		{Key: "o1", Statement: "Launch the beta"},
		{Key: "o2", Statement: "Open a Berlin office"},
	}
	survivors, dups := Dedupe(candidates, []string{"launch the beta"})
	if len(survivors) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(survivors))
	}
	if survivors[0].Key != "o2" {
		t.Errorf("wrong survivor: %s", survivors[0].Key)
	}
	if dups != 1 {
		t.Errorf("expected 1 duplicate, got %d", dups)
	}
}

func TestDedupeDropsEmptyStatements(t *testing.T) {
	candidates := []ObjectiveCandidate{
		{Key: "o1", Statement: "   "},
		{Key: "o2", Statement: ""},
		{Key: "o3", Statement: "Real objective"},
	}
	survivors, dups := Dedupe(candidates, nil)
	if len(survivors) != 1 || survivors[0].Key != "o3" {
		t.Fatalf("expected only o3 to survive, got %v", survivors)
	}
	if dups != 2 {
		t.Errorf("expected 2 duplicates, got %d", dups)
	}
}

func TestDedupeEmptyInput(t *testing.T) {
	survivors, dups := Dedupe(nil, []string{"anything"})
	if len(survivors) != 0 || dups != 0 {
		t.Errorf("expected no survivors and no duplicates, got %d / %d", len(survivors), dups)
	}
}
