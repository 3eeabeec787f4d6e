package graph

import "testing"

func TestParseEndpointRef(t *testing.T) {
	tests := []struct {
		input string
		kind  RefKind
		value string
	}{
		{"o1", RefBatch, "o1"},
		{" o1 ", RefBatch, "o1"},
		{"existing:abc-123", RefExisting, "abc-123"},
		{"existing: abc-123 ", RefExisting, "abc-123"},
		{"existing:", RefExisting, ""},
		{"", RefBatch, ""},
	}
	for _, tt := range tests {
		got := ParseEndpointRef(tt.input)
		if got.Kind != tt.kind || got.Value != tt.value {
			t.Errorf("ParseEndpointRef(%q) = {%v %q}, want {%v %q}", tt.input, got.Kind, got.Value, tt.kind, tt.value)
		}
	}
}

func TestResolveRelationships(t *testing.T) {
	validKeys := map[string]bool{"o1": true, "o2": true}
	candidates := []RelationshipCandidate{
		{Source: "o1", Target: "o2", Type: "supports"},
		{Source: "o1", Target: "existing:stored-id", Type: "depends_on", Weight: 0.8},
		{Source: "o1", Target: "o9", Type: "supports"},       // dangling target key
		{Source: "o9", Target: "o2", Type: "supports"},       // dangling source key
		{Source: "o1", Target: "o2", Type: "correlates"},     // unclassifiable type
		{Source: "o1", Target: "o1", Type: "supports"},       // self-loop
		{Source: "existing:x", Target: "existing:x", Type: "blocks"}, // self-loop via existing refs
	}

	drafts := ResolveRelationships(candidates, validKeys)
	if len(drafts) != 2 {
		t.Fatalf("expected 2 drafts, got %d", len(drafts))
	}

	first := drafts[0]
	if first.Source.Value != "o1" || first.Target.Value != "o2" || first.Type != RelationSupports {
		t.Errorf("unexpected first draft: %+v", first)
	}

	second := drafts[1]
	if second.Target.Kind != RefExisting || second.Target.Value != "stored-id" {
		t.Errorf("existing ref not preserved: %+v", second.Target)
	}
	if second.Type != RelationDependsOn {
		t.Errorf("expected DEPENDS_ON, got %v", second.Type)
	}
	if second.Weight == nil || *second.Weight != 0.8 {
		t.Errorf("weight not carried: %v", second.Weight)
	}
}

func TestResolveRelationshipsEmptyEndpoint(t *testing.T) {
	drafts := ResolveRelationships([]RelationshipCandidate{
		{Source: "", Target: "o1", Type: "supports"},
		{Source: "o1", Target: "existing:", Type: "supports"},
	}, map[string]bool{"o1": true})
	if len(drafts) != 0 {
		t.Errorf("expected all candidates dropped, got %d", len(drafts))
	}
}

func TestResolveRelationshipsPreservesOrder(t *testing.T) {
	validKeys := map[string]bool{"a": true, "b": true, "c": true}
	candidates := []RelationshipCandidate{
		{Source: "a", Target: "b", Type: "supports"},
		{Source: "b", Target: "c", Type: "blocks"},
		{Source: "c", Target: "a", Type: "informs"},
	}
	drafts := ResolveRelationships(candidates, validKeys)
	if len(drafts) != 3 {
		t.Fatalf("expected 3 drafts, got %d", len(drafts))
	}
	for i, want := range []RelationType{RelationSupports, RelationBlocks, RelationInforms} {
		if drafts[i].Type != want {
			t.Errorf("draft %d type = %v, want %v", i, drafts[i].Type, want)
		}
	}
}
