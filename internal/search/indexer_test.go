package search

import (
	"context"
	"testing"
)

func TestIndexerIndexesAndSearches(t *testing.T) {
	store, vs := openVectorStore(t, "o1", "o2")
	client := &fakeEmbedClient{vectors: map[string][]float32{
		"objective o1": {1, 0},
		"objective o2": {0, 1},
	}}
	embedder := NewEmbedder(client, "m")
	ix := NewIndexer(embedder, vs, store)

	if err := ix.IndexObjectives(context.Background(), []string{"o1", "o2", "unknown"}); err != nil {
		t.Fatalf("IndexObjectives failed: %v", err)
	}

	count, err := vs.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	// Unknown ids are skipped without error.
	if count != 2 {
		t.Errorf("expected 2 indexed objectives, got %d", count)
	}

	searcher := NewSearcher(NewEmbedder(&fakeEmbedClient{vectors: map[string][]float32{
		"first one": {1, 0},
	}}, "m"), vs, &NoOpReranker{})

	hits, err := searcher.Search(context.Background(), "first one", 1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ObjectiveID != "o1" {
		t.Errorf("expected o1 as best hit, got %v", hits)
	}
}

func TestIndexObjectivesEmptyInput(t *testing.T) {
	store, vs := openVectorStore(t)
	ix := NewIndexer(NewEmbedder(&fakeEmbedClient{}, "m"), vs, store)
	if err := ix.IndexObjectives(context.Background(), nil); err != nil {
		t.Errorf("empty input must be a no-op, got %v", err)
	}
}
