package search

import (
	"context"
	"fmt"

	"github.com/northstar-labs/northstar/internal/storage"
)

// ObjectiveSource provides the objective rows to index.
type ObjectiveSource interface {
	ObjectivesByIDs(ids []string) ([]storage.Objective, error)
}

// Indexer embeds objective texts and writes them to the vector store.
type Indexer struct {
	embedder *Embedder
	store    *VectorStore
	source   ObjectiveSource
}

// NewIndexer creates an Indexer over the given collaborators.
func NewIndexer(embedder *Embedder, store *VectorStore, source ObjectiveSource) *Indexer {
	return &Indexer{embedder: embedder, store: store, source: source}
}

// IndexObjectives embeds the given objectives and upserts their vectors.
// Unknown ids are skipped silently; re-indexing an objective replaces its
// previous embedding.
func (ix *Indexer) IndexObjectives(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	rows, err := ix.source.ObjectivesByIDs(ids)
	if err != nil {
		return fmt.Errorf("loading objectives: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	texts := make([]string, len(rows))
	for i, row := range rows {
		texts[i] = row.Text
	}

	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding objectives: %w", err)
	}

	records := make([]Record, len(rows))
	for i, row := range rows {
		records[i] = Record{
			ObjectiveID: row.ID,
			Text:        row.Text,
			Embedding:   vectors[i],
			CreatedAt:   row.CreatedAt,
		}
	}

	if err := ix.store.Upsert(records); err != nil {
		return fmt.Errorf("storing vectors: %w", err)
	}
	return nil
}
