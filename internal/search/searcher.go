package search

import (
	"context"
	"fmt"
)

// Searcher answers semantic queries over the objective graph: embed the
// query, scan the vector store, optionally rerank.
type Searcher struct {
	embedder *Embedder
	store    *VectorStore
	reranker Reranker
}

// NewSearcher creates a Searcher. Pass a NoOpReranker to skip reranking.
func NewSearcher(embedder *Embedder, store *VectorStore, reranker Reranker) *Searcher {
	return &Searcher{embedder: embedder, store: store, reranker: reranker}
}

// Search returns the objectives most similar to the query, best first.
func (s *Searcher) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := s.store.Search(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching vectors: %w", err)
	}

	return s.reranker.Rerank(ctx, query, hits)
}
