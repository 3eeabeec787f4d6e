package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/northstar-labs/northstar/internal/ollama"
)

const defaultConcurrency = 3

// Reranker re-scores search hits by query relevance.
type Reranker interface {
	Rerank(ctx context.Context, query string, hits []Hit) ([]Hit, error)
}

// Chatter is the chat surface of the model runtime used for scoring.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// NewReranker returns an LLMReranker if enabled, NoOpReranker otherwise.
//
// topK controls the early-return threshold: once topK hits have been
// scored, the reranker returns that subset immediately without waiting
// for remaining hits. Set topK to 0 (or >= len(hits)) to disable early
// return.
func NewReranker(client Chatter, model string, enabled bool, timeout time.Duration, threshold float64, topK int) Reranker {
	if !enabled {
		return &NoOpReranker{}
	}
	return &LLMReranker{
		client:    client,
		model:     model,
		timeout:   timeout,
		threshold: threshold,
		topK:      topK,
	}
}

// LLMReranker uses a local LLM to score (query, objective) relevance
// pairs. Scoring runs concurrently (bounded to defaultConcurrency
// goroutines). Results are filtered by threshold and sorted by score
// descending.
type LLMReranker struct {
	client    Chatter
	model     string
	timeout   time.Duration
	threshold float64
	topK      int // early-return threshold; 0 = score all
}

// Rerank scores each hit against the query and returns a filtered, sorted
// result set. If the timeout fires before scoring completes, the original
// hit order is returned unchanged (graceful degradation).
func (r *LLMReranker) Rerank(ctx context.Context, query string, hits []Hit) ([]Hit, error) {
	if len(hits) == 0 {
		return hits, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// Early return fires when topK > 0 and topK < len(hits).
	earlyReturnAt := r.topK
	if earlyReturnAt <= 0 || earlyReturnAt >= len(hits) {
		earlyReturnAt = 0
	}

	// Buffered channel prevents goroutines from blocking on send after we stop reading.
	results := make(chan Hit, len(hits))
	sem := make(chan struct{}, defaultConcurrency)

	var wg sync.WaitGroup
	for _, h := range hits {
		wg.Add(1)
		go func(hit Hit) {
			defer wg.Done()
			// Acquire concurrency slot or bail on cancellation.
			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			score, err := r.scoreHit(timeoutCtx, query, hit)
			if err != nil {
				if timeoutCtx.Err() != nil {
					return // context cancelled — don't send partial result
				}
				slog.Debug("reranker: score failed, retaining original", "error", err)
				results <- hit // original score preserved
				return
			}
			hit.Score = float32(score)
			results <- hit
		}(h)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	scored := make([]Hit, 0, len(hits))
collect:
	for {
		select {
		case h, ok := <-results:
			if !ok {
				break collect // all goroutines finished
			}
			scored = append(scored, h)
			if earlyReturnAt > 0 && len(scored) >= earlyReturnAt {
				cancel() // stop remaining goroutines
				break collect
			}
		case <-timeoutCtx.Done():
			// Hard timeout hit before enough hits were scored: graceful degradation.
			return hits, nil
		}
	}

	if len(scored) == 0 {
		return hits, nil
	}

	// Filter hits below the relevance threshold.
	filtered := make([]Hit, 0, len(scored))
	for _, h := range scored {
		if float64(h.Score) >= r.threshold {
			filtered = append(filtered, h)
		}
	}

	// Sort by score descending.
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})

	return filtered, nil
}

func (r *LLMReranker) scoreHit(ctx context.Context, query string, hit Hit) (float64, error) {
	prompt := "Rate the relevance of the following objective to the query on a scale of 0.0 to 1.0.\n" +
		"Query: " + query + "\n" +
		"Objective: " + hit.Text + "\n" +
		`Respond with only a JSON object: {"score": <float>}`

	schema := &ollama.Schema{
		Type: "object",
		Properties: map[string]ollama.SchemaProperty{
			"score": {Type: "number", Description: "Relevance score 0.0–1.0"},
		},
		Required: []string{"score"},
	}

	resp, err := r.client.Chat(ctx, r.model, []ollama.Message{
		{Role: "user", Content: prompt},
	}, schema)
	if err != nil {
		return float64(hit.Score), err
	}

	score, parseErr := parseScore(resp, hit.Score)
	if parseErr != nil {
		slog.Debug("reranker: parse failed, using original score", "resp", resp, "error", parseErr)
		return float64(hit.Score), nil
	}
	return score, nil
}

// parseScore robustly extracts a relevance score float from an LLM response.
// Small local models frequently wrap JSON in markdown code fences or
// prepend conversational filler. The parser:
//  1. Strips markdown code fences if present (```json ... ```)
//  2. Finds the first { and last } to extract the JSON object
//  3. Attempts json.Unmarshal on the extracted substring
//  4. On failure: returns originalScore so the hit is not penalised
func parseScore(resp string, originalScore float32) (float64, error) {
	s := strings.TrimSpace(resp)

	// Strip markdown code fences.
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	// Extract JSON object by brace position.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return float64(originalScore), fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return float64(originalScore), fmt.Errorf("unmarshal score: %w", err)
	}
	return obj.Score, nil
}

// NoOpReranker passes hits through unchanged. Used when reranking is disabled.
type NoOpReranker struct{}

func (n *NoOpReranker) Rerank(_ context.Context, _ string, hits []Hit) ([]Hit, error) {
	return hits, nil
}
