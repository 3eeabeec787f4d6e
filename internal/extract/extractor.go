package extract

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/northstar-labs/northstar/internal/graph"
	"github.com/northstar-labs/northstar/internal/ollama"
)

const extractionTimeout = 60 * time.Second

// Chatter is the interface for chat completion via Ollama.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// Extractor uses a local LLM to propose objective and relationship
// candidates from free-form text. The proposals are untrusted: the graph
// core normalizes, deduplicates, and resolves them before anything is
// persisted.
type Extractor struct {
	client Chatter
	model  string
}

// NewExtractor creates an Extractor using the given Ollama client and model name.
func NewExtractor(client Chatter, model string) *Extractor {
	return &Extractor{client: client, model: model}
}

// Extract analyses the text and returns candidate objectives and
// relationships. On any failure (timeout, malformed JSON, Ollama error)
// it returns a zero-value Extraction — ingestion still records the entry
// even when extraction yields nothing.
func (e *Extractor) Extract(ctx context.Context, text, title string) graph.Extraction {
	if text == "" {
		return graph.Extraction{}
	}

	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	messages := BuildPrompt(text, title)

	raw, err := e.client.Chat(ctx, e.model, messages, extractionSchema())
	if err != nil {
		slog.Warn("objective extraction chat failed", "error", err)
		return graph.Extraction{}
	}

	var result graph.Extraction
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		slog.Warn("failed to unmarshal extraction from LLM response", "error", err, "response", raw)
		return graph.Extraction{}
	}
	return result
}
