package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/northstar-labs/northstar/internal/graph"
	"github.com/northstar-labs/northstar/internal/storage"
)

// JobStore abstracts the job queue operations.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id, resultJSON string) error
	FailJob(id string, errMsg string) error
}

// Extractor pulls objective and relationship candidates out of raw text.
type Extractor interface {
	Extract(ctx context.Context, text, title string) graph.Extraction
}

// GraphWriter persists an extraction into the objective graph.
type GraphWriter interface {
	Ingest(rawText, title string, extraction graph.Extraction) (graph.IngestResult, error)
}

// Indexer makes freshly persisted objectives findable by semantic search.
type Indexer interface {
	IndexObjectives(ctx context.Context, ids []string) error
}

// Worker processes queued ingestions and embedding jobs in the background
// so HTTP callers don't have to wait out model latency.
type Worker struct {
	store     JobStore
	extractor Extractor
	writer    GraphWriter
	indexer   Indexer
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies. A nil indexer
// disables embedding jobs (they fail and eventually park as "failed").
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, extractor Extractor, writer GraphWriter, indexer Indexer, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		extractor: extractor,
		writer:    writer,
		indexer:   indexer,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single ingestion job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{storage.JobTypeIngest, storage.JobTypeEmbed})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	resultJSON, err := w.processJob(ctx, job)
	if err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID, resultJSON); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type ingestPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type embedPayload struct {
	ObjectiveIDs []string `json:"objective_ids"`
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (string, error) {
	switch job.Type {
	case storage.JobTypeIngest:
		return w.processIngest(ctx, job)
	case storage.JobTypeEmbed:
		return w.processEmbed(ctx, job)
	default:
		return "", fmt.Errorf("unknown job type %q", job.Type)
	}
}

func (w *Worker) processEmbed(ctx context.Context, job *storage.Job) (string, error) {
	if w.indexer == nil {
		return "", fmt.Errorf("no indexer configured")
	}

	var payload embedPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return "", fmt.Errorf("parsing payload: %w", err)
	}

	if err := w.indexer.IndexObjectives(ctx, payload.ObjectiveIDs); err != nil {
		return "", fmt.Errorf("indexing objectives: %w", err)
	}

	resultJSON, err := json.Marshal(map[string]int{"indexed": len(payload.ObjectiveIDs)})
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(resultJSON), nil
}

func (w *Worker) processIngest(ctx context.Context, job *storage.Job) (string, error) {
	var payload ingestPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return "", fmt.Errorf("parsing payload: %w", err)
	}

	extraction := w.extractor.Extract(ctx, payload.Content, payload.Title)

	result, err := w.writer.Ingest(payload.Content, payload.Title, extraction)
	if err != nil {
		return "", fmt.Errorf("ingesting extraction: %w", err)
	}

	w.logger.Info("background ingestion complete",
		"job_id", job.ID,
		"entry_id", result.EntryID,
		"objectives", len(result.Objectives),
		"duplicates_skipped", result.DuplicatesSkipped,
	)

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(resultJSON), nil
}
