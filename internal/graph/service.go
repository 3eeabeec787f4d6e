package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/northstar-labs/northstar/internal/storage"
)

// maxRationaleLen bounds relationship rationale text.
const maxRationaleLen = 1000

// Service is the ingestion/consistency engine over the objective graph.
// All writes go through it; it owns normalization, deduplication,
// reference resolution, and the read models. The storage handle is
// injected at construction and shared with nothing else.
type Service struct {
	store  *storage.Store
	logger *slog.Logger
}

// NewService creates a Service over an opened store.
func NewService(store *storage.Store) *Service {
	return &Service{store: store, logger: slog.Default()}
}

// Ingest turns one raw-text extraction into durable graph state: it
// records the provenance entry, persists the candidates that survive
// deduplication, and upserts the relationships whose endpoints resolve.
// The write is a single transaction; a failure leaves no trace of the
// call.
func (s *Service) Ingest(rawText, title string, extraction Extraction) (IngestResult, error) {
	// One batch query against the store for possible duplicates,
	// keyed on the same normalized form the unique index guards.
	var normalized []string
	for _, c := range extraction.Objectives {
		if t := Normalize(c.Statement).Normalized; t != "" {
			normalized = append(normalized, t)
		}
	}
	existing, err := s.store.ExistingNormalizedTexts(normalized)
	if err != nil {
		return IngestResult{}, fmt.Errorf("querying existing objectives: %w", err)
	}

	survivors, duplicates := Dedupe(extraction.Objectives, existing)

	validKeys := make(map[string]bool, len(survivors))
	for _, c := range survivors {
		if c.Key != "" {
			validKeys[c.Key] = true
		}
	}
	resolved := ResolveRelationships(extraction.Relationships, validKeys)

	now := time.Now().UTC()
	entry := storage.KnowledgeEntry{
		ID:        uuid.New().String(),
		Title:     strings.TrimSpace(title),
		RawText:   rawText,
		CreatedAt: now,
	}

	keyToID := make(map[string]string, len(survivors))
	objectives := make([]storage.Objective, 0, len(survivors))
	for _, c := range survivors {
		st := Normalize(c.Statement)
		id := uuid.New().String()
		if c.Key != "" {
			keyToID[c.Key] = id
		}
		objectives = append(objectives, storage.Objective{
			ID:             id,
			EntryID:        entry.ID,
			Text:           st.Original,
			NormalizedText: st.Normalized,
			Context:        strings.TrimSpace(c.Context),
			Category:       strings.TrimSpace(c.Category),
			Timeframe:      strings.TrimSpace(c.Timeframe),
			Owner:          strings.TrimSpace(c.Owner),
			Status:         string(ClassifyStatus(c.Status)),
			Priority:       string(ClassifyPriority(c.Priority)),
			Confidence:     ParseUnitInterval(c.Confidence),
			Metrics:        encodeStringList(c.Metrics),
			Tags:           encodeTagSet(c.Tags),
			SourceLabel:    entry.Title,
			SourceExcerpt:  strings.TrimSpace(c.SourceExcerpt),
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}

	relationships := make([]storage.Relationship, 0, len(resolved))
	for _, d := range resolved {
		sourceID := translateEndpoint(d.Source, keyToID)
		targetID := translateEndpoint(d.Target, keyToID)
		if sourceID == "" || targetID == "" || sourceID == targetID {
			continue
		}
		relationships = append(relationships, storage.Relationship{
			ID:        uuid.New().String(),
			SourceID:  sourceID,
			TargetID:  targetID,
			Type:      string(d.Type),
			Rationale: truncateRationale(d.Rationale),
			Weight:    d.Weight,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	persisted, err := s.store.IngestGraph(entry, objectives, relationships)
	if err != nil {
		return IngestResult{}, fmt.Errorf("persisting graph: %w", err)
	}

	s.logger.Info("ingested entry",
		"entry_id", entry.ID,
		"objectives", len(objectives),
		"duplicates", duplicates,
		"relationships", len(persisted),
	)

	// Queue the new objectives for embedding. Search indexing is
	// best-effort; the ingestion result does not depend on it.
	if len(objectives) > 0 {
		ids := make([]string, len(objectives))
		for i, o := range objectives {
			ids[i] = o.ID
		}
		if err := s.enqueueEmbed(ids); err != nil {
			s.logger.Warn("queueing embed job failed", "entry_id", entry.ID, "error", err)
		}
	}

	views, err := s.buildViews(objectives)
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{
		EntryID:                entry.ID,
		Objectives:             views,
		DuplicatesSkipped:      duplicates,
		RelationshipsPersisted: len(persisted),
	}, nil
}

// translateEndpoint maps a resolved endpoint onto a persisted identifier.
// Batch keys go through the key→id mapping; existing references are
// already identifiers.
func translateEndpoint(ref EndpointRef, keyToID map[string]string) string {
	if ref.Kind == RefExisting {
		return ref.Value
	}
	return keyToID[ref.Value]
}

// ListObjectives returns a page of objectives with their outgoing
// relationships, most recently created first. A non-empty query matches
// case-insensitively against text or exactly against a lower-cased tag.
func (s *Service) ListObjectives(limit, offset int, query string) ([]ObjectiveView, error) {
	rows, err := s.store.ListObjectives(limit, offset, query)
	if err != nil {
		return nil, fmt.Errorf("listing objectives: %w", err)
	}
	return s.buildViews(rows)
}

// GetObjectivesByIDs returns the objectives matching ids, enriched with
// outgoing relationships. Unknown ids are skipped.
func (s *Service) GetObjectivesByIDs(ids []string) ([]ObjectiveView, error) {
	rows, err := s.store.ObjectivesByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("fetching objectives: %w", err)
	}
	return s.buildViews(rows)
}

// GetObjective returns a single objective view.
func (s *Service) GetObjective(id string) (ObjectiveView, error) {
	row, err := s.store.GetObjective(id)
	if err != nil {
		return ObjectiveView{}, err
	}
	views, err := s.buildViews([]storage.Objective{row})
	if err != nil {
		return ObjectiveView{}, err
	}
	return views[0], nil
}

// UpdateObjective applies an edit to a stored objective. Status and
// priority values go through the same classification as ingestion.
func (s *Service) UpdateObjective(id string, upd storage.ObjectiveUpdate) (ObjectiveView, error) {
	if upd.Status != nil {
		v := string(ClassifyStatus(*upd.Status))
		upd.Status = &v
	}
	if upd.Priority != nil {
		v := string(ClassifyPriority(*upd.Priority))
		upd.Priority = &v
	}
	row, err := s.store.UpdateObjective(id, upd)
	if err != nil {
		return ObjectiveView{}, err
	}
	views, err := s.buildViews([]storage.Objective{row})
	if err != nil {
		return ObjectiveView{}, err
	}
	return views[0], nil
}

// GraphSnapshot returns the full current graph, denormalized.
func (s *Service) GraphSnapshot() (Snapshot, error) {
	objectives, err := s.store.AllObjectives()
	if err != nil {
		return Snapshot{}, fmt.Errorf("loading objectives: %w", err)
	}
	views, err := s.buildViews(objectives)
	if err != nil {
		return Snapshot{}, err
	}

	edges := make([]RelationshipView, 0)
	for _, o := range views {
		edges = append(edges, o.Relationships...)
	}
	return Snapshot{Objectives: views, Relationships: edges}, nil
}

// CreateRelationship is the direct edge-create path. It validates both
// endpoints before touching the write path and converges on the existing
// row when the (source, target, type) key is already present.
func (s *Service) CreateRelationship(source, target, relType, rationale string, weight *float64) (RelationshipView, error) {
	source = strings.TrimSpace(source)
	target = strings.TrimSpace(target)
	if source == "" {
		return RelationshipView{}, &ValidationError{Field: "source", Reason: "required"}
	}
	if target == "" {
		return RelationshipView{}, &ValidationError{Field: "target", Reason: "required"}
	}
	if source == target {
		return RelationshipView{}, &ValidationError{Field: "target", Reason: "must differ from source"}
	}
	rt, ok := ClassifyRelationType(relType)
	if !ok {
		return RelationshipView{}, &ValidationError{Field: "type", Reason: fmt.Sprintf("unrecognized relationship type %q", relType)}
	}
	for _, ep := range []struct{ field, id string }{{"source", source}, {"target", target}} {
		exists, err := s.store.ObjectiveExists(ep.id)
		if err != nil {
			return RelationshipView{}, fmt.Errorf("checking %s objective: %w", ep.field, err)
		}
		if !exists {
			return RelationshipView{}, &ValidationError{Field: ep.field, Reason: fmt.Sprintf("objective %s does not exist", ep.id)}
		}
	}

	now := time.Now().UTC()
	var w *float64
	if weight != nil {
		w = ParseUnitInterval(*weight)
	}
	stored, err := s.store.UpsertRelationship(storage.Relationship{
		ID:        uuid.New().String(),
		SourceID:  source,
		TargetID:  target,
		Type:      string(rt),
		Rationale: truncateRationale(rationale),
		Weight:    w,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return RelationshipView{}, fmt.Errorf("upserting relationship: %w", err)
	}
	return s.relationshipView(stored)
}

// RelationshipEdit carries the mutable fields of a relationship update.
type RelationshipEdit struct {
	Target    *string
	Type      *string
	Rationale *string
	Weight    *float64
}

// UpdateRelationship edits an existing relationship. Retargeting onto the
// edge's own source is rejected before any write.
func (s *Service) UpdateRelationship(id string, edit RelationshipEdit) (RelationshipView, error) {
	current, err := s.store.GetRelationship(id)
	if err != nil {
		return RelationshipView{}, err
	}

	upd := storage.RelationshipUpdate{}
	if edit.Target != nil {
		target := strings.TrimSpace(*edit.Target)
		if target == "" {
			return RelationshipView{}, &ValidationError{Field: "target", Reason: "required"}
		}
		if target == current.SourceID {
			return RelationshipView{}, &ValidationError{Field: "target", Reason: "must differ from source"}
		}
		exists, err := s.store.ObjectiveExists(target)
		if err != nil {
			return RelationshipView{}, fmt.Errorf("checking target objective: %w", err)
		}
		if !exists {
			return RelationshipView{}, &ValidationError{Field: "target", Reason: fmt.Sprintf("objective %s does not exist", target)}
		}
		upd.TargetID = &target
	}
	if edit.Type != nil {
		rt, ok := ClassifyRelationType(*edit.Type)
		if !ok {
			return RelationshipView{}, &ValidationError{Field: "type", Reason: fmt.Sprintf("unrecognized relationship type %q", *edit.Type)}
		}
		t := string(rt)
		upd.Type = &t
	}
	if edit.Rationale != nil {
		r := truncateRationale(*edit.Rationale)
		upd.Rationale = &r
	}
	if edit.Weight != nil {
		upd.Weight = ParseUnitInterval(*edit.Weight)
	}

	stored, err := s.store.UpdateRelationship(id, upd)
	if err != nil {
		return RelationshipView{}, err
	}
	return s.relationshipView(stored)
}

// DeleteRelationship removes a relationship, returning the deleted id and
// the id of its source objective.
func (s *Service) DeleteRelationship(id string) (deletedID, sourceID string, err error) {
	r, err := s.store.DeleteRelationship(id)
	if err != nil {
		return "", "", err
	}
	return r.ID, r.SourceID, nil
}

// buildViews assembles read models for a set of objective rows: outgoing
// relationships are fetched in one query and joined in memory, each
// carrying its target's summary fields.
func (s *Service) buildViews(rows []storage.Objective) ([]ObjectiveView, error) {
	views := make([]ObjectiveView, 0, len(rows))
	if len(rows) == 0 {
		return views, nil
	}

	ids := make([]string, len(rows))
	for i, o := range rows {
		ids[i] = o.ID
	}
	outgoing, err := s.store.OutgoingRelationships(ids)
	if err != nil {
		return nil, fmt.Errorf("loading outgoing relationships: %w", err)
	}

	bySource := make(map[string][]RelationshipView, len(rows))
	for _, r := range outgoing {
		bySource[r.SourceID] = append(bySource[r.SourceID], RelationshipView{
			ID:        r.ID,
			SourceID:  r.SourceID,
			Type:      r.Type,
			Rationale: r.Rationale,
			Weight:    r.Weight,
			Target: TargetSummary{
				ID:       r.TargetID,
				Text:     r.TargetText,
				Status:   r.TargetStatus,
				Priority: r.TargetPriority,
			},
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}

	for _, o := range rows {
		rels := bySource[o.ID]
		if rels == nil {
			rels = []RelationshipView{}
		}
		views = append(views, ObjectiveView{
			ID:            o.ID,
			EntryID:       o.EntryID,
			Text:          o.Text,
			Context:       o.Context,
			Category:      o.Category,
			Timeframe:     o.Timeframe,
			Owner:         o.Owner,
			Status:        o.Status,
			Priority:      o.Priority,
			Confidence:    o.Confidence,
			Metrics:       decodeStringList(o.Metrics),
			Tags:          decodeStringList(o.Tags),
			SourceLabel:   o.SourceLabel,
			SourceExcerpt: o.SourceExcerpt,
			CreatedAt:     o.CreatedAt,
			UpdatedAt:     o.UpdatedAt,
			Relationships: rels,
		})
	}
	return views, nil
}

// relationshipView builds a standalone relationship view, fetching the
// target's summary fields.
func (s *Service) relationshipView(r storage.Relationship) (RelationshipView, error) {
	target, err := s.store.GetObjective(r.TargetID)
	if err != nil {
		return RelationshipView{}, fmt.Errorf("loading target objective: %w", err)
	}
	return RelationshipView{
		ID:        r.ID,
		SourceID:  r.SourceID,
		Type:      r.Type,
		Rationale: r.Rationale,
		Weight:    r.Weight,
		Target: TargetSummary{
			ID:       target.ID,
			Text:     target.Text,
			Status:   target.Status,
			Priority: target.Priority,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

// --- Entries (provenance reads) ---

// EntryView is a knowledge entry together with the objectives it produced.
type EntryView struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	RawText      string    `json:"raw_text"`
	CreatedAt    time.Time `json:"created_at"`
	ObjectiveIDs []string  `json:"objective_ids"`
}

// ListEntries returns a page of ingestion events, most recent first.
func (s *Service) ListEntries(limit, offset int) ([]EntryView, error) {
	entries, err := s.store.ListEntries(limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	views := make([]EntryView, 0, len(entries))
	for _, e := range entries {
		ids, err := s.store.EntryObjectiveIDs(e.ID)
		if err != nil {
			return nil, fmt.Errorf("loading entry objectives: %w", err)
		}
		if ids == nil {
			ids = []string{}
		}
		views = append(views, EntryView{
			ID: e.ID, Title: e.Title, RawText: e.RawText, CreatedAt: e.CreatedAt, ObjectiveIDs: ids,
		})
	}
	return views, nil
}

// GetEntry returns one ingestion event with its objective ids.
func (s *Service) GetEntry(id string) (EntryView, error) {
	e, err := s.store.GetEntry(id)
	if err != nil {
		return EntryView{}, err
	}
	ids, err := s.store.EntryObjectiveIDs(e.ID)
	if err != nil {
		return EntryView{}, fmt.Errorf("loading entry objectives: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return EntryView{ID: e.ID, Title: e.Title, RawText: e.RawText, CreatedAt: e.CreatedAt, ObjectiveIDs: ids}, nil
}

// --- Background ingestion ---

// JobView is the read model of a queued ingestion.
type JobView struct {
	ID        string        `json:"id"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Result    *IngestResult `json:"result,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// EnqueueIngest queues a raw-text ingestion for background processing and
// returns the job id. The worker runs extraction and Ingest off the HTTP
// path.
func (s *Service) EnqueueIngest(rawText, title string) (string, error) {
	payload, err := json.Marshal(map[string]string{"title": title, "content": rawText})
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        storage.JobTypeIngest,
		PayloadJSON: string(payload),
	}
	if err := s.store.EnqueueJob(job); err != nil {
		return "", fmt.Errorf("enqueueing ingestion: %w", err)
	}
	s.logger.Info("ingestion queued", "job_id", job.ID)
	return job.ID, nil
}

// enqueueEmbed queues an embedding job for the given objective ids.
func (s *Service) enqueueEmbed(ids []string) error {
	payload, err := json.Marshal(map[string][]string{"objective_ids": ids})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	return s.store.EnqueueJob(storage.Job{
		ID:          uuid.New().String(),
		Type:        storage.JobTypeEmbed,
		PayloadJSON: string(payload),
	})
}

// GetIngestJob returns the state of a queued ingestion, including the
// result document once the worker has completed it.
func (s *Service) GetIngestJob(id string) (JobView, error) {
	job, err := s.store.GetJob(id)
	if err != nil {
		return JobView{}, err
	}
	v := JobView{
		ID:        job.ID,
		Status:    job.Status,
		Error:     job.LastError,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Status == "completed" && job.ResultJSON != "" {
		var result IngestResult
		if err := json.Unmarshal([]byte(job.ResultJSON), &result); err == nil {
			v.Result = &result
		}
	}
	return v, nil
}

// IsNotFound reports whether err is the storage not-found sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}

// --- helpers ---

func truncateRationale(r string) string {
	r = strings.TrimSpace(r)
	if utf8.RuneCountInString(r) <= maxRationaleLen {
		return r
	}
	runes := []rune(r)
	return string(runes[:maxRationaleLen])
}

// encodeStringList stores a list as a JSON array in a text column.
func encodeStringList(values []string) string {
	cleaned := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	b, err := json.Marshal(cleaned)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// encodeTagSet lower-cases, dedupes, and stores tags as a JSON array.
func encodeTagSet(tags []string) string {
	seen := make(map[string]bool, len(tags))
	cleaned := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		cleaned = append(cleaned, t)
	}
	b, err := json.Marshal(cleaned)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStringList(s string) []string {
	var values []string
	if err := json.Unmarshal([]byte(s), &values); err != nil || values == nil {
		return []string{}
	}
	return values
}
