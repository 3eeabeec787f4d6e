package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/northstar-labs/northstar/internal/graph"
	"github.com/northstar-labs/northstar/internal/search"
	"github.com/northstar-labs/northstar/internal/storage"
)

const maxIngestBodySize = 10 << 20 // 10MB
const maxRequestBodySize = 1 << 20 // 1MB

// ObjectiveExtractor abstracts the LLM extraction collaborator.
type ObjectiveExtractor interface {
	Extract(ctx context.Context, text, title string) graph.Extraction
}

// ObjectiveSearcher abstracts semantic search over indexed objectives.
type ObjectiveSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]search.Hit, error)
}

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Graph      *graph.Service
	Extractor  ObjectiveExtractor
	Searcher   ObjectiveSearcher // nil disables /objectives/search
	HTTPClient *http.Client      // used for fetching url-type ingests
}

// NewAppHandler builds the chi router for the objective-graph API.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth())
	r.Post("/ingest", handleIngest(deps))
	r.Get("/objectives", handleListObjectives(deps))
	r.Get("/objectives/search", handleSearchObjectives(deps))
	r.Post("/objectives/query", handleObjectivesByIDs(deps))
	r.Get("/objectives/{id}", handleGetObjective(deps))
	r.Patch("/objectives/{id}", handleUpdateObjective(deps))
	r.Get("/graph", handleGraphSnapshot(deps))
	r.Post("/relationships", handleCreateRelationship(deps))
	r.Patch("/relationships/{id}", handleUpdateRelationship(deps))
	r.Delete("/relationships/{id}", handleDeleteRelationship(deps))
	r.Get("/jobs/{id}", handleGetJob(deps))
	r.Get("/entries", handleListEntries(deps))
	r.Get("/entries/{id}", handleGetEntry(deps))

	return r
}

func handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

// IngestRequest is the body of POST /ingest. Type selects how Content/URL
// is interpreted: "text" (default), "url", or "pdf" (base64).
type IngestRequest struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
	Async   bool   `json:"async"`
}

func handleIngest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxIngestBodySize)
		defer r.Body.Close()

		var req IngestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Content == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "at least one of content or url is required")
			return
		}
		if req.Type == "" {
			req.Type = "text"
		}

		text, title, err := resolveContent(r.Context(), deps.HTTPClient, req)
		if err != nil {
			var ce *contentError
			if errors.As(err, &ce) {
				httpError(w, ce.status, ce.errType, "%s", ce.message)
			} else {
				httpError(w, http.StatusInternalServerError, "api_error", "resolving content: %v", err)
			}
			return
		}
		if text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "resolved content is empty")
			return
		}

		if req.Async {
			jobID, err := deps.Graph.EnqueueIngest(text, title)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"job_id": jobID, "status": "pending"})
			return
		}

		extraction := deps.Extractor.Extract(r.Context(), text, title)

		result, err := deps.Graph.Ingest(text, title, extraction)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, result)
	}
}

func handleGetJob(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Graph.GetIngestJob(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, job)
	}
}

func handleListObjectives(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)
		query := r.URL.Query().Get("q")

		objectives, err := deps.Graph.ListObjectives(limit, offset, query)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, objectives)
	}
}

// SearchResult pairs an objective view with its similarity score.
type SearchResult struct {
	Objective graph.ObjectiveView `json:"objective"`
	Score     float32             `json:"score"`
}

func handleSearchObjectives(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Searcher == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "semantic search is not configured")
			return
		}

		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", 10, 50)

		hits, err := deps.Searcher.Search(r.Context(), query, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "searching: %v", err)
			return
		}

		ids := make([]string, len(hits))
		scores := make(map[string]float32, len(hits))
		for i, h := range hits {
			ids[i] = h.ObjectiveID
			scores[h.ObjectiveID] = h.Score
		}

		views, err := deps.Graph.GetObjectivesByIDs(ids)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		byID := make(map[string]graph.ObjectiveView, len(views))
		for _, v := range views {
			byID[v.ID] = v
		}

		// Preserve hit order; drop hits whose objective is gone.
		results := make([]SearchResult, 0, len(hits))
		for _, h := range hits {
			if v, ok := byID[h.ObjectiveID]; ok {
				results = append(results, SearchResult{Objective: v, Score: scores[h.ObjectiveID]})
			}
		}
		writeJSON(w, results)
	}
}

func handleObjectivesByIDs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(req.IDs) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "ids is required")
			return
		}

		objectives, err := deps.Graph.GetObjectivesByIDs(req.IDs)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, objectives)
	}
}

func handleGetObjective(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		objective, err := deps.Graph.GetObjective(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, objective)
	}
}

func handleUpdateObjective(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Status    *string `json:"status"`
			Priority  *string `json:"priority"`
			Context   *string `json:"context"`
			Category  *string `json:"category"`
			Timeframe *string `json:"timeframe"`
			Owner     *string `json:"owner"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		objective, err := deps.Graph.UpdateObjective(chi.URLParam(r, "id"), storage.ObjectiveUpdate{
			Status:    req.Status,
			Priority:  req.Priority,
			Context:   req.Context,
			Category:  req.Category,
			Timeframe: req.Timeframe,
			Owner:     req.Owner,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, objective)
	}
}

func handleGraphSnapshot(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := deps.Graph.GraphSnapshot()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, snapshot)
	}
}

// RelationshipRequest is the body of POST /relationships.
type RelationshipRequest struct {
	Source    string   `json:"source"`
	Target    string   `json:"target"`
	Type      string   `json:"type"`
	Rationale string   `json:"rationale"`
	Weight    *float64 `json:"weight"`
}

func handleCreateRelationship(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req RelationshipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		rel, err := deps.Graph.CreateRelationship(req.Source, req.Target, req.Type, req.Rationale, req.Weight)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, rel)
	}
}

func handleUpdateRelationship(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req struct {
			Target    *string  `json:"target"`
			Type      *string  `json:"type"`
			Rationale *string  `json:"rationale"`
			Weight    *float64 `json:"weight"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		rel, err := deps.Graph.UpdateRelationship(chi.URLParam(r, "id"), graph.RelationshipEdit{
			Target:    req.Target,
			Type:      req.Type,
			Rationale: req.Rationale,
			Weight:    req.Weight,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, rel)
	}
}

func handleDeleteRelationship(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deletedID, sourceID, err := deps.Graph.DeleteRelationship(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, map[string]string{"deleted": deletedID, "source": sourceID})
	}
}

func handleListEntries(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		entries, err := deps.Graph.ListEntries(limit, offset)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, entries)
	}
}

func handleGetEntry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := deps.Graph.GetEntry(chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, entry)
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

// writeServiceError maps graph/storage errors onto the HTTP taxonomy:
// validation 400, not-found 404, conflict 409, everything else 500.
func writeServiceError(w http.ResponseWriter, err error) {
	var ve *graph.ValidationError
	switch {
	case errors.As(err, &ve):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s", ve.Error())
	case errors.Is(err, storage.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found", "not found")
	case errors.Is(err, storage.ErrConflict):
		httpError(w, http.StatusConflict, "conflict", "already exists")
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
