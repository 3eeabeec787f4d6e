package api

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/northstar-labs/northstar/internal/graph"
	"github.com/northstar-labs/northstar/internal/search"
	"github.com/northstar-labs/northstar/internal/storage"
)

func newTestMCPDeps(t *testing.T, extraction graph.Extraction) MCPDeps {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	return MCPDeps{
		Graph:     graph.NewService(store),
		Extractor: &stubExtractor{extraction: extraction},
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func TestMCPTool_IngestText(t *testing.T) {
	deps := newTestMCPDeps(t, sampleExtraction())
	handler := mcpIngestText(deps)

	result, err := handler(context.Background(), makeCallToolRequest("ingest_text", map[string]any{
		"content": "Ship v2 by June. Hire a platform engineer.",
		"title":   "Planning notes",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}

	var ingested graph.IngestResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &ingested); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if len(ingested.Objectives) != 2 || ingested.RelationshipsPersisted != 1 {
		t.Errorf("unexpected result: %+v", ingested)
	}

	missing, err := handler(context.Background(), makeCallToolRequest("ingest_text", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !missing.IsError {
		t.Error("expected error for missing content")
	}
}

func TestMCPTool_SearchObjectives(t *testing.T) {
	deps := newTestMCPDeps(t, sampleExtraction())
	if _, err := mcpIngestText(deps)(context.Background(), makeCallToolRequest("ingest_text", map[string]any{
		"content": "x",
	})); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	result, err := mcpSearchObjectives(deps)(context.Background(), makeCallToolRequest("search_objectives", map[string]any{
		"query": "platform",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var objectives []graph.ObjectiveView
	if err := json.Unmarshal([]byte(toolText(t, result)), &objectives); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if len(objectives) != 1 || objectives[0].Text != "Hire a platform engineer" {
		t.Errorf("unexpected objectives: %+v", objectives)
	}
}

func TestMCPTool_SemanticSearch(t *testing.T) {
	deps := newTestMCPDeps(t, graph.Extraction{})
	deps.Searcher = &stubSearcher{hits: []search.Hit{
		{ObjectiveID: "o1", Text: "Launch the beta", Score: 0.9},
	}}

	result, err := mcpSemanticSearch(deps)(context.Background(), makeCallToolRequest("semantic_search", map[string]any{
		"query": "launch",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var hits []search.Hit
	if err := json.Unmarshal([]byte(toolText(t, result)), &hits); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if len(hits) != 1 || hits[0].ObjectiveID != "o1" {
		t.Errorf("unexpected hits: %+v", hits)
	}

	missing, err := mcpSemanticSearch(deps)(context.Background(), makeCallToolRequest("semantic_search", map[string]any{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !missing.IsError {
		t.Error("expected error for missing query")
	}
}

func TestMCPTool_LinkObjectives(t *testing.T) {
	deps := newTestMCPDeps(t, sampleExtraction())
	seed, err := mcpIngestText(deps)(context.Background(), makeCallToolRequest("ingest_text", map[string]any{
		"content": "x",
	}))
	if err != nil {
		t.Fatalf("seeding: %v", err)
	}
	var ingested graph.IngestResult
	if err := json.Unmarshal([]byte(toolText(t, seed)), &ingested); err != nil {
		t.Fatalf("parsing seed result: %v", err)
	}
	aID, bID := ingested.Objectives[0].ID, ingested.Objectives[1].ID

	result, err := mcpLinkObjectives(deps)(context.Background(), makeCallToolRequest("link_objectives", map[string]any{
		"source": bID,
		"target": aID,
		"type":   "supports",
		"weight": 0.8,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("tool error: %s", toolText(t, result))
	}
	var rel graph.RelationshipView
	if err := json.Unmarshal([]byte(toolText(t, result)), &rel); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if rel.Type != "SUPPORTS" || rel.Weight == nil || *rel.Weight != 0.8 {
		t.Errorf("unexpected relationship: %+v", rel)
	}

	// Validation failures surface as tool errors, not Go errors.
	loop, err := mcpLinkObjectives(deps)(context.Background(), makeCallToolRequest("link_objectives", map[string]any{
		"source": aID,
		"target": aID,
		"type":   "supports",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !loop.IsError {
		t.Error("expected error for self-loop")
	}
}

func TestMCPResource_GraphSnapshot(t *testing.T) {
	deps := newTestMCPDeps(t, sampleExtraction())
	if _, err := mcpIngestText(deps)(context.Background(), makeCallToolRequest("ingest_text", map[string]any{
		"content": "x",
	})); err != nil {
		t.Fatalf("seeding: %v", err)
	}

	contents, err := mcpResourceSnapshot(deps)(context.Background(), mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: "graph://snapshot"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 resource content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var snap graph.Snapshot
	if err := json.Unmarshal([]byte(tc.Text), &snap); err != nil {
		t.Fatalf("parsing snapshot: %v", err)
	}
	if len(snap.Objectives) != 2 || len(snap.Relationships) != 1 {
		t.Errorf("unexpected snapshot: %d objectives, %d relationships", len(snap.Objectives), len(snap.Relationships))
	}
}
