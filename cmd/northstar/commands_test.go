package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestIngestCommand_Text(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /ingest": `{"entry_id":"e-123","objectives":[{"id":"o-1","text":"Ship v2","status":"ACTIVE","priority":"HIGH"}],"duplicates_skipped":0,"relationships_persisted":0}`,
	})

	client := ts.client()

	req := map[string]any{
		"type":    "text",
		"content": "Ship v2 by June",
		"title":   "notes",
	}

	resp, err := client.post(ctx, "/ingest", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		EntryID    string          `json:"entry_id"`
		Objectives []objectiveJSON `json:"objectives"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.EntryID != "e-123" {
		t.Errorf("entry_id = %q, want %q", result.EntryID, "e-123")
	}
	if len(result.Objectives) != 1 || result.Objectives[0].Status != "ACTIVE" {
		t.Errorf("unexpected objectives: %+v", result.Objectives)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" {
		t.Errorf("method = %q, want POST", r.Method)
	}
	if r.Path != "/ingest" {
		t.Errorf("path = %q, want /ingest", r.Path)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["type"] != "text" {
		t.Errorf("body.type = %v, want text", body["type"])
	}
	if body["content"] != "Ship v2 by June" {
		t.Errorf("body.content = %v, want 'Ship v2 by June'", body["content"])
	}
}

func TestIngestCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ingest"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestObjectivesSearchCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /objectives/search": `[{"objective":{"id":"o-1","text":"Expand into the EU market","status":"PROPOSED","priority":"MEDIUM"},"score":0.91}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/objectives/search?limit=10&q=european+expansion")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var results []struct {
		Objective objectiveJSON `json:"objective"`
		Score     float32       `json:"score"`
	}
	if err := decodeJSON(resp, &results); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Objective.Text != "Expand into the EU market" {
		t.Errorf("text = %q, want 'Expand into the EU market'", results[0].Objective.Text)
	}
	if results[0].Score < 0.9 {
		t.Errorf("score = %f, want > 0.9", results[0].Score)
	}
}

func TestObjectivesSearch_URLEncoding(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /objectives/search": `[]`,
	})

	client := ts.client()
	query := "hiring & retention goals"
	path := fmt.Sprintf("/objectives/search?limit=10&q=%s", url.QueryEscape(query))
	resp, err := client.get(ctx, path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	reqPath := ts.requests[0].Path
	if strings.Contains(reqPath, "& retention") {
		t.Errorf("query not URL-encoded: %q", reqPath)
	}
	if !strings.Contains(reqPath, "q=hiring+%26+retention+goals") {
		t.Errorf("unexpected encoded path: %q", reqPath)
	}
}

func TestRelationshipCreate(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /relationships": `{"id":"r-1","source_id":"o-1","type":"DEPENDS_ON","target":{"id":"o-2","text":"Hire a platform engineer"}}`,
	})

	client := ts.client()
	body := map[string]any{
		"source_id": "o-1",
		"target_id": "o-2",
		"type":      "depends_on",
	}
	resp, err := client.post(ctx, "/relationships", body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var rel struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := decodeJSON(resp, &rel); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if rel.Type != "DEPENDS_ON" {
		t.Errorf("type = %q, want DEPENDS_ON", rel.Type)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sent); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sent["type"] != "depends_on" {
		t.Errorf("body.type = %v, want depends_on", sent["type"])
	}
}

func TestStatusCommand_Running(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /health": `{"status":"ok"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status code = %d, want 200", resp.StatusCode)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorBody(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	client := ts.client()
	resp, err := client.get(ctx, "/objectives/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var v map[string]any
	err = decodeJSON(resp, &v)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "not found") || !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to carry message and status", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}
