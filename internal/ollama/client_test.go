package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChat(t *testing.T) {
	var gotReq struct {
		Model    string    `json:"model"`
		Messages []Message `json:"messages"`
		Stream   bool      `json:"stream"`
		Format   *Schema   `json:"format"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": `{"ok":true}`},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	schema := &Schema{Type: "object"}
	resp, err := c.Chat(context.Background(), "llama3.1", []Message{{Role: "user", Content: "hi"}}, schema)
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp != `{"ok":true}` {
		t.Errorf("unexpected response: %q", resp)
	}
	if gotReq.Model != "llama3.1" || gotReq.Stream || gotReq.Format == nil {
		t.Errorf("unexpected request: %+v", gotReq)
	}
}

func TestChatErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Chat(context.Background(), "m", nil, nil); err == nil {
		t.Error("expected error on 500 status")
	}
}

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Model string `json:"model"`
			Input string `json:"input"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "nomic-embed-text" || req.Input != "some text" {
			t.Errorf("unexpected request: %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer srv.Close()

	vec, err := New(srv.URL).Embed(context.Background(), "nomic-embed-text", "some text")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 || vec[1] != 0.2 {
		t.Errorf("unexpected vector: %v", vec)
	}
}

func TestEmbedEmptyEmbeddings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embeddings": [][]float32{}})
	}))
	defer srv.Close()

	if _, err := New(srv.URL).Embed(context.Background(), "m", "x"); err == nil {
		t.Error("expected error on empty embeddings")
	}
}

func TestHasModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"models": []map[string]string{{"name": "llama3.1:latest"}, {"name": "nomic-embed-text"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL)
	ctx := context.Background()
	if !c.HasModel(ctx, "llama3.1") {
		t.Error("expected tag-suffixed model to match")
	}
	if !c.HasModel(ctx, "nomic-embed-text") {
		t.Error("expected exact model to match")
	}
	if c.HasModel(ctx, "mistral") {
		t.Error("unexpected match for absent model")
	}
}

func TestIsRunning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	c := New(srv.URL)
	if !c.IsRunning(context.Background()) {
		t.Error("expected running server to be detected")
	}
	srv.Close()
	if c.IsRunning(context.Background()) {
		t.Error("expected closed server to be undetectable")
	}
}
