package inference_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"bookshelf/internal/inference"
	"bookshelf/internal/services"
	"bookshelf/internal/services/llm"
	"bookshelf/internal/testsupport"
)

type recordedChat struct {
	Model          string            `json:"model"`
	MaxTokens      int               `json:"max_tokens"`
	ResponseFormat map[string]string `json:"response_format"`
}

func newLlamaServer(t *testing.T, nCtx int) (*httptest.Server, func() []recordedChat) {
	t.Helper()
	var (
		mu    sync.Mutex
		chats []recordedChat
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/props", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"default_generation_settings": map[string]any{"n_ctx": nCtx},
		})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var body recordedChat
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		chats = append(chats, body)
		mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{
				"message":       map[string]any{"content": `{"tags":["A"],"summary":"S."}`},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"total_tokens": 42},
		})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, func() []recordedChat {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedChat(nil), chats...)
	}
}

func TestLlamaServerBackendHonorsServerContext(t *testing.T) {
	server, chats := newLlamaServer(t, 4096)
	modelPath := testsupport.WriteText(t, filepath.Join(t.TempDir(), "qwen.Q4.gguf"), "GGUF")

	client := llm.NewClient(llm.Config{BaseURL: server.URL + "/v1/chat/completions"}, llm.WithRetryMaxAttempts(1))
	gateway := inference.NewGateway(inference.NewLlamaServer(client), []int{8192, 4096, 2048}, nil)

	resp, err := gateway.Complete(context.Background(), modelPath, inference.Request{
		System: "sys", User: "Book Excerpt:\n\ntext", MaxTokens: 500, JSON: true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.TotalTokens != 42 || !strings.Contains(resp.Text, `"tags"`) {
		t.Fatalf("unexpected response %+v", resp)
	}
	if gateway.ActiveContextSize() != 4096 {
		t.Fatalf("expected server-bounded context 4096, got %d", gateway.ActiveContextSize())
	}
	got := chats()
	if len(got) != 1 || got[0].Model != "qwen.Q4.gguf" || got[0].MaxTokens != 500 || got[0].ResponseFormat["type"] != "json_object" {
		t.Fatalf("unexpected chat payloads %+v", got)
	}
}

func TestLlamaServerRejectsInvalidModelFiles(t *testing.T) {
	server, _ := newLlamaServer(t, 4096)
	client := llm.NewClient(llm.Config{BaseURL: server.URL + "/v1/chat/completions"})
	backend := inference.NewLlamaServer(client)
	dir := t.TempDir()

	_, err := backend.LoadModel(context.Background(), filepath.Join(dir, "missing.gguf"))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	notGGUF := testsupport.WriteText(t, filepath.Join(dir, "model.bin"), "x")
	_, err = backend.LoadModel(context.Background(), notGGUF)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
