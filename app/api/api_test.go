package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"ragchat/app/agent"
	"ragchat/config"
	"ragchat/model"
	"ragchat/store"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%8] += float32(r) / 1000.0
	}
	return vec, nil
}

func (f fakeEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

func newTestApp(t *testing.T, upstreamURL string) *fiber.App {
	t.Helper()

	st, err := store.NewMemoryStore()
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	ragCfg := config.RAGConfig{ChunkSize: 50, ChunkOverlap: 10, TopK: 4}
	ag := agent.New(st, fakeEmbedder{}, ragCfg)

	chatCfg := config.ChatConfig{
		BaseURL:      upstreamURL,
		DefaultModel: "test/model",
		Models:       map[string]config.ModelConfig{"test/model": {MaxTokens: 64}},
	}
	relay := model.NewRelay(upstreamURL, "test-key", "", "", 5*time.Second)

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})

	var (
		checkHandler  = NewCheckHandler()
		chatHandler   = NewChatHandler(ag, relay, chatCfg)
		ingestHandler = NewIngestHandler(ag, t.TempDir(), ragCfg)
		apiGroup      = app.Group("/api")
		agentGroup    = apiGroup.Group("/agent")
	)
	apiGroup.Get("/health", checkHandler.HandleHealthy)
	agentGroup.Post("/chat", chatHandler.HandleChat)
	agentGroup.Post("/ingest", ingestHandler.HandleIngest)
	agentGroup.Post("/ingest/file", ingestHandler.HandleIngestFile)

	return app
}

func TestHandleHealthy(t *testing.T) {
	app := newTestApp(t, "http://localhost:0")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want ok", body["status"])
	}
}

func TestHandleIngest(t *testing.T) {
	app := newTestApp(t, "http://localhost:0")

	req := httptest.NewRequest(http.MethodPost, "/api/agent/ingest",
		strings.NewReader(`{"text":"some document text worth indexing for later retrieval"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		ChunksIngested int `json:"chunks_ingested"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ChunksIngested == 0 {
		t.Error("expected at least one chunk ingested")
	}
}

func TestHandleIngestMissingText(t *testing.T) {
	app := newTestApp(t, "http://localhost:0")

	req := httptest.NewRequest(http.MethodPost, "/api/agent/ingest", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestHandleChatUnknownModel(t *testing.T) {
	app := newTestApp(t, "http://localhost:0")

	req := httptest.NewRequest(http.MethodPost, "/api/agent/chat?model=not/allowed",
		strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleChatMissingMessage(t *testing.T) {
	app := newTestApp(t, "http://localhost:0")

	req := httptest.NewRequest(http.MethodPost, "/api/agent/chat", strings.NewReader(`{"history":[]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestHandleChatStreamsFragments(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n")
		fmt.Fprint(w, "data: [DONE]\n")
	}))
	defer upstream.Close()

	app := newTestApp(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/agent/chat",
		strings.NewReader(`{"message":"greet me","history":[{"user":"hi","ai":"hello"}]}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "Hello world" {
		t.Errorf("streamed body = %q, want %q", string(body), "Hello world")
	}
}

func TestHandleChatUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "provider down")
	}))
	defer upstream.Close()

	app := newTestApp(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/agent/chat", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	// The stream already started, so the failure arrives as one in-stream
	// error artifact rather than a bare status code.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var artifact struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &artifact); err != nil {
		t.Fatalf("expected a single JSON error artifact, got %q", string(body))
	}
	if !strings.Contains(artifact.Error, "provider down") {
		t.Errorf("error artifact %q does not carry the provider body", artifact.Error)
	}
}
