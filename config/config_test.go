package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RAG.ChunkSize != 500 || cfg.RAG.ChunkOverlap != 50 || cfg.RAG.TopK != 4 {
		t.Errorf("unexpected rag defaults: %+v", cfg.RAG)
	}
	if cfg.Store.Backing != "memory" {
		t.Errorf("default backing = %q, want memory", cfg.Store.Backing)
	}
	if _, ok := cfg.Chat.Models[cfg.Chat.DefaultModel]; !ok {
		t.Errorf("default model %q not in allow-list", cfg.Chat.DefaultModel)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  addr: ":9999"
rag:
  chunk_size: 200
chat:
  default_model: my/model
  models:
    my/model:
      max_tokens: 1024
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.RAG.ChunkSize != 200 {
		t.Errorf("chunk_size = %d", cfg.RAG.ChunkSize)
	}
	if cfg.RAG.ChunkOverlap != 50 {
		t.Errorf("chunk_overlap default not applied: %d", cfg.RAG.ChunkOverlap)
	}
	if cfg.Chat.Models["my/model"].MaxTokens != 1024 {
		t.Errorf("model mapping not loaded: %+v", cfg.Chat.Models)
	}
}

func TestAPIKeyRequiresEnv(t *testing.T) {
	c := ChatConfig{APIKeyEnv: "RAGCHAT_TEST_MISSING_KEY"}
	os.Unsetenv("RAGCHAT_TEST_MISSING_KEY")
	if _, err := c.APIKey(); err == nil {
		t.Fatal("expected error for unset credential env var")
	}

	t.Setenv("RAGCHAT_TEST_MISSING_KEY", "sekrit")
	key, err := c.APIKey()
	if err != nil {
		t.Fatalf("apikey: %v", err)
	}
	if key != "sekrit" {
		t.Errorf("key = %q", key)
	}
}
