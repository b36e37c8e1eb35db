package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func want() Config {
	return Config{
		GRPCListen:      ":8080",
		HTTPListen:      ":8081",
		MaxMessageBytes: 1 << 20,
		Model:           "gs://models/abc",
		Window:          WindowConfig{MaxCost: 5000, MaxLayers: 4},
		Tokenizer:       TokenizerConfig{Kind: "vocab", VocabPath: "/etc/vocab.json", MaxTokens: 64},
		Embedding:       EmbeddingConfig{Parallelism: 2},
	}
}

func TestLoadFormats(t *testing.T) {
	files := map[string]string{
		"cfg.yaml": `
grpc_listen: ":8080"
http_listen: ":8081"
max_message_bytes: 1048576
model: gs://models/abc
window:
  max_cost: 5000
  max_layers: 4
tokenizer:
  kind: vocab
  vocab_path: /etc/vocab.json
  max_tokens: 64
embedding:
  parallelism: 2
`,
		"cfg.json": `{"grpc_listen":":8080","http_listen":":8081","max_message_bytes":1048576,"model":"gs://models/abc",
"window":{"max_cost":5000,"max_layers":4},
"tokenizer":{"kind":"vocab","vocab_path":"/etc/vocab.json","max_tokens":64},
"embedding":{"parallelism":2}}`,
		"cfg.toml": `
grpc_listen = ":8080"
http_listen = ":8081"
max_message_bytes = 1048576
model = "gs://models/abc"

[window]
max_cost = 5000
max_layers = 4

[tokenizer]
kind = "vocab"
vocab_path = "/etc/vocab.json"
max_tokens = 64

[embedding]
parallelism = 2
`,
	}
	d := t.TempDir()
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			cfg, err := Load(writeTempFile(t, d, name, content))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if diff := cmp.Diff(want(), cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error on empty path")
	}
	d := t.TempDir()
	for name, content := range map[string]string{
		"cfg.txt":      "not supported",
		"bad.yaml":     "window: [",
		"kind.json":    `{"tokenizer":{"kind":"bpe"}}`,
		"vocab.json":   `{"tokenizer":{"kind":"vocab"}}`,
		"window.toml":  "[window]\nmax_layers = -1\n",
		"message.yaml": "max_message_bytes: -5\n",
	} {
		if _, err := Load(writeTempFile(t, d, name, content)); err == nil {
			t.Errorf("expected error loading %s", name)
		}
	}
}
