package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/TobiSchelling/BulletinWatch/internal/config"
)

func TestCleanResponsePlain(t *testing.T) {
	if got := CleanResponse("  resumo  \n"); got != "resumo" {
		t.Errorf("expected 'resumo', got %q", got)
	}
}

func TestCleanResponseWithCodeFence(t *testing.T) {
	text := "```markdown\n**Tema**: dengue\n- achado\n```"
	if got := CleanResponse(text); got != "**Tema**: dengue\n- achado" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestCleanResponseUnterminatedFence(t *testing.T) {
	if got := CleanResponse("```\nconteúdo"); got != "conteúdo" {
		t.Errorf("unexpected result %q", got)
	}
}

func TestCleanResponseEmpty(t *testing.T) {
	if got := CleanResponse("   "); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	if got := CleanResponse("```"); got != "" {
		t.Errorf("expected empty string for bare fence, got %q", got)
	}
}

func TestOpenAIGenerate(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"resumo gerado"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("gpt-4o-mini", "sk-test", 5*time.Second)
	p.BaseURL = srv.URL

	out, err := p.Generate(context.Background(), "prompt", 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "resumo gerado" {
		t.Errorf("unexpected output %q", out)
	}
	if gotBody["model"] != "gpt-4o-mini" || gotBody["max_tokens"] != float64(500) {
		t.Errorf("unexpected request body %v", gotBody)
	}
	if gotBody["temperature"] != 0.2 {
		t.Errorf("expected temperature 0.2, got %v", gotBody["temperature"])
	}
}

func TestOpenAIGenerateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("gpt-4o-mini", "sk-test", 5*time.Second)
	p.BaseURL = srv.URL

	if _, err := p.Generate(context.Background(), "prompt", 10); err == nil {
		t.Error("expected error for 429 response")
	}
}

func TestOpenAIGenerateWithoutKey(t *testing.T) {
	p := NewOpenAIProvider("gpt-4o-mini", "", time.Second)
	if p.IsConfigured() {
		t.Error("expected provider without key to be unconfigured")
	}
	if _, err := p.Generate(context.Background(), "prompt", 10); err == nil {
		t.Error("expected error without API key")
	}
}

func ollamaServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"models":[{"name":"qwen2.5:7b"}]}`)
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"message":{"content":"resumo local"}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaProvider(t *testing.T) {
	srv := ollamaServer(t)

	p := NewOllamaProvider("qwen2.5:7b", srv.URL+"/", 5*time.Second)
	if !p.IsConfigured() {
		t.Fatal("expected ollama to be configured")
	}
	out, err := p.Generate(context.Background(), "prompt", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "resumo local" {
		t.Errorf("unexpected output %q", out)
	}

	missing := NewOllamaProvider("llama3", srv.URL, 5*time.Second)
	if missing.IsConfigured() {
		t.Error("expected missing model to be unconfigured")
	}
}

func TestCreateProvider(t *testing.T) {
	srv := ollamaServer(t)
	unreachable := httptest.NewServer(http.NotFoundHandler())
	unreachable.Close()

	tests := []struct {
		name string
		cfg  config.Summarization
		want string
	}{
		{"none", config.Summarization{Provider: "none", APIKey: "sk-test"}, ""},
		{"openai without key", config.Summarization{Provider: "openai"}, ""},
		{"openai", config.Summarization{Provider: "openai", APIKey: "sk-test"}, "openai"},
		{"ollama", config.Summarization{Provider: "ollama", Model: "qwen2.5:7b", OllamaURL: srv.URL}, "ollama"},
		{"ollama falls back to openai", config.Summarization{Provider: "ollama", Model: "qwen2.5:7b", OllamaURL: unreachable.URL, APIKey: "sk-test"}, "openai"},
		{"nothing usable", config.Summarization{Provider: "ollama", Model: "qwen2.5:7b", OllamaURL: unreachable.URL}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Timeout = 2 * time.Second
			p := CreateProvider(tt.cfg)
			var got string
			switch p.(type) {
			case *OpenAIProvider:
				got = "openai"
			case *OllamaProvider:
				got = "ollama"
			case nil:
				got = ""
			}
			if got != tt.want {
				t.Errorf("expected %q provider, got %q", tt.want, got)
			}
		})
	}
}
