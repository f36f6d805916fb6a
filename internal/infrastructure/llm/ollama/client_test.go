package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	}, nil)
}

func TestChatSendsRoleMessages(t *testing.T) {
	var captured struct {
		Model    string        `json:"model"`
		Messages []chatMessage `json:"messages"`
		Stream   bool          `json:"stream"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":" Phở bò khoảng 450 kcal. "}}`))
	}))
	defer server.Close()

	client := New(server.URL, "qwen3", "bge-m3", testExecutor())
	out, err := client.Chat(context.Background(), []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "Phở bò?"},
	})
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if out != "Phở bò khoảng 450 kcal." {
		t.Fatalf("unexpected answer %q", out)
	}
	if captured.Model != "qwen3" || captured.Stream || len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("unexpected request: %+v", captured)
	}
}

func TestCompleteUsesGenerateEndpoint(t *testing.T) {
	var capturedPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		capturedPrompt, _ = payload["prompt"].(string)
		_, _ = w.Write([]byte(`{"response":"NEW_TOPIC"}`))
	}))
	defer server.Close()

	out, err := New(server.URL, "gen", "embed", testExecutor()).Complete(context.Background(), "classify this")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if out != "NEW_TOPIC" || capturedPrompt != "classify this" {
		t.Fatalf("unexpected result out=%q prompt=%q", out, capturedPrompt)
	}
}

func TestEmbedReturnsFirstVector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[[0.5,0.25]]}`))
	}))
	defer server.Close()

	vec, err := New(server.URL, "gen", "embed", testExecutor()).Embed(context.Background(), "phở")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 2 || vec[0] != 0.5 {
		t.Fatalf("unexpected vector %v", vec)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadRequest)
	}))
	defer server.Close()

	_, err := New(server.URL, "gen", "embed", testExecutor()).Embed(context.Background(), "hello")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("400 must not be temporary: %v", err)
	}
}

func TestRetriesServerErrorsAndMarksTemporary(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(server.URL, "gen", "embed", testExecutor()).Complete(context.Background(), "x")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}
