package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kirillkom/nutrition-assistant/internal/config"
)

func testConfig() config.Config {
	return config.Config{
		LLMProvider:                "ollama",
		OllamaURL:                  "http://127.0.0.1:1",
		QdrantURL:                  "http://127.0.0.1:1",
		QdrantCollection:           "dishes",
		SessionBackend:             "memory",
		SessionScanTTL:             10 * time.Minute,
		SessionHistoryCap:          10,
		RAGLexicalSnapshotSize:     100,
		ResilienceRetryMaxAttempts: 1,
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWiresMemoryBackend(t *testing.T) {
	app, err := New(context.Background(), testConfig(), discardLogger(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer app.Close()

	if app.TurnUC == nil || app.ScanUC == nil {
		t.Fatalf("expected both use cases to be wired")
	}
	if app.History != nil {
		t.Fatalf("expected no turn history without POSTGRES_DSN")
	}

	result, err := app.ScanUC.Ingest(context.Background(), "s1", []string{"Tofu"})
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if !result.Applied {
		t.Fatalf("expected known label to be applied, got %+v", result)
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.LLMProvider = "anthropic"
	if _, err := New(context.Background(), cfg, discardLogger(), nil); err == nil || !strings.Contains(err.Error(), "LLM_PROVIDER") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestNewRejectsUnknownSessionBackend(t *testing.T) {
	cfg := testConfig()
	cfg.SessionBackend = "etcd"
	if _, err := New(context.Background(), cfg, discardLogger(), nil); err == nil || !strings.Contains(err.Error(), "SESSION_BACKEND") {
		t.Fatalf("expected session backend error, got %v", err)
	}
}

func TestNewFailsOnMissingVocabularyFile(t *testing.T) {
	cfg := testConfig()
	cfg.VocabularyPath = t.TempDir() + "/missing.yaml"
	if _, err := New(context.Background(), cfg, discardLogger(), nil); err == nil {
		t.Fatalf("expected vocabulary error")
	}
}

func TestScanWorkerUsesRedisSessions(t *testing.T) {
	srv := miniredis.RunT(t)
	cfg := testConfig()
	cfg.SessionBackend = "redis"
	cfg.RedisURL = "redis://" + srv.Addr()

	app, err := NewScanWorker(context.Background(), cfg, discardLogger(), nil)
	if err != nil {
		t.Fatalf("NewScanWorker returned error: %v", err)
	}
	defer app.Close()

	if _, err := app.ScanUC.Ingest(context.Background(), "s1", []string{"Suon"}); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	view, err := app.ScanUC.Session(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Session returned error: %v", err)
	}
	if len(view.ScannedItems) != 1 {
		t.Fatalf("expected one scanned item, got %+v", view)
	}
}

func TestRefreshLexicalKeepsRunningOnFailure(t *testing.T) {
	qdrant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadRequest)
	}))
	defer qdrant.Close()

	cfg := testConfig()
	cfg.QdrantURL = qdrant.URL
	app, err := New(context.Background(), cfg, discardLogger(), nil)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer app.Close()

	app.RefreshLexical(context.Background())
	if app.lexical.Size() != 0 {
		t.Fatalf("expected empty lexical snapshot, got %d", app.lexical.Size())
	}
}
