package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

func runCommand(t *testing.T, server *httptest.Server, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(nil, nil)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(append([]string{"--api-url", server.URL}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestAskPrintsAnswerAndSources(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"turn_id":"t1","answer":"Khoảng 450 kcal.","intent":"NEW_TOPIC","path":"corpus","outcome":"answered","sources":["Phở bò"],"image_links":[]}`))
	}))
	defer server.Close()

	out, err := runCommand(t, server, "ask", "--session", "X", "Phở", "bò", "bao", "nhiêu", "calo?")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if got["question"] != "Phở bò bao nhiêu calo?" || got["session_id"] != "X" {
		t.Fatalf("unexpected request %v", got)
	}
	if _, ok := got["department_id"]; ok {
		t.Fatalf("department must be omitted when empty")
	}
	for _, want := range []string{"Khoảng 450 kcal.", "answered via corpus", "1. Phở bò"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestScanReportsUnchangedFocus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"session_id":"X","items":[],"applied":false}`))
	}))
	defer server.Close()

	out, err := runCommand(t, server, "scan", "-s", "X", "Pizza")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !strings.Contains(out, "focus unchanged") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestSessionWithTurns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/sessions/X":
			_, _ = w.Write([]byte(`{"session_id":"X","focus":"SCAN","scanned_items":["Sườn non"],"history_len":1}`))
		case "/v1/sessions/X/turns":
			if r.URL.Query().Get("limit") != "5" {
				http.Error(w, "bad limit", http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"turns":[{"turn_id":"t1","session_id":"X","question":"Hai món này ăn chung có hợp không?","path":"scan","outcome":"answered","created_at":"2026-05-01T08:00:00Z"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	out, err := runCommand(t, server, "session", "X", "--turns", "--limit", "5")
	if err != nil {
		t.Fatalf("session failed: %v", err)
	}
	for _, want := range []string{"focus=SCAN", "scanned: Sườn non", "Hai món này ăn chung"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAPIErrorIsSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer server.Close()

	_, err := runCommand(t, server, "ask", "-s", "X", "hello")
	if err == nil || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestAskRequiresSession(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	if _, err := runCommand(t, server, "ask", "hello"); err == nil {
		t.Fatalf("expected missing --session error")
	}
}

type publisherFake struct {
	sessionID string
	labels    []string
	err       error
}

func (p *publisherFake) PublishScan(_ context.Context, sessionID string, labels []string) error {
	p.sessionID = sessionID
	p.labels = labels
	return p.err
}

func TestScanPublishesToNATSWhenRequested(t *testing.T) {
	pub := &publisherFake{}
	closed := false
	var gotURL, gotSubject string
	root := NewRootCommand(nil, func(natsURL, subject string) (ports.ScanEventPublisher, func(), error) {
		gotURL, gotSubject = natsURL, subject
		return pub, func() { closed = true }, nil
	})
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"scan", "-s", "X", "--nats-url", "nats://127.0.0.1:4222", "--subject", "scans.test", "Suon", "Tofu"})

	if err := root.Execute(); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if gotURL != "nats://127.0.0.1:4222" || gotSubject != "scans.test" {
		t.Fatalf("unexpected publisher target %q %q", gotURL, gotSubject)
	}
	if pub.sessionID != "X" || len(pub.labels) != 2 || pub.labels[0] != "Suon" {
		t.Fatalf("unexpected publish %q %v", pub.sessionID, pub.labels)
	}
	if !closed {
		t.Fatalf("publisher must be closed")
	}
	if !strings.Contains(buf.String(), "published 2 label(s)") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestScanRejectsNATSWithoutPublisher(t *testing.T) {
	root := NewRootCommand(nil, nil)
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{"scan", "-s", "X", "--nats-url", "nats://127.0.0.1:4222", "Suon"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected error without a publisher factory")
	}
}
