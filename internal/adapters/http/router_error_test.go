package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kirillkom/nutrition-assistant/internal/config"
	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

type turnFake struct {
	result domain.TurnResult
	err    error
	last   domain.TurnRequest
}

func (f *turnFake) Ask(_ context.Context, req domain.TurnRequest) (domain.TurnResult, error) {
	f.last = req
	return f.result, f.err
}

type scanFake struct {
	result domain.ScanResult
	err    error
}

func (f scanFake) Ingest(_ context.Context, sessionID string, _ []string) (domain.ScanResult, error) {
	if f.err != nil {
		return domain.ScanResult{}, f.err
	}
	out := f.result
	out.SessionID = sessionID
	return out, nil
}

type sessionFake struct {
	view domain.SessionView
	err  error
}

func (f sessionFake) Session(_ context.Context, sessionID string) (domain.SessionView, error) {
	if f.err != nil {
		return domain.SessionView{}, f.err
	}
	out := f.view
	out.SessionID = sessionID
	return out, nil
}

func newTestHandler(cfg config.Config, turns *turnFake) http.Handler {
	return NewRouter(cfg, turns, scanFake{}, sessionFake{}).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestChatMapsDomainInvalidInputTo400(t *testing.T) {
	turns := &turnFake{err: domain.WrapError(domain.ErrInvalidInput, "ask", errors.New("bad question"))}
	res := postJSON(t, newTestHandler(config.Config{}, turns), "/v1/chat", map[string]any{
		"session_id": "X",
		"question":   "?",
	})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestChatHidesInternalErrorDetails(t *testing.T) {
	turns := &turnFake{err: errors.New("pq: secret connection string leaked")}
	res := postJSON(t, newTestHandler(config.Config{}, turns), "/v1/chat", map[string]any{
		"session_id": "X",
		"question":   "Phở bò bao nhiêu calo?",
	})
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if bytes.Contains(res.Body.Bytes(), []byte("secret")) {
		t.Fatalf("internal error leaked: %s", res.Body.String())
	}
}

func TestScanMapsTemporaryTo503(t *testing.T) {
	handler := NewRouter(config.Config{}, &turnFake{},
		scanFake{err: domain.WrapError(domain.ErrTemporary, "ingest scan", errors.New("redis down"))},
		sessionFake{},
	).Handler()

	res := postJSON(t, handler, "/v1/scan", map[string]any{
		"session_id":       "X",
		"detected_classes": []string{"Suon"},
	})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestChatRejectsMissingFields(t *testing.T) {
	handler := newTestHandler(config.Config{}, &turnFake{})
	cases := []map[string]any{
		{"question": "hi"},
		{"session_id": "X", "question": "   "},
	}
	for _, payload := range cases {
		if res := postJSON(t, handler, "/v1/chat", payload); res.Code != http.StatusBadRequest {
			t.Fatalf("payload %v: expected 400, got %d", payload, res.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewReader([]byte("{not json")))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("malformed json: expected 400, got %d", res.Code)
	}
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrUnauthorized, "op", errors.New("x")), http.StatusUnauthorized},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), http.StatusServiceUnavailable},
		{domain.WrapError(domain.ErrUpstream, "op", errors.New("x")), http.StatusBadGateway},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("mapErrorToHTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
