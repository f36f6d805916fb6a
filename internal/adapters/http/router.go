package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/kirillkom/nutrition-assistant/internal/config"
	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

const maxRequestBodyBytes = 64 << 10

// Observer is the metrics surface the router reports to.
type Observer interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
	RecordRejected(reason string)
}

type Router struct {
	cfg      config.Config
	turns    ports.TurnService
	scans    ports.ScanIngestor
	sessions ports.SessionInspector
	history  ports.TurnHistoryReader
	metrics  Observer
	health   func() map[string]string
	logger   *slog.Logger
}

func NewRouter(
	cfg config.Config,
	turns ports.TurnService,
	scans ports.ScanIngestor,
	sessions ports.SessionInspector,
) *Router {
	return &Router{
		cfg:      cfg,
		turns:    turns,
		scans:    scans,
		sessions: sessions,
		logger:   slog.Default(),
	}
}

// WithHistory enables GET /v1/sessions/{id}/turns.
func (rt *Router) WithHistory(history ports.TurnHistoryReader) *Router {
	rt.history = history
	return rt
}

// WithHealth reports upstream circuit breaker states on /healthz.
func (rt *Router) WithHealth(states func() map[string]string) *Router {
	rt.health = states
	return rt
}

func (rt *Router) WithMetrics(m Observer) *Router {
	rt.metrics = m
	return rt
}

func (rt *Router) WithLogger(logger *slog.Logger) *Router {
	if logger != nil {
		rt.logger = logger
	}
	return rt
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/chat", rt.chat)
	api.HandleFunc("POST /v1/scan", rt.scan)
	api.HandleFunc("GET /v1/sessions/{id}", rt.getSession)
	api.HandleFunc("GET /v1/sessions/{id}/turns", rt.listTurns)

	var onReject rejectFunc
	if rt.metrics != nil {
		onReject = rt.metrics.RecordRejected
	}
	var guarded http.Handler = api
	guarded = timeoutMiddleware(guarded, rt.cfg.APIRequestTimeout)
	guarded = backpressureMiddleware(guarded, rt.cfg.APIBackpressureMaxInFlight, rt.cfg.APIBackpressureWait, onReject)
	guarded = rateLimitMiddleware(guarded, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst, onReject)
	guarded = bearerAuthMiddleware(guarded, rt.cfg.APIAuthToken)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/v1/", guarded)

	var handler http.Handler = root
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	return requestIDMiddleware(handler)
}

type healthResponse struct {
	Status    string            `json:"status"`
	Upstreams map[string]string `json:"upstreams,omitempty"`
}

// healthz always answers 200; an open breaker only marks the service degraded.
func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if rt.health != nil {
		resp.Upstreams = rt.health()
		for _, state := range resp.Upstreams {
			if state == "open" {
				resp.Status = "degraded"
				break
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type chatRequest struct {
	SessionID    string      `json:"session_id"`
	Question     string      `json:"question"`
	DepartmentID looseString `json:"department_id"`
}

type chatResponse struct {
	domain.TurnResult
	Sources    []string `json:"sources"`
	ImageLinks []string `json:"image_links"`
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id is required"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "question is required"})
		return
	}

	result, err := rt.turns.Ask(r.Context(), domain.TurnRequest{
		SessionID:  req.SessionID,
		Question:   req.Question,
		Department: string(req.DepartmentID),
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	resp := chatResponse{TurnResult: result, Sources: []string{}, ImageLinks: []string{}}
	for _, ev := range result.Evidence {
		resp.Sources = append(resp.Sources, ev.Name)
		if ev.ImageLink != "" {
			resp.ImageLinks = append(resp.ImageLinks, ev.ImageLink)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type scanRequest struct {
	SessionID       string   `json:"session_id"`
	DetectedClasses []string `json:"detected_classes"`
}

func (rt *Router) scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "session_id is required"})
		return
	}

	result, err := rt.scans.Ingest(r.Context(), req.SessionID, req.DetectedClasses)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if result.Items == nil {
		result.Items = []string{}
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := rt.sessions.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	if view.ScannedItems == nil {
		view.ScannedItems = []string{}
	}
	writeJSON(w, http.StatusOK, view)
}

func (rt *Router) listTurns(w http.ResponseWriter, r *http.Request) {
	if rt.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "turn journal is not configured"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := rt.history.ListBySession(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		rt.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": records})
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	requestID := requestIDFromContext(r.Context())
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed", "request_id", requestID, "path", r.URL.Path, "error", err.Error())
		writeJSON(w, status, errorResponse{Error: http.StatusText(status), RequestID: requestID})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), RequestID: requestID})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// looseString accepts a JSON string or number; null leaves it empty.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("department_id must be a string or number")
	}
	*s = looseString(n.String())
	return nil
}
