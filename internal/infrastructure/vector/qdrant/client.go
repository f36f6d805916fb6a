package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/resilience"
)

const (
	payloadText      = "text"
	payloadPassageID = "passage_id"
	scrollPageSize   = 256
)

// Client reads the passage collection from Qdrant over its REST API.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig(), nil)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type point struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func (c *Client) Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredCandidate, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []point `json:"result"`
	}
	if err := c.postJSON(ctx, "/points/search", reqBody, &resp, "search"); err != nil {
		return nil, err
	}

	out := make([]domain.ScoredCandidate, 0, len(resp.Result))
	for _, p := range resp.Result {
		out = append(out, domain.ScoredCandidate{Passage: toPassage(p), Score: p.Score})
	}
	return out, nil
}

// GetAll scrolls the collection in pages. A non-positive limit reads every
// point.
func (c *Client) GetAll(ctx context.Context, limit int) ([]domain.Passage, error) {
	out := make([]domain.Passage, 0)
	var offset json.RawMessage
	for {
		pageSize := scrollPageSize
		if limit > 0 {
			pageSize = min(pageSize, limit-len(out))
		}
		reqBody := map[string]any{
			"limit":        pageSize,
			"with_payload": true,
			"with_vector":  false,
		}
		if len(offset) > 0 {
			reqBody["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points         []point         `json:"points"`
				NextPageOffset json.RawMessage `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := c.postJSON(ctx, "/points/scroll", reqBody, &resp, "scroll"); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			out = append(out, toPassage(p))
		}

		offset = resp.Result.NextPageOffset
		if isNullOffset(offset) || len(resp.Result.Points) == 0 || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
	}
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	url := fmt.Sprintf("%s/collections/%s%s", c.baseURL, c.collection, path)

	err = c.executor.Execute(ctx, "qdrant."+operation, func(attemptCtx context.Context) error {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return resilience.ReadHTTPError("qdrant", operation, resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("qdrant "+operation, err, resilience.ClassifyHTTPError)
}

// toPassage maps a point payload onto a passage. "text" becomes the passage
// text and every other payload field becomes a string attribute.
func toPassage(p point) domain.Passage {
	passage := domain.Passage{
		ID:         getStringPayload(p.Payload, payloadPassageID),
		Text:       getStringPayload(p.Payload, payloadText),
		Attributes: make(map[string]string, len(p.Payload)),
	}
	if passage.ID == "" {
		passage.ID = pointID(p.ID)
	}
	for key := range p.Payload {
		if key == payloadText {
			continue
		}
		passage.Attributes[key] = getStringPayload(p.Payload, key)
	}
	return passage
}

func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return strings.TrimSpace(string(raw))
}

func isNullOffset(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	switch typed := v.(type) {
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	default:
		raw, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(raw)
	}
}
