package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

// ChatReply mirrors the POST /v1/chat response body.
type ChatReply struct {
	domain.TurnResult
	Sources    []string `json:"sources"`
	ImageLinks []string `json:"image_links"`
}

// APIClient talks to the assistant HTTP API.
type APIClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewAPIClient(baseURL, token string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *APIClient) Ask(ctx context.Context, sessionID, question, department string) (ChatReply, error) {
	payload := map[string]any{"session_id": sessionID, "question": question}
	if department != "" {
		payload["department_id"] = department
	}
	var out ChatReply
	err := c.do(ctx, http.MethodPost, "/v1/chat", payload, &out)
	return out, err
}

func (c *APIClient) Scan(ctx context.Context, sessionID string, labels []string) (domain.ScanResult, error) {
	var out domain.ScanResult
	err := c.do(ctx, http.MethodPost, "/v1/scan", map[string]any{
		"session_id":       sessionID,
		"detected_classes": labels,
	}, &out)
	return out, err
}

func (c *APIClient) Session(ctx context.Context, sessionID string) (domain.SessionView, error) {
	var out domain.SessionView
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID), nil, &out)
	return out, err
}

func (c *APIClient) Turns(ctx context.Context, sessionID string, limit int) ([]domain.TurnRecord, error) {
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/turns"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Turns []domain.TurnRecord `json:"turns"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Turns, err
}

func (c *APIClient) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
