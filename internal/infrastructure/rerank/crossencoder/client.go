package crossencoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/resilience"
)

type rerankRequest struct {
	Query      string   `json:"query"`
	Candidates []string `json:"candidates"`
	Model      string   `json:"model,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
	Model string `json:"model"`
}

// Client calls a cross-encoder rerank service (bge-reranker style) that
// scores every (query, candidate) pair in one request.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, model string, timeout time.Duration, executor *resilience.Executor) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig(), nil)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: timeout},
		executor:   executor,
	}
}

// Score returns one raw relevance score per text, in input order.
func (c *Client) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}
	body, err := json.Marshal(rerankRequest{Query: query, Candidates: texts, Model: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	resp, err := resilience.Call(ctx, c.executor, "crossencoder.rerank", func(attemptCtx context.Context) (rerankResponse, error) {
		return c.post(attemptCtx, body)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("crossencoder rerank", err, resilience.ClassifyHTTPError)
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("invalid result index %d for %d candidates", r.Index, len(texts))
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank response is missing candidate %d", i)
		}
	}
	return scores, nil
}

func (c *Client) post(ctx context.Context, body []byte) (rerankResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/rerank", bytes.NewReader(body))
	if err != nil {
		return rerankResponse{}, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rerankResponse{}, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return rerankResponse{}, resilience.ReadHTTPError("crossencoder", "rerank", resp)
	}
	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return rerankResponse{}, fmt.Errorf("decode rerank response: %w", err)
	}
	return out, nil
}
