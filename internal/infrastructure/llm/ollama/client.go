package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/resilience"
)

// Client talks to the Ollama HTTP API. It serves both the language model
// (generate and chat) and the embedding model.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig(), nil)
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "ollama chat", fmt.Errorf("no messages"))
	}
	wire := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	reqBody := map[string]any{
		"model":    c.genModel,
		"messages": wire,
		"stream":   false,
	}
	var response struct {
		Message chatMessage `json:"message"`
	}
	if err := c.postJSON(ctx, "/api/chat", reqBody, &response, "chat"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Message.Content), nil
}

// Embed returns the embedding of a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": c.embedModel,
		"input": []string{text},
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := c.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama embed: empty embedding result")
	}
	return response.Embeddings[0], nil
}
