package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/infrastructure/resilience"
)

// Client is a language model backed by any OpenAI-compatible chat
// completions endpoint (Groq, vLLM, OpenAI).
type Client struct {
	api      openai.Client
	model    string
	executor *resilience.Executor
}

func New(baseURL, apiKey, model string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig(), nil)
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: 120 * time.Second}),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(baseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	return &Client{
		api:      openai.NewClient(opts...),
		model:    model,
		executor: executor,
	}
}

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Chat(ctx, []domain.ChatMessage{{Role: domain.RoleUser, Content: prompt}})
}

func (c *Client) Chat(ctx context.Context, messages []domain.ChatMessage) (string, error) {
	if len(messages) == 0 {
		return "", domain.WrapError(domain.ErrInvalidInput, "openai chat", fmt.Errorf("no messages"))
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: toParams(messages),
	}

	resp, err := resilience.Call(ctx, c.executor, "openai.chat", func(attemptCtx context.Context) (*openai.ChatCompletion, error) {
		return c.api.Chat.Completions.New(attemptCtx, params)
	}, classifyError)
	if err != nil {
		return "", resilience.WrapTemporary("openai chat", err, classifyError)
	}
	if len(resp.Choices) == 0 {
		return "", domain.WrapError(domain.ErrUpstream, "openai chat", fmt.Errorf("no choices in response"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func toParams(messages []domain.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// classifyError maps SDK API errors onto the shared HTTP classification.
func classifyError(err error) resilience.ErrorClassification {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return resilience.ClassifyHTTPError(&resilience.HTTPStatusError{
			Service:    "openai",
			Operation:  "chat",
			StatusCode: apiErr.StatusCode,
		})
	}
	return resilience.ClassifyHTTPError(err)
}
