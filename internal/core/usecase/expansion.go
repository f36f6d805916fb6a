package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

type QueryExpander struct {
	llm    ports.LanguageModel
	logger *slog.Logger
}

func NewQueryExpander(llm ports.LanguageModel, logger *slog.Logger) *QueryExpander {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryExpander{llm: llm, logger: logger}
}

// Expand returns the original question followed by up to n distinct
// rephrasings. Any failure collapses to the original question alone.
func (e *QueryExpander) Expand(ctx context.Context, question string, n int) []string {
	out := []string{question}
	if n <= 0 || e.llm == nil {
		return out
	}

	raw, err := e.llm.Complete(ctx, buildExpansionPrompt(question, n))
	if err != nil {
		e.logger.Warn("expansion_fallback", "reason", "llm_error", "error", err.Error())
		return out
	}
	variants, err := parseStringList(raw)
	if err != nil {
		e.logger.Warn("expansion_fallback", "reason", "parse_error", "error", err.Error())
		return out
	}

	seen := map[string]struct{}{normalizeQueryKey(question): {}}
	for _, v := range variants {
		v = strings.TrimSpace(v)
		key := normalizeQueryKey(v)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
		if len(out) == n+1 {
			break
		}
	}
	if len(out) == 1 {
		e.logger.Warn("expansion_fallback", "reason", "no_variants")
	}
	return out
}

func normalizeQueryKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
