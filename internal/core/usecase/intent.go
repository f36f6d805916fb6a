package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

// FallbackIntent is used when the model reply carries no label or the call
// fails. NEW_TOPIC always runs corpus retrieval.
const FallbackIntent = domain.IntentNewTopic

var intentKeywords = []struct {
	keyword string
	intent  domain.Intent
}{
	{"CHITCHAT", domain.IntentChitChat},
	{"CHIT_CHAT", domain.IntentChitChat},
	{"CHIT-CHAT", domain.IntentChitChat},
	{"FOLLOWUP", domain.IntentFollowUp},
	{"FOLLOW_UP", domain.IntentFollowUp},
	{"FOLLOW-UP", domain.IntentFollowUp},
	{"NEW_TOPIC", domain.IntentNewTopic},
	{"NEWTOPIC", domain.IntentNewTopic},
	{"NEW-TOPIC", domain.IntentNewTopic},
	{"NUTRITION", domain.IntentNewTopic},
}

type IntentClassifier struct {
	llm    ports.LanguageModel
	logger *slog.Logger
}

func NewIntentClassifier(llm ports.LanguageModel, logger *slog.Logger) *IntentClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntentClassifier{llm: llm, logger: logger}
}

// Classify asks the model for a label and never fails: errors and
// unrecognized replies yield FallbackIntent.
func (c *IntentClassifier) Classify(ctx context.Context, question string, history []domain.Turn) domain.Intent {
	raw, err := c.llm.Complete(ctx, buildIntentPrompt(question, history))
	if err != nil {
		c.logger.Warn("intent_fallback", "reason", "llm_error", "error", err.Error())
		return FallbackIntent
	}
	intent, ok := ParseIntent(raw)
	if !ok {
		c.logger.Warn("intent_fallback", "reason", "no_label", "reply", truncateForLog(raw, 200))
		return FallbackIntent
	}
	return intent
}

// ParseIntent strips reasoning markup and reads the label from the last line
// that names one, matching case-insensitively. CHITCHAT wins only when that
// line names no other label; otherwise the earliest retrieval label is used.
func ParseIntent(raw string) (domain.Intent, bool) {
	lines := strings.Split(strings.ToUpper(StripReasoning(raw)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if intent, ok := parseIntentLine(lines[i]); ok {
			return intent, true
		}
	}
	return "", false
}

func parseIntentLine(line string) (domain.Intent, bool) {
	best := -1
	var found domain.Intent
	chitChat := false
	for _, kw := range intentKeywords {
		idx := strings.Index(line, kw.keyword)
		if idx < 0 {
			continue
		}
		if kw.intent == domain.IntentChitChat {
			chitChat = true
			continue
		}
		if best < 0 || idx < best {
			best = idx
			found = kw.intent
		}
	}
	if best >= 0 {
		return found, true
	}
	if chitChat {
		return domain.IntentChitChat, true
	}
	return "", false
}

func truncateForLog(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
