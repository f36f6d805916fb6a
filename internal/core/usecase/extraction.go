package usecase

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	thinkBlockPattern    = regexp.MustCompile(`(?is)<think>.*?</think>`)
	danglingThinkPattern = regexp.MustCompile(`(?is)<think>.*$`)

	errNoJSONArray = errors.New("no json array in model output")
)

// StripReasoning removes <think> blocks, including an unterminated trailing
// one, and trims the remaining text.
func StripReasoning(raw string) string {
	out := thinkBlockPattern.ReplaceAllString(raw, "")
	out = danglingThinkPattern.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}

func extractJSONArray(raw string) (string, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return "", errNoJSONArray
	}
	return raw[start : end+1], nil
}

// parseStringList accepts ["a","b"] and [{"query":"a"}] shaped arrays.
func parseStringList(raw string) ([]string, error) {
	payload, err := extractJSONArray(StripReasoning(raw))
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &items); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Query string `json:"query"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Query != "" {
			out = append(out, obj.Query)
		}
	}
	return out, nil
}
