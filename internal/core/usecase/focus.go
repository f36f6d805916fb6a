package usecase

import (
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

// ApplyScan records a fresh scan and moves the session into SCAN focus,
// replacing any earlier scan record.
func ApplyScan(state *domain.SessionState, items []string, now time.Time) {
	copied := make([]string, len(items))
	copy(copied, items)
	state.Focus = domain.FocusScan
	state.Scan = &domain.ScanRecord{Items: copied, ObservedAt: now}
}

// ApplyIntent performs the focus transition triggered by a classified
// question. Only NEW_TOPIC changes focus.
func ApplyIntent(state *domain.SessionState, intent domain.Intent) {
	if intent == domain.IntentNewTopic {
		state.Focus = domain.FocusCorpus
	}
}

// RoutePath selects the answer path from the current state and intent.
// It must be called after ApplyIntent.
func RoutePath(state domain.SessionState, intent domain.Intent, now time.Time, scanTTL time.Duration) domain.Path {
	switch intent {
	case domain.IntentNewTopic:
		return domain.PathCorpus
	case domain.IntentFollowUp:
		if state.EffectiveFocus() == domain.FocusCorpus {
			return domain.PathCorpus
		}
		if state.Scan.Fresh(now, scanTTL) {
			return domain.PathScan
		}
	}
	return domain.PathChitChat
}
