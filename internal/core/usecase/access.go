package usecase

import "github.com/kirillkom/nutrition-assistant/internal/core/domain"

// AccessDecision is the result of partitioning candidates by the caller's
// access attribute.
type AccessDecision struct {
	Outcome   domain.Outcome
	Matched   []domain.FusedResult
	Unmatched int
}

// FilterByAccess keeps candidates whose attribute equals value. An empty value
// disables filtering. With no candidates the outcome is no_evidence; with
// candidates but no match it is access_denied.
func FilterByAccess(candidates []domain.FusedResult, attribute, value string) AccessDecision {
	if len(candidates) == 0 {
		return AccessDecision{Outcome: domain.OutcomeNoEvidence}
	}
	if value == "" || attribute == "" {
		return AccessDecision{Outcome: domain.OutcomeAnswered, Matched: candidates}
	}

	matched := make([]domain.FusedResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Passage.Attribute(attribute) == value {
			matched = append(matched, c)
		}
	}
	decision := AccessDecision{Matched: matched, Unmatched: len(candidates) - len(matched)}
	if len(matched) == 0 {
		decision.Outcome = domain.OutcomeAccessDenied
		return decision
	}
	decision.Outcome = domain.OutcomeAnswered
	return decision
}
