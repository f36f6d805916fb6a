package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

const (
	defaultExpansionCount = 3
	defaultFusionTopK     = 20
	defaultScanTTL        = 600 * time.Second
	defaultHistoryWindow  = 4
)

// TurnUseCase routes one question through intent classification, the focus
// machine and the selected answer path.
type TurnUseCase struct {
	classifier *IntentClassifier
	expander   *QueryExpander
	pool       *RetrieverPool
	reranker   *Reranker
	llm        ports.LanguageModel
	sessions   ports.SessionStore
	journal    ports.TurnJournal
	observer   ports.TurnObserver
	settings   domain.TurnSettings
	logger     *slog.Logger
	now        func() time.Time
}

func NewTurnUseCase(
	classifier *IntentClassifier,
	expander *QueryExpander,
	pool *RetrieverPool,
	reranker *Reranker,
	llm ports.LanguageModel,
	sessions ports.SessionStore,
	journal ports.TurnJournal,
	observer ports.TurnObserver,
	settings domain.TurnSettings,
	logger *slog.Logger,
) *TurnUseCase {
	if settings.ExpansionCount < 0 {
		settings.ExpansionCount = defaultExpansionCount
	}
	if settings.RRFK <= 0 {
		settings.RRFK = defaultRRFK
	}
	if settings.FusionTopK <= 0 {
		settings.FusionTopK = defaultFusionTopK
	}
	if settings.ScanTTL <= 0 {
		settings.ScanTTL = defaultScanTTL
	}
	if settings.HistoryWindow <= 0 {
		settings.HistoryWindow = defaultHistoryWindow
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TurnUseCase{
		classifier: classifier,
		expander:   expander,
		pool:       pool,
		reranker:   reranker,
		llm:        llm,
		sessions:   sessions,
		journal:    journal,
		observer:   observer,
		settings:   settings,
		logger:     logger,
		now:        time.Now,
	}
}

// Ask answers one turn. Only invalid input is returned as an error; every
// collaborator failure ends in a degraded answer or a system_error result.
// Session state is committed once, after the outcome is final, and never for
// chit-chat or system errors.
func (uc *TurnUseCase) Ask(ctx context.Context, req domain.TurnRequest) (domain.TurnResult, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	question := strings.TrimSpace(req.Question)
	if sessionID == "" {
		return domain.TurnResult{}, domain.WrapError(domain.ErrInvalidInput, "ask", errEmptySessionID)
	}
	if question == "" {
		return domain.TurnResult{}, domain.WrapError(domain.ErrInvalidInput, "ask", errEmptyQuestion)
	}
	req.SessionID = sessionID
	req.Question = question

	started := uc.now()
	result := domain.TurnResult{TurnID: uuid.NewString()}

	err := uc.sessions.Update(ctx, sessionID, func(state *domain.SessionState) error {
		var commit bool
		result, commit = uc.runTurn(ctx, req, state, result.TurnID)
		if !commit {
			return errSkipCommit
		}
		state.History.Append(domain.Turn{
			Question: question,
			Answer:   result.Answer,
			Intent:   result.Intent,
			Path:     result.Path,
			At:       uc.now(),
		})
		return nil
	})
	committed := err == nil
	if err != nil && !errors.Is(err, errSkipCommit) {
		uc.logger.Error("session_update_failed", "session_id", sessionID, "error", err.Error())
		result = uc.systemError(result.TurnID, result.Intent, result.Path)
		committed = false
	}

	if committed && uc.journal != nil {
		if err := uc.journal.Record(ctx, domain.TurnRecord{
			TurnID:        result.TurnID,
			SessionID:     sessionID,
			Question:      question,
			Answer:        result.Answer,
			Intent:        result.Intent,
			Path:          result.Path,
			Outcome:       result.Outcome,
			EvidenceCount: len(result.Evidence),
			CreatedAt:     uc.now().UTC(),
		}); err != nil {
			uc.logger.Warn("turn_journal_failed", "turn_id", result.TurnID, "error", err.Error())
		}
	}

	duration := uc.now().Sub(started)
	if uc.observer != nil {
		uc.observer.ObserveTurn(result.Path, result.Outcome, len(result.Evidence), duration)
	}
	uc.logger.Info("turn_completed",
		"turn_id", result.TurnID,
		"session_id", sessionID,
		"intent", result.Intent,
		"path", result.Path,
		"outcome", result.Outcome,
		"evidence", len(result.Evidence),
		"committed", committed,
		"duration_ms", duration.Milliseconds(),
	)
	return result, nil
}

func (uc *TurnUseCase) runTurn(ctx context.Context, req domain.TurnRequest, state *domain.SessionState, turnID string) (domain.TurnResult, bool) {
	intent := uc.classifier.Classify(ctx, req.Question, state.History.Last(uc.settings.HistoryWindow))
	if intent == domain.IntentChitChat {
		return uc.answerChitChat(ctx, req.Question, turnID, intent), false
	}

	ApplyIntent(state, intent)
	now := uc.now()
	path := RoutePath(*state, intent, now, uc.settings.ScanTTL)

	var result domain.TurnResult
	switch path {
	case domain.PathScan:
		items := state.ScannedItems(now, uc.settings.ScanTTL)
		result = uc.answerFromScan(ctx, req.Question, items, state.History.Last(uc.settings.HistoryWindow), turnID, intent)
	case domain.PathCorpus:
		result = uc.answerFromCorpus(ctx, req, turnID, intent)
	default:
		return uc.answerChitChat(ctx, req.Question, turnID, intent), false
	}

	return result, result.Outcome != domain.OutcomeSystemError
}

func (uc *TurnUseCase) answerChitChat(ctx context.Context, question, turnID string, intent domain.Intent) domain.TurnResult {
	result := domain.TurnResult{
		TurnID:  turnID,
		Intent:  intent,
		Path:    domain.PathChitChat,
		Outcome: domain.OutcomeAnswered,
		Answer:  messageChitChat,
	}
	reply, err := uc.llm.Chat(ctx, chitChatMessages(question))
	if err != nil {
		uc.logger.Warn("chitchat_fallback", "error", err.Error())
		return result
	}
	if text := StripReasoning(reply); text != "" {
		result.Answer = text
	}
	return result
}

func (uc *TurnUseCase) answerFromScan(ctx context.Context, question string, items []string, history []domain.Turn, turnID string, intent domain.Intent) domain.TurnResult {
	reply, err := uc.llm.Chat(ctx, scanMessages(question, items, history))
	text := StripReasoning(reply)
	if err != nil || text == "" {
		if err != nil {
			uc.logger.Error("scan_answer_failed", "error", err.Error())
		}
		return uc.systemError(turnID, intent, domain.PathScan)
	}
	return domain.TurnResult{
		TurnID:  turnID,
		Answer:  text,
		Intent:  intent,
		Path:    domain.PathScan,
		Outcome: domain.OutcomeAnswered,
		Scanned: items,
	}
}

func (uc *TurnUseCase) answerFromCorpus(ctx context.Context, req domain.TurnRequest, turnID string, intent domain.Intent) domain.TurnResult {
	result := domain.TurnResult{TurnID: turnID, Intent: intent, Path: domain.PathCorpus}

	variants := uc.expander.Expand(ctx, req.Question, uc.settings.ExpansionCount)
	queries := make([]domain.Query, len(variants))
	for i, v := range variants {
		queries[i] = domain.Query{Text: v}
	}

	pooled, err := uc.pool.Run(ctx, queries)
	if err != nil || pooled.AllFailed() {
		if err != nil {
			uc.logger.Error("retrieval_failed", "error", err.Error())
		} else {
			uc.logger.Error("retrieval_failed", "reason", "all_retrievers_failed", "calls", pooled.Calls)
		}
		return uc.systemError(turnID, intent, domain.PathCorpus)
	}

	fused := FuseRankedLists(pooled.Lists, uc.settings.RRFK, uc.settings.FusionTopK)
	decision := FilterByAccess(fused, uc.settings.AccessAttribute, req.Department)
	switch decision.Outcome {
	case domain.OutcomeNoEvidence:
		result.Outcome = domain.OutcomeNoEvidence
		result.Answer = messageNoEvidence
		return result
	case domain.OutcomeAccessDenied:
		result.Outcome = domain.OutcomeAccessDenied
		result.Answer = messageAccessDenied
		return result
	}

	reranked := uc.reranker.Rerank(ctx, req.Question, decision.Matched)
	if len(reranked) == 0 {
		result.Outcome = domain.OutcomeNoEvidence
		result.Answer = messageNoEvidence
		return result
	}

	reply, err := uc.llm.Chat(ctx, corpusMessages(req.Question, reranked))
	text := StripReasoning(reply)
	if err != nil || text == "" {
		if err != nil {
			uc.logger.Error("corpus_answer_failed", "error", err.Error())
		}
		return uc.systemError(turnID, intent, domain.PathCorpus)
	}

	result.Outcome = domain.OutcomeAnswered
	result.Answer = text
	result.Evidence = make([]domain.Evidence, 0, len(reranked))
	for _, r := range reranked {
		result.Evidence = append(result.Evidence, domain.Evidence{
			PassageID: r.Passage.ID,
			Name:      r.Passage.DisplayName(),
			ImageLink: r.Passage.Attribute(domain.AttrImageLink),
			Score:     r.Score,
		})
	}
	return result
}

func (uc *TurnUseCase) systemError(turnID string, intent domain.Intent, path domain.Path) domain.TurnResult {
	return domain.TurnResult{
		TurnID:  turnID,
		Answer:  messageSystemError,
		Intent:  intent,
		Path:    path,
		Outcome: domain.OutcomeSystemError,
	}
}
