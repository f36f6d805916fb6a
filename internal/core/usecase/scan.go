package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
	"github.com/kirillkom/nutrition-assistant/internal/core/ports"
)

// ScanUseCase applies detector output to a session and serves the session
// read model.
type ScanUseCase struct {
	vocabulary ports.LabelVocabulary
	sessions   ports.SessionStore
	observer   ports.TurnObserver
	scanTTL    time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

func NewScanUseCase(
	vocabulary ports.LabelVocabulary,
	sessions ports.SessionStore,
	observer ports.TurnObserver,
	scanTTL time.Duration,
	logger *slog.Logger,
) *ScanUseCase {
	if scanTTL <= 0 {
		scanTTL = defaultScanTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ScanUseCase{
		vocabulary: vocabulary,
		sessions:   sessions,
		observer:   observer,
		scanTTL:    scanTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Ingest translates detector labels and, when at least one resolves, moves
// the session into SCAN focus with the translated names.
func (uc *ScanUseCase) Ingest(ctx context.Context, sessionID string, labels []string) (domain.ScanResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.ScanResult{}, domain.WrapError(domain.ErrInvalidInput, "ingest scan", errEmptySessionID)
	}

	items := uc.translate(labels)
	result := domain.ScanResult{SessionID: sessionID, Items: items}
	if len(items) > 0 {
		err := uc.sessions.Update(ctx, sessionID, func(state *domain.SessionState) error {
			ApplyScan(state, items, uc.now())
			return nil
		})
		if err != nil {
			return domain.ScanResult{}, domain.WrapError(domain.ErrTemporary, "ingest scan", err)
		}
		result.Applied = true
	}

	if uc.observer != nil {
		uc.observer.ObserveScan(result.Applied, len(items))
	}
	uc.logger.Info("scan_ingested",
		"session_id", sessionID,
		"labels", len(labels),
		"items", items,
		"applied", result.Applied,
	)
	return result, nil
}

func (uc *ScanUseCase) translate(labels []string) []string {
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		name, ok := uc.vocabulary.Translate(strings.TrimSpace(label))
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Session returns the visible session state. Expired scan items are
// reported as absent.
func (uc *ScanUseCase) Session(ctx context.Context, sessionID string) (domain.SessionView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.SessionView{}, domain.WrapError(domain.ErrInvalidInput, "load session", errEmptySessionID)
	}
	state, err := uc.sessions.Load(ctx, sessionID)
	if err != nil {
		return domain.SessionView{}, err
	}
	items := state.ScannedItems(uc.now(), uc.scanTTL)
	if items == nil {
		items = []string{}
	}
	return domain.SessionView{
		SessionID:    sessionID,
		Focus:        state.EffectiveFocus(),
		ScannedItems: items,
		HistoryLen:   state.History.Len(),
	}, nil
}
