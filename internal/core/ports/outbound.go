package ports

import (
	"context"
	"time"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

// VectorIndex is the external similarity index holding the corpus.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, topK int) ([]domain.ScoredCandidate, error)
	GetAll(ctx context.Context, limit int) ([]domain.Passage, error)
}

// Embedder builds query vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// LanguageModel is the generation collaborator. Replies may contain
// reasoning markup that callers strip.
type LanguageModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// CrossEncoder scores (query, text) pairs in one batch. The result has one
// score per text in input order.
type CrossEncoder interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Retriever is the single retrieval capability shared by dense and lexical
// implementations.
type Retriever interface {
	Name() string
	Retrieve(ctx context.Context, query domain.Query) (domain.RankedList, error)
}

// LabelVocabulary maps detector labels to display names.
type LabelVocabulary interface {
	Translate(label string) (string, bool)
}

// SessionStore owns per-session state. Update runs fn under a lock scoped to
// sessionID and persists the state only when fn returns nil; the error from fn
// is returned unchanged. Missing sessions are created lazily.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (domain.SessionState, error)
	Update(ctx context.Context, sessionID string, fn func(*domain.SessionState) error) error
}

// TurnJournal persists finalized turns.
type TurnJournal interface {
	Record(ctx context.Context, record domain.TurnRecord) error
}

// TurnHistoryReader lists journaled turns, newest first.
type TurnHistoryReader interface {
	ListBySession(ctx context.Context, sessionID string, limit int) ([]domain.TurnRecord, error)
}

// ScanEventPublisher publishes scan detections for asynchronous ingestion.
type ScanEventPublisher interface {
	PublishScan(ctx context.Context, sessionID string, labels []string) error
}

// ScanEventSubscriber consumes scan detections.
type ScanEventSubscriber interface {
	SubscribeScans(ctx context.Context, handler func(ctx context.Context, sessionID string, labels []string) error) error
}

// TurnObserver receives per-turn measurements.
type TurnObserver interface {
	ObserveTurn(path domain.Path, outcome domain.Outcome, evidence int, duration time.Duration)
	ObserveScan(applied bool, items int)
}
