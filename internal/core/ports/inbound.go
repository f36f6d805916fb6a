package ports

import (
	"context"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

// TurnService is the inbound contract for answering one conversational turn.
type TurnService interface {
	Ask(ctx context.Context, req domain.TurnRequest) (domain.TurnResult, error)
}

// ScanIngestor accepts detector labels for a session.
type ScanIngestor interface {
	Ingest(ctx context.Context, sessionID string, labels []string) (domain.ScanResult, error)
}

// SessionInspector exposes the read model of a session.
type SessionInspector interface {
	Session(ctx context.Context, sessionID string) (domain.SessionView, error)
}
