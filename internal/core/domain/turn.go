package domain

import "time"

type Intent string

const (
	IntentFollowUp Intent = "FOLLOWUP"
	IntentNewTopic Intent = "NEW_TOPIC"
	IntentChitChat Intent = "CHITCHAT"
)

// Path is the answer path selected for a turn.
type Path string

const (
	PathScan     Path = "scan"
	PathCorpus   Path = "corpus"
	PathChitChat Path = "chitchat"
)

type Outcome string

const (
	OutcomeAnswered     Outcome = "answered"
	OutcomeNoEvidence   Outcome = "no_evidence"
	OutcomeAccessDenied Outcome = "access_denied"
	OutcomeSystemError  Outcome = "system_error"
)

// TurnRequest is one user question. Department is the caller's access
// attribute value; empty disables access filtering.
type TurnRequest struct {
	SessionID  string
	Question   string
	Department string
}

type Evidence struct {
	PassageID string  `json:"passage_id"`
	Name      string  `json:"name"`
	ImageLink string  `json:"image_link,omitempty"`
	Score     float64 `json:"score"`
}

type TurnResult struct {
	TurnID   string     `json:"turn_id"`
	Answer   string     `json:"answer"`
	Intent   Intent     `json:"intent"`
	Path     Path       `json:"path"`
	Outcome  Outcome    `json:"outcome"`
	Evidence []Evidence `json:"evidence,omitempty"`
	Scanned  []string   `json:"scanned_items,omitempty"`
}

// ScanResult reports the names that survived vocabulary translation.
type ScanResult struct {
	SessionID string   `json:"session_id"`
	Items     []string `json:"items"`
	Applied   bool     `json:"applied"`
}

// SessionView is a read-only snapshot exposed to API callers.
type SessionView struct {
	SessionID    string   `json:"session_id"`
	Focus        Focus    `json:"focus"`
	ScannedItems []string `json:"scanned_items"`
	HistoryLen   int      `json:"history_len"`
}

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// TurnRecord is what the journal persists for a finalized turn.
type TurnRecord struct {
	TurnID        string    `json:"turn_id"`
	SessionID     string    `json:"session_id"`
	Question      string    `json:"question"`
	Answer        string    `json:"answer"`
	Intent        Intent    `json:"intent"`
	Path          Path      `json:"path"`
	Outcome       Outcome   `json:"outcome"`
	EvidenceCount int       `json:"evidence_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// TurnSettings bounds the work done per turn.
type TurnSettings struct {
	ExpansionCount  int
	RRFK            int
	FusionTopK      int
	AccessAttribute string
	ScanTTL         time.Duration
	HistoryWindow   int
}
