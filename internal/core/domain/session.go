package domain

import (
	"encoding/json"
	"time"
)

type Focus string

const (
	FocusUnset  Focus = ""
	FocusScan   Focus = "SCAN"
	FocusCorpus Focus = "CORPUS"
)

const DefaultHistoryCapacity = 10

// ScanRecord is the last set of item names reported for a session.
type ScanRecord struct {
	Items      []string  `json:"items"`
	ObservedAt time.Time `json:"observed_at"`
}

// Fresh reports whether the record is still readable at now.
func (r *ScanRecord) Fresh(now time.Time, ttl time.Duration) bool {
	if r == nil || len(r.Items) == 0 {
		return false
	}
	return now.Sub(r.ObservedAt) < ttl
}

// Turn is one finalized question/answer exchange.
type Turn struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	Intent   Intent    `json:"intent"`
	Path     Path      `json:"path"`
	At       time.Time `json:"at"`
}

// History is a fixed-capacity ring buffer of turns. Appending to a full
// buffer overwrites the oldest entry.
type History struct {
	buf  []Turn
	head int
	size int
}

func NewHistory(capacity int) History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return History{buf: make([]Turn, capacity)}
}

func (h *History) Capacity() int {
	return len(h.buf)
}

func (h *History) Len() int {
	return h.size
}

func (h *History) Append(t Turn) {
	if len(h.buf) == 0 {
		*h = NewHistory(DefaultHistoryCapacity)
	}
	idx := (h.head + h.size) % len(h.buf)
	h.buf[idx] = t
	if h.size < len(h.buf) {
		h.size++
		return
	}
	h.head = (h.head + 1) % len(h.buf)
}

// Turns returns the stored turns oldest first.
func (h *History) Turns() []Turn {
	out := make([]Turn, 0, h.size)
	for i := 0; i < h.size; i++ {
		out = append(out, h.buf[(h.head+i)%len(h.buf)])
	}
	return out
}

// Last returns up to n most recent turns, oldest first.
func (h *History) Last(n int) []Turn {
	all := h.Turns()
	if n <= 0 || n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

func (h History) clone() History {
	out := History{buf: make([]Turn, len(h.buf)), head: h.head, size: h.size}
	copy(out.buf, h.buf)
	return out
}

type historyJSON struct {
	Capacity int    `json:"capacity"`
	Turns    []Turn `json:"turns"`
}

func (h History) MarshalJSON() ([]byte, error) {
	return json.Marshal(historyJSON{Capacity: h.Capacity(), Turns: h.Turns()})
}

func (h *History) UnmarshalJSON(data []byte) error {
	var raw historyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = NewHistory(raw.Capacity)
	for _, t := range raw.Turns {
		h.Append(t)
	}
	return nil
}

// SessionState is the per-session record mutated by turns and scan events.
type SessionState struct {
	Focus   Focus       `json:"focus"`
	Scan    *ScanRecord `json:"scan,omitempty"`
	History History     `json:"history"`
}

func NewSessionState(historyCapacity int) SessionState {
	return SessionState{History: NewHistory(historyCapacity)}
}

// EffectiveFocus resolves the unset focus to CORPUS.
func (s SessionState) EffectiveFocus() Focus {
	if s.Focus == FocusScan {
		return FocusScan
	}
	return FocusCorpus
}

// ScannedItems returns the scanned names while the record is fresh and nil
// afterwards. The record itself is left in place.
func (s SessionState) ScannedItems(now time.Time, ttl time.Duration) []string {
	if !s.Scan.Fresh(now, ttl) {
		return nil
	}
	out := make([]string, len(s.Scan.Items))
	copy(out, s.Scan.Items)
	return out
}

// Clone returns a deep copy safe to mutate independently.
func (s SessionState) Clone() SessionState {
	out := SessionState{Focus: s.Focus, History: s.History.clone()}
	if s.Scan != nil {
		items := make([]string, len(s.Scan.Items))
		copy(items, s.Scan.Items)
		out.Scan = &ScanRecord{Items: items, ObservedAt: s.Scan.ObservedAt}
	}
	return out
}
