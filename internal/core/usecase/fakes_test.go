package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

type fakeLLM struct {
	mu          sync.Mutex
	complete    func(prompt string) (string, error)
	chat        func(messages []domain.ChatMessage) (string, error)
	prompts     []string
	chatHistory [][]domain.ChatMessage
}

func (f *fakeLLM) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.complete == nil {
		return "", errors.New("complete not configured")
	}
	return f.complete(prompt)
}

func (f *fakeLLM) Chat(_ context.Context, messages []domain.ChatMessage) (string, error) {
	f.mu.Lock()
	f.chatHistory = append(f.chatHistory, messages)
	f.mu.Unlock()
	if f.chat == nil {
		return "ok", nil
	}
	return f.chat(messages)
}

type fakeRetriever struct {
	name  string
	calls atomic.Int32
	fn    func(ctx context.Context, q domain.Query) (domain.RankedList, error)
}

func (f *fakeRetriever) Name() string {
	return f.name
}

func (f *fakeRetriever) Retrieve(ctx context.Context, q domain.Query) (domain.RankedList, error) {
	f.calls.Add(1)
	return f.fn(ctx, q)
}

type fakeCrossEncoder struct {
	scores func(query string, texts []string) ([]float64, error)
}

func (f *fakeCrossEncoder) Score(_ context.Context, query string, texts []string) ([]float64, error) {
	return f.scores(query, texts)
}

// memoryStore is a minimal session store with one mutex per session.
type memoryStore struct {
	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	states   map[string]domain.SessionState
	failNext error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{locks: map[string]*sync.Mutex{}, states: map[string]domain.SessionState{}}
}

func (s *memoryStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *memoryStore) Load(_ context.Context, id string) (domain.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[id]
	if !ok {
		return domain.NewSessionState(4), nil
	}
	return st.Clone(), nil
}

func (s *memoryStore) Update(_ context.Context, id string, fn func(*domain.SessionState) error) error {
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	s.mu.Lock()
	st, ok := s.states[id]
	s.mu.Unlock()
	if !ok {
		st = domain.NewSessionState(4)
	}
	working := st.Clone()
	if err := fn(&working); err != nil {
		return err
	}
	s.mu.Lock()
	s.states[id] = working
	s.mu.Unlock()
	return nil
}

type staticVocabulary map[string]string

func (v staticVocabulary) Translate(label string) (string, bool) {
	name, ok := v[label]
	return name, ok
}

type recordingJournal struct {
	mu      sync.Mutex
	records []domain.TurnRecord
}

func (j *recordingJournal) Record(_ context.Context, r domain.TurnRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, r)
	return nil
}

func passage(id, text string, attrs map[string]string) domain.Passage {
	return domain.Passage{ID: id, Text: text, Attributes: attrs}
}

func rankedList(retriever string, ids ...string) domain.RankedList {
	list := domain.RankedList{Retriever: retriever}
	for i, id := range ids {
		list.Candidates = append(list.Candidates, domain.ScoredCandidate{
			Passage: passage(id, "text "+id, nil),
			Score:   float64(len(ids) - i),
		})
	}
	return list
}
