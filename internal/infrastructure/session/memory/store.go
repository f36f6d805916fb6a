package memory

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

type entry struct {
	mu    sync.Mutex
	state domain.SessionState
	// refs counts in-flight updates; guarded by Store.activeMu.
	refs int
}

// Store keeps session state in process. Each session has its own mutex, so
// turns for different sessions never wait on each other. Entries with an
// update in flight are pinned in active, so idle eviction cannot split a
// session into two independently locked entries.
type Store struct {
	cache      *cache.Cache
	historyCap int

	activeMu sync.Mutex
	active   map[string]*entry
}

// NewStore creates a store. idleTTL <= 0 keeps sessions until restart.
func NewStore(historyCap int, idleTTL time.Duration) *Store {
	if historyCap <= 0 {
		historyCap = domain.DefaultHistoryCapacity
	}
	expiration := cache.NoExpiration
	cleanup := time.Duration(0)
	if idleTTL > 0 {
		expiration = idleTTL
		cleanup = idleTTL / 2
	}
	return &Store{
		cache:      cache.New(expiration, cleanup),
		historyCap: historyCap,
		active:     make(map[string]*entry),
	}
}

func (s *Store) Load(ctx context.Context, sessionID string) (domain.SessionState, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionState{}, err
	}
	s.activeMu.Lock()
	e, found := s.active[sessionID]
	if !found {
		var x any
		if x, found = s.cache.Get(sessionID); found {
			e = x.(*entry)
		}
	}
	s.activeMu.Unlock()
	if !found {
		return domain.NewSessionState(s.historyCap), nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone(), nil
}

// Update applies fn to a working copy and commits it only when fn returns nil.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(*domain.SessionState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e := s.acquire(sessionID)
	defer s.release(sessionID, e)
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.state.Clone()
	if err := fn(&working); err != nil {
		return err
	}
	e.state = working
	// Refresh idle expiration, re-adding the entry if it was evicted.
	s.cache.SetDefault(sessionID, e)
	return nil
}

func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// acquire returns the session entry and pins it until release.
func (s *Store) acquire(sessionID string) *entry {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	e, found := s.active[sessionID]
	if !found {
		if x, ok := s.cache.Get(sessionID); ok {
			e = x.(*entry)
		} else {
			e = &entry{state: domain.NewSessionState(s.historyCap)}
			s.cache.SetDefault(sessionID, e)
		}
		s.active[sessionID] = e
	}
	e.refs++
	return e
}

func (s *Store) release(sessionID string, e *entry) {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(s.active, sessionID)
	}
}
