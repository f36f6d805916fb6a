package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kirillkom/nutrition-assistant/internal/core/domain"
)

const (
	defaultKeyPrefix = "nutrition:session:"
	defaultLockTTL   = 2 * time.Minute
	defaultLockWait  = 5 * time.Second
	lockPollInterval = 15 * time.Millisecond
)

var (
	errLockTimeout = errors.New("session lock wait timed out")
	errLockLost    = errors.New("session lock expired before commit")
)

// commitScript writes the state only while the caller still owns the lock.
var commitScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
redis.call("SET", KEYS[2], ARGV[2])
if tonumber(ARGV[3]) > 0 then
  redis.call("PEXPIRE", KEYS[2], ARGV[3])
end
return 1
`)

// renewScript extends the lock only for its current owner.
var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type Options struct {
	KeyPrefix  string
	HistoryCap int
	// IdleTTL expires untouched sessions. Zero keeps them.
	IdleTTL time.Duration
	// LockTTL bounds how long a crashed holder blocks the session. The lock
	// is renewed every LockTTL/3 while the update runs.
	LockTTL  time.Duration
	LockWait time.Duration
}

// Store keeps session state in Redis so the API and the scan worker share it.
// Updates are serialized per session with a SET NX lock that is kept alive
// for as long as the update function runs.
type Store struct {
	client *goredis.Client
	opts   Options
}

func New(client *goredis.Client, opts Options) *Store {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultKeyPrefix
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = domain.DefaultHistoryCapacity
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.LockWait <= 0 {
		opts.LockWait = defaultLockWait
	}
	return &Store{client: client, opts: opts}
}

// NewFromURL parses a redis:// URL and verifies connectivity.
func NewFromURL(ctx context.Context, url string, opts Options) (*Store, error) {
	parsed, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := goredis.NewClient(parsed)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, opts), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Load(ctx context.Context, sessionID string) (domain.SessionState, error) {
	state, err := s.read(ctx, sessionID)
	if err != nil {
		return domain.SessionState{}, domain.WrapError(domain.ErrTemporary, "load session", err)
	}
	return state, nil
}

func (s *Store) Update(ctx context.Context, sessionID string, fn func(*domain.SessionState) error) error {
	token := uuid.NewString()
	lockKey := s.lockKey(sessionID)
	if err := s.acquire(ctx, lockKey, token); err != nil {
		return domain.WrapError(domain.ErrTemporary, "lock session", err)
	}
	defer func() {
		// Release even when ctx is already canceled.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, s.client, []string{lockKey}, token).Err()
	}()

	state, err := s.read(ctx, sessionID)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "load session", err)
	}
	if err := s.runLocked(ctx, lockKey, token, func() error { return fn(&state) }); err != nil {
		return err
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	committed, err := commitScript.Run(ctx, s.client,
		[]string{lockKey, s.stateKey(sessionID)},
		token, payload, s.opts.IdleTTL.Milliseconds(),
	).Int()
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "commit session", err)
	}
	if committed == 0 {
		return domain.WrapError(domain.ErrTemporary, "commit session", errLockLost)
	}
	return nil
}

// runLocked calls fn while a background loop keeps extending the lock.
func (s *Store) runLocked(ctx context.Context, lockKey, token string, fn func() error) error {
	renewCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.renew(renewCtx, lockKey, token)
	}()
	defer func() {
		stop()
		<-done
	}()
	return fn()
}

func (s *Store) renew(ctx context.Context, lockKey, token string) {
	ticker := time.NewTicker(max(s.opts.LockTTL/3, lockPollInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		owned, err := renewScript.Run(ctx, s.client, []string{lockKey}, token, s.opts.LockTTL.Milliseconds()).Int()
		if err == nil && owned == 0 {
			// Lost to expiry or another holder; the commit will refuse.
			return
		}
	}
}

func (s *Store) read(ctx context.Context, sessionID string) (domain.SessionState, error) {
	raw, err := s.client.Get(ctx, s.stateKey(sessionID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.NewSessionState(s.opts.HistoryCap), nil
	}
	if err != nil {
		return domain.SessionState{}, err
	}
	var state domain.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.SessionState{}, fmt.Errorf("decode session state: %w", err)
	}
	if state.History.Capacity() == 0 {
		state.History = domain.NewHistory(s.opts.HistoryCap)
	}
	return state, nil
}

func (s *Store) acquire(ctx context.Context, lockKey, token string) error {
	deadline := time.Now().Add(s.opts.LockWait)
	for {
		ok, err := s.client.SetNX(ctx, lockKey, token, s.opts.LockTTL).Result()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return errLockTimeout
		}
		timer := time.NewTimer(lockPollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Keys share a hash tag so the scripts stay on one cluster slot.
func (s *Store) stateKey(sessionID string) string {
	return s.opts.KeyPrefix + "{" + sessionID + "}"
}

func (s *Store) lockKey(sessionID string) string {
	return s.opts.KeyPrefix + "{" + sessionID + "}:lock"
}
