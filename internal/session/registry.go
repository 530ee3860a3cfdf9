package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/obslog"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/rules"
)

var (
	ErrNotFound           = errors.New("session not found")
	ErrSessionUnavailable = errors.New("session not joinable")
	ErrCapacity           = errors.New("session limit reached")
)

// Store is an optional write-through snapshot backend. The registry stays
// authoritative; the store only enables restart recovery and inspection.
type Store interface {
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, id string) error
	LoadAll(ctx context.Context) ([]*Session, error)
}

// Config tunes the reap policy.
type Config struct {
	ReapInterval   time.Duration
	WaitingMaxAge  time.Duration
	FinishedMaxAge time.Duration
	MaxSessions    int
}

func (c *Config) fillDefaults() {
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	if c.WaitingMaxAge <= 0 {
		c.WaitingMaxAge = 10 * time.Minute
	}
	if c.FinishedMaxAge <= 0 {
		c.FinishedMaxAge = 2 * time.Minute
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 500
	}
}

// Registry owns all Session records. Sessions are held in an explicit
// registry object with generated identifiers, never in package state.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byClient map[string]string // clientID -> sessionID (non-terminal sessions only)

	store Store
	cfg   Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewRegistry(store Store, cfg Config) *Registry {
	cfg.fillDefaults()
	r := &Registry{
		sessions: make(map[string]*Session),
		byClient: make(map[string]string),
		store:    store,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.reapLoop()
	return r
}

// Create makes a Waiting session with a single bound player.
func (r *Registry) Create(creatorID string, cfg GameConfig) (*Session, error) {
	return r.insert(creatorID, "", StateWaiting, cfg)
}

// CreatePaired makes an Active session with both slots bound, used by the
// matchmaker where pairing implies two ready clients.
func (r *Registry) CreatePaired(whiteID, blackID string, cfg GameConfig) (*Session, error) {
	return r.insert(whiteID, blackID, StateActive, cfg)
}

func (r *Registry) insert(whiteID, blackID string, state State, cfg GameConfig) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:             uuid.NewString(),
		White:          whiteID,
		Black:          blackID,
		State:          state,
		FEN:            rules.StartFEN(),
		Turn:           rules.White,
		MovesUCI:       []string{},
		MovesSAN:       []string{},
		Config:         cfg,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	r.mu.Lock()
	if len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, ErrCapacity
	}
	r.sessions[s.ID] = s
	r.byClient[whiteID] = s.ID
	if blackID != "" {
		r.byClient[blackID] = s.ID
	}
	r.mu.Unlock()

	// the session is reachable through the maps now, so snapshotting
	// needs the session lock like every later persist
	s.Lock()
	r.persist(s)
	s.Unlock()
	obslog.L().Info("session_create",
		zap.String("session_id", s.ID),
		zap.String("white", whiteID),
		zap.String("black", blackID),
		zap.String("state", string(state)),
	)
	return s, nil
}

// BindOpponent fills the black slot of a Waiting session and activates it.
// Fails with ErrSessionUnavailable when the session is not Waiting or the
// creator attempts to join as their own opponent.
func (r *Registry) BindOpponent(sessionID, clientID string) (*Session, error) {
	s, err := r.Get(sessionID)
	if err != nil {
		return nil, err
	}

	s.Lock()
	if s.State != StateWaiting || clientID == "" || clientID == s.White {
		s.Unlock()
		return nil, ErrSessionUnavailable
	}

	// a reap pass may have removed the session between Get and the lock;
	// confirm membership before activating so a removed session never
	// comes back to life
	r.mu.Lock()
	if cur, ok := r.sessions[s.ID]; !ok || cur != s {
		r.mu.Unlock()
		s.Unlock()
		return nil, ErrNotFound
	}
	s.Black = clientID
	s.State = StateActive
	s.LastActivityAt = time.Now()
	r.byClient[clientID] = s.ID
	r.mu.Unlock()

	r.persist(s)
	s.Unlock()
	obslog.L().Info("session_join",
		zap.String("session_id", s.ID),
		zap.String("black", clientID),
	)
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// GetByClient returns the non-terminal session a client is bound to.
func (r *Registry) GetByClient(clientID string) (*Session, bool) {
	r.mu.RLock()
	id, ok := r.byClient[clientID]
	if !ok {
		r.mu.RUnlock()
		return nil, false
	}
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	return s, ok
}

// End transitions a session to a terminal state. The caller must hold the
// session lock; End only updates indexes and the snapshot store.
func (r *Registry) End(s *Session, state State, result *Result) {
	s.State = state
	s.Result = result
	s.LastActivityAt = time.Now()

	r.mu.Lock()
	if r.byClient[s.White] == s.ID {
		delete(r.byClient, s.White)
	}
	if s.Black != "" && r.byClient[s.Black] == s.ID {
		delete(r.byClient, s.Black)
	}
	r.mu.Unlock()

	r.persist(s)
	obslog.L().Info("session_end",
		zap.String("session_id", s.ID),
		zap.String("state", string(state)),
	)
}

// Touch refreshes activity and writes through to the snapshot store. The
// caller must hold the session lock.
func (r *Registry) Touch(s *Session) {
	s.LastActivityAt = time.Now()
	r.persist(s)
}

// ActiveCount returns the number of sessions in the Active state. State is
// read under each session's lock; the registry lock only guards the maps.
func (r *Registry) ActiveCount() int {
	n := 0
	for _, s := range r.snapshot() {
		s.Lock()
		if s.State == StateActive {
			n++
		}
		s.Unlock()
	}
	return n
}

// snapshot copies the current session pointers so callers can take session
// locks without holding r.mu. Lock order is session lock before r.mu, never
// the reverse.
func (r *Registry) snapshot() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Recover reloads persisted sessions after a restart. Terminal sessions
// are skipped; Waiting and Active ones become resumable.
func (r *Registry) Recover(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	loaded, err := r.store.LoadAll(ctx)
	if err != nil {
		return err
	}
	r.mu.Lock()
	for _, s := range loaded {
		if s == nil || s.Terminal() {
			continue
		}
		if _, exists := r.sessions[s.ID]; exists {
			continue
		}
		r.sessions[s.ID] = s
		r.byClient[s.White] = s.ID
		if s.Black != "" {
			r.byClient[s.Black] = s.ID
		}
	}
	total := len(r.sessions)
	r.mu.Unlock()
	obslog.L().Info("session_recover", zap.Int("sessions", total))
	return nil
}

// Reap runs one reap pass; exported for tests, normally driven by the loop.
// Staleness is decided under the session lock, so an activation racing the
// pass either completes before the check and keeps the session, or sees
// ErrNotFound after removal. A just-activated session is never removed.
func (r *Registry) Reap() {
	now := time.Now()
	for _, s := range r.snapshot() {
		s.Lock()
		state := s.State
		idle := now.Sub(s.LastActivityAt)
		stale := (state == StateWaiting && idle > r.cfg.WaitingMaxAge) ||
			((state == StateFinished || state == StateAbandoned) && idle > r.cfg.FinishedMaxAge)
		if !stale {
			s.Unlock()
			continue
		}
		r.mu.Lock()
		delete(r.sessions, s.ID)
		if r.byClient[s.White] == s.ID {
			delete(r.byClient, s.White)
		}
		if s.Black != "" && r.byClient[s.Black] == s.ID {
			delete(r.byClient, s.Black)
		}
		r.mu.Unlock()
		s.Unlock()

		if r.store != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			_ = r.store.Delete(ctx, s.ID)
			cancel()
		}
		obslog.L().Info("session_reap",
			zap.String("session_id", s.ID),
			zap.String("state", string(state)),
		)
	}
}

func (r *Registry) reapLoop() {
	defer r.wg.Done()
	t := time.NewTicker(r.cfg.ReapInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.Reap()
		case <-r.stopCh:
			return
		}
	}
}

func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

func (r *Registry) persist(s *Session) {
	if r.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := r.store.Save(ctx, s); err != nil {
		obslog.L().Warn("session_persist_error",
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
	}
}
