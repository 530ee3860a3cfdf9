package history

import (
	"context"
	"sync"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/session"
)

// Record is one stored terminal result.
type Record struct {
	SessionID string
	White     string
	Black     string
	Outcome   string
	Winner    string
	Method    string
	Moves     int
}

// MemRecorder is the in-memory recorder used when no database is
// configured, and by tests.
type MemRecorder struct {
	mu      sync.Mutex
	records map[string]Record
}

func NewMemRecorder() *MemRecorder {
	return &MemRecorder{records: make(map[string]Record)}
}

func (m *MemRecorder) RecordResult(ctx context.Context, s *session.Session, method string) error {
	if s == nil || s.Result == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[s.ID] = Record{
		SessionID: s.ID,
		White:     s.White,
		Black:     s.Black,
		Outcome:   s.Result.Outcome,
		Winner:    s.Result.Winner,
		Method:    method,
		Moves:     len(s.MovesUCI),
	}
	return nil
}

// Get returns the stored record for a session.
func (m *MemRecorder) Get(sessionID string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[sessionID]
	return r, ok
}

// Len returns the number of stored records.
func (m *MemRecorder) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
