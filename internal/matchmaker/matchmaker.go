package matchmaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/obslog"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/rules"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/session"
)

var (
	ErrInvalidArgs   = errors.New("invalid arguments")
	ErrAlreadyQueued = errors.New("client already queued")
)

// Criteria partitions the queue; only compatible tickets pair.
type Criteria struct {
	TimeControl string
	Wager       string
}

func (c Criteria) key() string { return c.TimeControl + "|" + c.Wager }

// Ticket is one client waiting for a match.
type Ticket struct {
	ClientID    string
	Criteria    Criteria
	RequestedAt time.Time
}

// Outcome is the result of a match request: either an immediate pairing
// or a queued ticket.
type Outcome struct {
	Paired  bool
	Session *session.Session
	Color   rules.Color
	Ticket  *Ticket
}

// Matchmaker pairs waiting clients FIFO within a compatibility partition.
// The earlier ticket's client becomes white.
type Matchmaker struct {
	mu       sync.Mutex
	queues   map[string][]*Ticket
	queued   map[string]string // clientID -> partition key
	registry *session.Registry
}

func New(registry *session.Registry) *Matchmaker {
	return &Matchmaker{
		queues:   make(map[string][]*Ticket),
		queued:   make(map[string]string),
		registry: registry,
	}
}

// RequestMatch pairs the client with the oldest compatible ticket, or
// enqueues a new ticket. Pairing removes both tickets and creates an
// Active session atomically with respect to other match requests.
func (m *Matchmaker) RequestMatch(clientID string, crit Criteria) (*Outcome, error) {
	if clientID == "" {
		return nil, ErrInvalidArgs
	}
	key := crit.key()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.queued[clientID]; dup {
		return nil, ErrAlreadyQueued
	}

	q := m.queues[key]
	if len(q) == 0 {
		t := &Ticket{ClientID: clientID, Criteria: crit, RequestedAt: time.Now()}
		m.queues[key] = append(q, t)
		m.queued[clientID] = key
		obslog.L().Info("match_queued",
			zap.String("client_id", clientID),
			zap.String("partition", key),
		)
		return &Outcome{Ticket: t}, nil
	}

	head := q[0]
	m.queues[key] = q[1:]
	delete(m.queued, head.ClientID)

	sess, err := m.registry.CreatePaired(head.ClientID, clientID, session.GameConfig{
		TimeControl: crit.TimeControl,
		Wager:       crit.Wager,
	})
	if err != nil {
		// put the head ticket back so the earlier client keeps its spot
		m.queues[key] = append([]*Ticket{head}, m.queues[key]...)
		m.queued[head.ClientID] = key
		return nil, err
	}

	obslog.L().Info("match_paired",
		zap.String("session_id", sess.ID),
		zap.String("white", head.ClientID),
		zap.String("black", clientID),
		zap.String("partition", key),
	)
	return &Outcome{Paired: true, Session: sess, Color: rules.Black}, nil
}

// CancelMatch removes the client's ticket if present. Cancelling an absent
// or already paired client is a no-op, not an error: cancellation may race
// with pairing and the later match-found wins.
func (m *Matchmaker) CancelMatch(clientID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.queued[clientID]
	if !ok {
		return false
	}
	delete(m.queued, clientID)
	q := m.queues[key]
	for i, t := range q {
		if t.ClientID == clientID {
			m.queues[key] = append(q[:i], q[i+1:]...)
			break
		}
	}
	obslog.L().Info("match_cancel", zap.String("client_id", clientID))
	return true
}

// QueuedCount returns the number of waiting tickets over all partitions.
func (m *Matchmaker) QueuedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queued)
}
