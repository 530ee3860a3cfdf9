package connmgr

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/msgcat"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/obslog"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/rules"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/session"
	"github.com/NP5555/BlockChain-Chess-Arena/pkg/arenadto"
)

var ErrNotParticipant = errors.New("client not a participant of session")

// Sender delivers a message to a client's current connection.
type Sender interface {
	Send(clientID string, msg *arenadto.ServerMessage)
}

// Abandoner ends a session whose grace period expired. The relay provides
// the production implementation.
type Abandoner interface {
	Abandon(ctx context.Context, sessionID string) error
}

// Binding maps a transient connection to its session slot.
type Binding struct {
	ConnID    string
	SessionID string
	ClientID  string
	Color     rules.Color
}

// Manager owns the connection binding table and the disconnect grace-period
// state machine. Rebinding before expiry cancels the timer and resyncs the
// reconnecting client from the authoritative session record.
type Manager struct {
	mu       sync.Mutex
	byConn   map[string]*Binding
	byClient map[string]*Binding
	timers   map[string]*time.Timer // sessionID|color -> grace timer

	registry  *session.Registry
	sender    Sender
	abandoner Abandoner
	cat       *msgcat.Catalog
	grace     time.Duration
}

func New(registry *session.Registry, sender Sender, grace time.Duration) *Manager {
	if grace <= 0 {
		grace = 45 * time.Second
	}
	return &Manager{
		byConn:   make(map[string]*Binding),
		byClient: make(map[string]*Binding),
		timers:   make(map[string]*time.Timer),
		registry: registry,
		sender:   sender,
		grace:    grace,
	}
}

// AttachAbandoner wires the relay. Set before any Unbind can fire.
func (m *Manager) AttachAbandoner(a Abandoner) { m.abandoner = a }

// AttachCatalog wires user-facing texts for disconnect notifications.
// Without a catalog the notifications carry only their typed fields.
func (m *Manager) AttachCatalog(cat *msgcat.Catalog) { m.cat = cat }

func (m *Manager) text(key string, data any) string {
	if m.cat == nil {
		return ""
	}
	out, err := m.cat.Render(key, data)
	if err != nil {
		return ""
	}
	return out
}

// Bind records connID as the live connection for the client's slot in the
// session. If a grace timer for the slot is pending the call is a
// reconnection: the timer is cancelled, the client receives a full resync
// and the opponent is told the game resumed.
func (m *Manager) Bind(connID, sessionID, clientID string) error {
	s, err := m.registry.Get(sessionID)
	if err != nil {
		return err
	}
	s.Lock()
	color, ok := s.PlayerColor(clientID)
	opponent := s.Opponent(clientID)
	s.Unlock()
	if !ok {
		return ErrNotParticipant
	}

	m.mu.Lock()
	if old, exists := m.byClient[clientID]; exists {
		delete(m.byConn, old.ConnID)
	}
	b := &Binding{ConnID: connID, SessionID: sessionID, ClientID: clientID, Color: color}
	m.byConn[connID] = b
	m.byClient[clientID] = b

	reconnect := false
	key := timerKey(sessionID, color)
	if t, pending := m.timers[key]; pending {
		t.Stop()
		delete(m.timers, key)
		reconnect = true
	}
	m.mu.Unlock()

	obslog.L().Info("conn_bind",
		zap.String("conn_id", connID),
		zap.String("session_id", sessionID),
		zap.String("client_id", clientID),
		zap.String("color", string(color)),
		zap.Bool("reconnect", reconnect),
	)

	if reconnect {
		m.resync(s, clientID)
		m.sender.Send(opponent, &arenadto.ServerMessage{
			Type:      arenadto.TypeOpponentReconnected,
			SessionID: s.ID,
			Message:   m.text("notify.opponent_reconnected", nil),
		})
	}
	return nil
}

// Unbind is triggered on transport close. For an Active session it starts
// the grace timer for the dropped slot and warns the opponent.
func (m *Manager) Unbind(connID string) {
	m.mu.Lock()
	b, ok := m.byConn[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.byConn, connID)
	if cur, exists := m.byClient[b.ClientID]; exists && cur.ConnID == connID {
		delete(m.byClient, b.ClientID)
	}
	m.mu.Unlock()

	s, err := m.registry.Get(b.SessionID)
	if err != nil {
		return
	}
	s.Lock()
	active := s.State == session.StateActive
	opponent := s.Opponent(b.ClientID)
	s.Unlock()
	if !active {
		return
	}

	key := timerKey(b.SessionID, b.Color)
	m.mu.Lock()
	if t, pending := m.timers[key]; pending {
		t.Stop()
	}
	m.timers[key] = time.AfterFunc(m.grace, func() {
		m.onGraceExpired(b.SessionID, b.ClientID, b.Color)
	})
	m.mu.Unlock()

	obslog.L().Info("conn_unbind",
		zap.String("conn_id", connID),
		zap.String("session_id", b.SessionID),
		zap.String("client_id", b.ClientID),
		zap.Duration("grace", m.grace),
	)

	graceSecs := int(m.grace / time.Second)
	m.sender.Send(opponent, &arenadto.ServerMessage{
		Type:         arenadto.TypeOpponentDisconnected,
		SessionID:    s.ID,
		GraceSeconds: graceSecs,
		Message:      m.text("notify.opponent_disconnected", map[string]any{"Grace": graceSecs}),
	})
}

// Resolve implements the relay's binding lookup.
func (m *Manager) Resolve(clientID string) (string, rules.Color, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byClient[clientID]
	if !ok {
		return "", "", false
	}
	return b.SessionID, b.Color, true
}

// ConnectedCount returns the number of live bindings.
func (m *Manager) ConnectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byConn)
}

func (m *Manager) onGraceExpired(sessionID, clientID string, color rules.Color) {
	key := timerKey(sessionID, color)
	m.mu.Lock()
	if _, pending := m.timers[key]; !pending {
		m.mu.Unlock()
		return
	}
	delete(m.timers, key)
	m.mu.Unlock()

	obslog.L().Info("grace_expired",
		zap.String("session_id", sessionID),
		zap.String("client_id", clientID),
	)

	s, err := m.registry.Get(sessionID)
	if err == nil {
		s.Lock()
		opponent := s.Opponent(clientID)
		s.Unlock()
		m.sender.Send(opponent, &arenadto.ServerMessage{
			Type:      arenadto.TypeOpponentGone,
			SessionID: sessionID,
			Message:   m.text("notify.opponent_gone", nil),
		})
	}
	if m.abandoner != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.abandoner.Abandon(ctx, sessionID); err != nil {
			obslog.L().Warn("abandon_error",
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
		}
	}
}

// resync delivers the authoritative move log, board and turn to a
// reconnecting client before normal relay resumes.
func (m *Manager) resync(s *session.Session, clientID string) {
	s.Lock()
	msg := &arenadto.ServerMessage{
		Type:      arenadto.TypeResync,
		SessionID: s.ID,
		FEN:       s.FEN,
		Turn:      string(s.Turn),
		MoveLog:   append([]string(nil), s.MovesUCI...),
	}
	s.Unlock()
	m.sender.Send(clientID, msg)
}

func timerKey(sessionID string, color rules.Color) string {
	return sessionID + "|" + string(color)
}
