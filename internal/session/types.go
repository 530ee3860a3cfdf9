package session

import (
	"sync"
	"time"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/rules"
)

// State represents a session lifecycle state.
type State string

const (
	StateWaiting   State = "WAITING"
	StateActive    State = "ACTIVE"
	StateFinished  State = "FINISHED"
	StateAbandoned State = "ABANDONED"
)

// Result captures how a finished session ended.
type Result struct {
	Outcome string `json:"outcome"` // "white", "black", "draw" or "abandoned"
	Winner  string `json:"winner,omitempty"`
	Method  string `json:"method,omitempty"` // "checkmate", "draw", "resignation", "agreement", "abandonment"
}

// GameConfig carries per-session matchmaking criteria.
type GameConfig struct {
	TimeControl string `json:"time_control,omitempty"`
	Wager       string `json:"wager,omitempty"`
}

// Session is one chess game instance. White and Black hold client
// identifiers; Black is empty while the session is Waiting.
//
// All mutation after creation happens under mu, which serializes move
// submission, draw handling and terminal transitions per session.
type Session struct {
	ID          string      `json:"id"`
	White       string      `json:"white"`
	Black       string      `json:"black,omitempty"`
	State       State       `json:"state"`
	FEN         string      `json:"fen"`
	Turn        rules.Color `json:"turn"`
	MovesUCI    []string    `json:"moves_uci"`
	MovesSAN    []string    `json:"moves_san"`
	DrawOfferBy string      `json:"draw_offer_by,omitempty"`
	Config      GameConfig  `json:"config"`
	Result      *Result     `json:"result,omitempty"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`

	mu sync.Mutex
}

// Lock serializes state mutation for this session. No two submitMove
// evaluations for the same session may interleave.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// PlayerColor returns the color a client plays in this session, or false
// when the client is not a participant.
func (s *Session) PlayerColor(clientID string) (rules.Color, bool) {
	switch {
	case clientID != "" && clientID == s.White:
		return rules.White, true
	case clientID != "" && clientID == s.Black:
		return rules.Black, true
	}
	return "", false
}

// Opponent returns the other participant's client identifier.
func (s *Session) Opponent(clientID string) string {
	if clientID == s.White {
		return s.Black
	}
	if clientID == s.Black {
		return s.White
	}
	return ""
}

// Terminal reports whether the session reached a final state.
func (s *Session) Terminal() bool {
	return s.State == StateFinished || s.State == StateAbandoned
}
