package rules

import "errors"

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

// ErrIllegalMove is returned when a proposed move is not legal in the
// current position. It never indicates an internal failure.
var ErrIllegalMove = errors.New("illegal move")

// Terminal describes a game-ending condition detected after a move.
type Terminal struct {
	Over    bool
	Outcome string // "white", "black" or "draw"
	Method  string // "checkmate" or "draw"
}

// Result is the outcome of validating and applying a single move.
type Result struct {
	FEN      string
	UCI      string
	SAN      string
	Next     Color
	Terminal Terminal
}

// Validator applies a proposed move against the position reached by the
// given move log. Implementations are pure: no internal state, the same
// inputs always give the same result.
type Validator interface {
	Validate(movesUCI []string, move string, color Color) (*Result, error)
}
