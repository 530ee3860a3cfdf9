package rules

import (
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// Engine is the default Validator backed by a full rules implementation.
// Positions are always reconstructed from the start position by replaying
// the stored UCI moves; FEN is carried on sessions for presentation only.
type Engine struct{}

func NewEngine() Engine { return Engine{} }

func (Engine) Validate(movesUCI []string, move string, color Color) (*Result, error) {
	game := reconstruct(movesUCI)
	if game == nil {
		return nil, fmt.Errorf("corrupt move log (%d moves)", len(movesUCI))
	}
	pos := game.Position()
	if colorFrom(pos.Turn()) != color {
		return nil, ErrIllegalMove
	}

	raw := strings.TrimSpace(move)
	if raw == "" {
		return nil, ErrIllegalMove
	}

	var uci, san string
	if mv, derr := (nchess.UCINotation{}).Decode(pos, strings.ToLower(raw)); derr == nil {
		game.Move(mv, nil)
		uci = strings.ToLower(raw)
		san = nchess.AlgebraicNotation{}.Encode(pos, mv)
	} else {
		// SAN fallback
		if err := game.PushNotationMove(raw, nchess.AlgebraicNotation{}, nil); err != nil {
			return nil, ErrIllegalMove
		}
		last := lastMove(game)
		if last == nil {
			return nil, ErrIllegalMove
		}
		uci = last.String()
		san = nchess.AlgebraicNotation{}.Encode(pos, last)
	}

	res := &Result{
		FEN:  game.FEN(),
		UCI:  uci,
		SAN:  san,
		Next: colorFrom(game.Position().Turn()),
	}
	switch game.Outcome() {
	case nchess.WhiteWon:
		res.Terminal = Terminal{Over: true, Outcome: "white", Method: "checkmate"}
	case nchess.BlackWon:
		res.Terminal = Terminal{Over: true, Outcome: "black", Method: "checkmate"}
	case nchess.Draw:
		res.Terminal = Terminal{Over: true, Outcome: "draw", Method: "draw"}
	}
	return res, nil
}

// StartFEN returns the FEN of the initial position.
func StartFEN() string { return nchess.NewGame().FEN() }

func reconstruct(moves []string) *nchess.Game {
	game := nchess.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil
		}
	}
	return game
}

func lastMove(game *nchess.Game) *nchess.Move {
	moves := game.Moves()
	if len(moves) == 0 {
		return nil
	}
	return moves[len(moves)-1]
}

func colorFrom(c nchess.Color) Color {
	if c == nchess.White {
		return White
	}
	return Black
}
