package arenaws

import (
	"errors"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/matchmaker"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/relay"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/rules"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/session"
	"github.com/NP5555/BlockChain-Chess-Arena/pkg/arenadto"
)

// rejection maps component sentinel errors to wire-facing DomainErrors,
// with message text from the catalog. Unknown errors become a generic
// retryable NotFound so internals never leak to clients.
func (s *Server) rejection(err error) *arenadto.DomainError {
	code, key, retryable := classify(err)
	return &arenadto.DomainError{
		Code:      code,
		Message:   s.text(key, nil),
		Retryable: retryable,
	}
}

func classify(err error) (code, msgKey string, retryable bool) {
	switch {
	case errors.Is(err, relay.ErrNotInSession):
		return arenadto.CodeNotInSession, "reject.not_in_session", false
	case errors.Is(err, relay.ErrSessionNotActive):
		return arenadto.CodeSessionNotActive, "reject.session_not_active", false
	case errors.Is(err, relay.ErrOutOfTurn):
		return arenadto.CodeOutOfTurn, "reject.out_of_turn", true
	case errors.Is(err, rules.ErrIllegalMove):
		return arenadto.CodeIllegalMove, "reject.illegal_move", true
	case errors.Is(err, relay.ErrNoDrawOffer):
		return arenadto.CodeNotFound, "reject.no_draw_offer", false
	case errors.Is(err, session.ErrSessionUnavailable), errors.Is(err, session.ErrCapacity):
		return arenadto.CodeSessionUnavailable, "reject.session_unavailable", false
	case errors.Is(err, matchmaker.ErrAlreadyQueued):
		return arenadto.CodeAlreadyQueued, "reject.already_queued", false
	case errors.Is(err, session.ErrNotFound):
		return arenadto.CodeNotFound, "reject.not_found", false
	default:
		return arenadto.CodeNotFound, "reject.not_found", true
	}
}
