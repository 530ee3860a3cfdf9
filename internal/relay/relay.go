package relay

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/obslog"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/rules"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/session"
	"github.com/NP5555/BlockChain-Chess-Arena/pkg/arenadto"
)

var (
	ErrNotInSession     = errors.New("client not in session")
	ErrSessionNotActive = errors.New("session not active")
	ErrOutOfTurn        = errors.New("not your turn")
	ErrNoDrawOffer      = errors.New("no draw offer pending")
)

// Broadcaster delivers server messages to clients. The transport behind it
// is swappable: websockets, channels in tests, queues.
type Broadcaster interface {
	Send(clientID string, msg *arenadto.ServerMessage)
}

// BindingResolver maps a client to its bound session and color. The
// connection manager provides the production implementation.
type BindingResolver interface {
	Resolve(clientID string) (sessionID string, color rules.Color, ok bool)
}

// ResultRecorder persists terminal results for history. Implementations
// must be safe to call from relay goroutines.
type ResultRecorder interface {
	RecordResult(ctx context.Context, s *session.Session, method string) error
}

// Relay routes per-session messages: validates turn order, applies moves
// through the Validator, persists authoritative state in the registry and
// rebroadcasts to both participants.
type Relay struct {
	registry  *session.Registry
	validator rules.Validator
	resolver  BindingResolver
	bcast     Broadcaster
	recorder  ResultRecorder
}

func New(registry *session.Registry, validator rules.Validator) *Relay {
	return &Relay{registry: registry, validator: validator, bcast: nopBroadcaster{}}
}

// AttachBroadcaster wires the transport. Must be set before serving.
func (r *Relay) AttachBroadcaster(b Broadcaster) { r.bcast = b }

// AttachResolver wires the connection manager's binding table.
func (r *Relay) AttachResolver(res BindingResolver) { r.resolver = res }

type nopBroadcaster struct{}

func (nopBroadcaster) Send(string, *arenadto.ServerMessage) {}

// AttachRecorder wires a repository for persisting terminal results.
func (r *Relay) AttachRecorder(rec ResultRecorder) { r.recorder = rec }

// SubmitMove applies one move. Rejections are returned as typed errors and
// leave board and turn unchanged; they never terminate the session. Moves
// for a single session are serialized by the session lock, so a concurrent
// submission observes the effects of the first before evaluation.
func (r *Relay) SubmitMove(ctx context.Context, sessionID, clientID, move string) (*arenadto.ServerMessage, error) {
	s, color, err := r.resolve(sessionID, clientID)
	if err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	if s.State != session.StateActive {
		return nil, ErrSessionNotActive
	}
	if color != s.Turn {
		return nil, ErrOutOfTurn
	}

	res, err := r.validator.Validate(s.MovesUCI, move, color)
	if err != nil {
		if errors.Is(err, rules.ErrIllegalMove) {
			return nil, err
		}
		// validator failure on stored state is a programming error; kill
		// the session rather than risk corrupt broadcasts
		obslog.L().Error("relay_validator_failure",
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
		r.terminate(ctx, s, "internal")
		return nil, err
	}

	s.FEN = res.FEN
	s.Turn = res.Next
	s.MovesUCI = append(s.MovesUCI, res.UCI)
	s.MovesSAN = append(s.MovesSAN, res.SAN)
	s.DrawOfferBy = ""
	r.registry.Touch(s)

	applied := &arenadto.ServerMessage{
		Type:      arenadto.TypeMoveApplied,
		SessionID: s.ID,
		Move:      res.UCI,
		SAN:       res.SAN,
		FEN:       s.FEN,
		Turn:      string(s.Turn),
		MoveLog:   append([]string(nil), s.MovesUCI...),
	}
	r.sendBoth(s, applied)

	obslog.L().Info("move_applied",
		zap.String("session_id", s.ID),
		zap.String("client_id", clientID),
		zap.String("uci", res.UCI),
		zap.Int("ply", len(s.MovesUCI)),
	)

	if res.Terminal.Over {
		winner := ""
		switch res.Terminal.Outcome {
		case "white":
			winner = s.White
		case "black":
			winner = s.Black
		}
		r.finish(ctx, s, &session.Result{
			Outcome: res.Terminal.Outcome,
			Winner:  winner,
			Method:  res.Terminal.Method,
		})
	}
	return applied, nil
}

// OfferDraw records a pending draw offer and notifies the opponent.
func (r *Relay) OfferDraw(ctx context.Context, sessionID, clientID string) error {
	s, _, err := r.resolve(sessionID, clientID)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	if s.State != session.StateActive {
		return ErrSessionNotActive
	}
	s.DrawOfferBy = clientID
	r.registry.Touch(s)
	r.bcast.Send(s.Opponent(clientID), &arenadto.ServerMessage{
		Type:      arenadto.TypeDrawOffered,
		SessionID: s.ID,
	})
	obslog.L().Info("draw_offered",
		zap.String("session_id", s.ID),
		zap.String("client_id", clientID),
	)
	return nil
}

// AcceptDraw finishes the session by agreement. Only the opponent of the
// offering player may accept, and any accepted move voids the offer.
func (r *Relay) AcceptDraw(ctx context.Context, sessionID, clientID string) error {
	s, _, err := r.resolve(sessionID, clientID)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	if s.State != session.StateActive {
		return ErrSessionNotActive
	}
	if s.DrawOfferBy == "" || s.DrawOfferBy == clientID {
		return ErrNoDrawOffer
	}
	r.finish(ctx, s, &session.Result{Outcome: "draw", Method: "agreement"})
	return nil
}

// Resign finishes the session in favor of the opponent.
func (r *Relay) Resign(ctx context.Context, sessionID, clientID string) error {
	s, _, err := r.resolve(sessionID, clientID)
	if err != nil {
		return err
	}

	s.Lock()
	defer s.Unlock()
	if s.State != session.StateActive {
		return ErrSessionNotActive
	}
	opponent := s.Opponent(clientID)
	outcome := "black"
	if opponent == s.White {
		outcome = "white"
	}
	obslog.L().Info("resign",
		zap.String("session_id", s.ID),
		zap.String("client_id", clientID),
	)
	r.finish(ctx, s, &session.Result{Outcome: outcome, Winner: opponent, Method: "resignation"})
	return nil
}

// Abandon transitions the session to Abandoned after a reconnection grace
// period expired, notifying any remaining participant.
func (r *Relay) Abandon(ctx context.Context, sessionID string) error {
	s, err := r.registry.Get(sessionID)
	if err != nil {
		return err
	}
	s.Lock()
	defer s.Unlock()
	if s.Terminal() {
		return nil
	}
	result := &session.Result{Outcome: "abandoned", Method: "abandonment"}
	r.registry.End(s, session.StateAbandoned, result)
	r.sendBoth(s, &arenadto.ServerMessage{
		Type:      arenadto.TypeGameEnded,
		SessionID: s.ID,
		Result:    &arenadto.GameResult{Outcome: result.Outcome, Method: result.Method},
	})
	r.record(ctx, s, result.Method)
	return nil
}

// finish ends an Active session with a terminal result. Caller holds the
// session lock.
func (r *Relay) finish(ctx context.Context, s *session.Session, result *session.Result) {
	r.registry.End(s, session.StateFinished, result)
	r.sendBoth(s, &arenadto.ServerMessage{
		Type:      arenadto.TypeGameEnded,
		SessionID: s.ID,
		Result: &arenadto.GameResult{
			Outcome: result.Outcome,
			Winner:  result.Winner,
			Method:  result.Method,
		},
	})
	r.record(ctx, s, result.Method)
}

// terminate force-ends a session after an internal invariant violation.
func (r *Relay) terminate(ctx context.Context, s *session.Session, method string) {
	result := &session.Result{Outcome: "abandoned", Method: method}
	r.registry.End(s, session.StateAbandoned, result)
	r.sendBoth(s, &arenadto.ServerMessage{
		Type:      arenadto.TypeGameEnded,
		SessionID: s.ID,
		Result:    &arenadto.GameResult{Outcome: result.Outcome, Method: method},
	})
	r.record(ctx, s, method)
}

// resolve maps (sessionID, clientID) to the session and the client's color,
// preferring the connection manager's binding table when attached.
func (r *Relay) resolve(sessionID, clientID string) (*session.Session, rules.Color, error) {
	if r.resolver != nil {
		boundSession, color, ok := r.resolver.Resolve(clientID)
		if !ok || boundSession != sessionID {
			return nil, "", ErrNotInSession
		}
		s, err := r.registry.Get(sessionID)
		if err != nil {
			return nil, "", err
		}
		return s, color, nil
	}
	s, err := r.registry.Get(sessionID)
	if err != nil {
		return nil, "", err
	}
	s.Lock()
	color, ok := s.PlayerColor(clientID)
	s.Unlock()
	if !ok {
		return nil, "", ErrNotInSession
	}
	return s, color, nil
}

func (r *Relay) sendBoth(s *session.Session, msg *arenadto.ServerMessage) {
	if s.White != "" {
		r.bcast.Send(s.White, msg)
	}
	if s.Black != "" {
		r.bcast.Send(s.Black, msg)
	}
}

func (r *Relay) record(ctx context.Context, s *session.Session, method string) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordResult(ctx, s, method); err != nil {
		obslog.L().Error("result_persist_error",
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
	}
}
