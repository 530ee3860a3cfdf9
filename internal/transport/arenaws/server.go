package arenaws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/connmgr"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/matchmaker"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/msgcat"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/obslog"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/relay"
	"github.com/NP5555/BlockChain-Chess-Arena/internal/session"
	"github.com/NP5555/BlockChain-Chess-Arena/pkg/arenadto"
)

const writeTimeout = 5 * time.Second

// Server terminates websocket connections and routes typed client messages
// to the matchmaker, registry, relay and connection manager. It also
// exposes the read-only health/stats surface.
type Server struct {
	registry *session.Registry
	match    *matchmaker.Matchmaker
	relay    *relay.Relay
	conns    *connmgr.Manager
	cat      *msgcat.Catalog

	mu      sync.RWMutex
	clients map[string]*client // clientID -> live connection

	httpSrv *http.Server
}

type client struct {
	id      string
	connID  string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func NewServer(addr string, registry *session.Registry, match *matchmaker.Matchmaker, rel *relay.Relay, cat *msgcat.Catalog) *Server {
	s := &Server{
		registry: registry,
		match:    match,
		relay:    rel,
		cat:      cat,
		clients:  make(map[string]*client),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/stats", s.handleStats)
	s.httpSrv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// AttachConnManager wires the connection manager; required before serving.
func (s *Server) AttachConnManager(m *connmgr.Manager) { s.conns = m }

// Handler exposes the route mux for embedding and tests.
func (s *Server) Handler() http.Handler { return s.httpSrv.Handler }

func (s *Server) ListenAndServe() error {
	obslog.L().Info("server_listen", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

// Send implements relay.Broadcaster and connmgr.Sender. Messages to
// clients without a live connection are dropped; the grace-period state
// machine owns that situation.
func (s *Server) Send(clientID string, msg *arenadto.ServerMessage) {
	s.mu.RLock()
	c, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, c.conn, msg); err != nil {
		obslog.L().Debug("send_error",
			zap.String("client_id", clientID),
			zap.Error(err),
		)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := strings.TrimSpace(r.URL.Query().Get("client"))
	if clientID == "" {
		http.Error(w, "client query parameter required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  []string{"*"},
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("ws_accept_error", zap.Error(err))
		return
	}

	c := &client{id: clientID, connID: uuid.NewString(), conn: conn}
	s.register(c)
	obslog.L().Info("ws_connect",
		zap.String("client_id", clientID),
		zap.String("conn_id", c.connID),
	)

	// rebind a returning client so a pending grace timer gets cancelled
	// and the session state is resynced
	if sess, ok := s.registry.GetByClient(clientID); ok {
		if err := s.conns.Bind(c.connID, sess.ID, clientID); err != nil {
			obslog.L().Warn("rebind_error",
				zap.String("client_id", clientID),
				zap.Error(err),
			)
		}
	}

	ctx := r.Context()
	for {
		var msg arenadto.ClientMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			break
		}
		s.route(ctx, c, &msg)
	}

	s.unregister(c)
	// a superseded socket must not revoke the ticket the client still
	// holds through its newer connection
	if s.lookup(clientID) == nil {
		s.match.CancelMatch(clientID)
	}
	s.conns.Unbind(c.connID)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	obslog.L().Info("ws_disconnect",
		zap.String("client_id", clientID),
		zap.String("conn_id", c.connID),
	)
}

func (s *Server) route(ctx context.Context, c *client, msg *arenadto.ClientMessage) {
	switch msg.Type {
	case arenadto.TypeFindMatch:
		s.handleFindMatch(c, msg)
	case arenadto.TypeCancelMatch:
		s.match.CancelMatch(c.id)
	case arenadto.TypeCreateGame:
		s.handleCreateGame(c, msg)
	case arenadto.TypeJoinGame:
		s.handleJoinGame(c, msg)
	case arenadto.TypeSubmitMove:
		if _, err := s.relay.SubmitMove(ctx, msg.SessionID, c.id, msg.Move); err != nil {
			s.Send(c.id, &arenadto.ServerMessage{
				Type:      arenadto.TypeMoveRejected,
				SessionID: msg.SessionID,
				Error:     s.rejection(err),
			})
		}
	case arenadto.TypeOfferDraw:
		if err := s.relay.OfferDraw(ctx, msg.SessionID, c.id); err != nil {
			s.sendError(c.id, err)
		}
	case arenadto.TypeAcceptDraw:
		if err := s.relay.AcceptDraw(ctx, msg.SessionID, c.id); err != nil {
			s.sendError(c.id, err)
		}
	case arenadto.TypeResign:
		if err := s.relay.Resign(ctx, msg.SessionID, c.id); err != nil {
			s.sendError(c.id, err)
		}
	case arenadto.TypeLeave:
		s.handleLeave(ctx, c)
	default:
		s.Send(c.id, &arenadto.ServerMessage{
			Type:  arenadto.TypeError,
			Error: &arenadto.DomainError{Code: arenadto.CodeNotFound, Message: "unknown message type"},
		})
	}
}

func (s *Server) handleFindMatch(c *client, msg *arenadto.ClientMessage) {
	crit := matchmaker.Criteria{}
	if msg.Criteria != nil {
		crit.TimeControl = msg.Criteria.TimeControl
		crit.Wager = msg.Criteria.Wager
	}
	outcome, err := s.match.RequestMatch(c.id, crit)
	if err != nil {
		s.sendError(c.id, err)
		return
	}
	if !outcome.Paired {
		s.Send(c.id, &arenadto.ServerMessage{
			Type:    arenadto.TypeQueued,
			Message: s.text("notify.queued", nil),
		})
		return
	}

	sess := outcome.Session
	// bind both clients' live connections to the new session
	s.bindClient(c.connID, sess.ID, c.id)
	if opp := s.lookup(sess.White); opp != nil {
		s.bindClient(opp.connID, sess.ID, sess.White)
	}

	s.Send(sess.White, &arenadto.ServerMessage{
		Type:      arenadto.TypeMatchFound,
		SessionID: sess.ID,
		Color:     "white",
		Opponent:  sess.Black,
	})
	s.Send(sess.Black, &arenadto.ServerMessage{
		Type:      arenadto.TypeMatchFound,
		SessionID: sess.ID,
		Color:     "black",
		Opponent:  sess.White,
	})
	s.sendGameStarted(sess)
}

func (s *Server) handleCreateGame(c *client, msg *arenadto.ClientMessage) {
	cfg := session.GameConfig{}
	if msg.Config != nil {
		cfg.TimeControl = msg.Config.TimeControl
		cfg.Wager = msg.Config.Wager
	}
	sess, err := s.registry.Create(c.id, cfg)
	if err != nil {
		s.sendError(c.id, err)
		return
	}
	s.bindClient(c.connID, sess.ID, c.id)
	s.Send(c.id, &arenadto.ServerMessage{
		Type:      arenadto.TypeGameCreated,
		SessionID: sess.ID,
		Color:     "white",
	})
}

func (s *Server) handleJoinGame(c *client, msg *arenadto.ClientMessage) {
	sess, err := s.registry.BindOpponent(msg.SessionID, c.id)
	if err != nil {
		s.sendError(c.id, err)
		return
	}
	s.bindClient(c.connID, sess.ID, c.id)
	s.sendGameStarted(sess)
}

func (s *Server) handleLeave(ctx context.Context, c *client) {
	s.match.CancelMatch(c.id)
	if sess, ok := s.registry.GetByClient(c.id); ok && sess.State == session.StateActive {
		if err := s.relay.Resign(ctx, sess.ID, c.id); err != nil {
			obslog.L().Warn("leave_resign_error",
				zap.String("client_id", c.id),
				zap.Error(err),
			)
		}
	}
}

func (s *Server) sendGameStarted(sess *session.Session) {
	msg := func(color string) *arenadto.ServerMessage {
		return &arenadto.ServerMessage{
			Type:      arenadto.TypeGameStarted,
			SessionID: sess.ID,
			Color:     color,
			FEN:       sess.FEN,
			Turn:      string(sess.Turn),
		}
	}
	s.Send(sess.White, msg("white"))
	if sess.Black != "" {
		s.Send(sess.Black, msg("black"))
	}
}

func (s *Server) bindClient(connID, sessionID, clientID string) {
	if err := s.conns.Bind(connID, sessionID, clientID); err != nil {
		obslog.L().Warn("bind_error",
			zap.String("client_id", clientID),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"activeSessions":   s.registry.ActiveCount(),
		"queuedClients":    s.match.QueuedCount(),
		"connectedClients": s.conns.ConnectedCount(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) register(c *client) {
	s.mu.Lock()
	if old, exists := s.clients[c.id]; exists {
		// one live connection per client; the newer device wins
		_ = old.conn.Close(websocket.StatusPolicyViolation, "superseded")
	}
	s.clients[c.id] = c
	s.mu.Unlock()
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	if cur, exists := s.clients[c.id]; exists && cur.connID == c.connID {
		delete(s.clients, c.id)
	}
	s.mu.Unlock()
}

func (s *Server) lookup(clientID string) *client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clients[clientID]
}

func (s *Server) sendError(clientID string, err error) {
	s.Send(clientID, &arenadto.ServerMessage{
		Type:  arenadto.TypeError,
		Error: s.rejection(err),
	})
}

func (s *Server) text(key string, data any) string {
	if s.cat == nil {
		return ""
	}
	out, err := s.cat.Render(key, data)
	if err != nil {
		return ""
	}
	return out
}
