package arenadto

// Client→server message types.
const (
	TypeFindMatch   = "find-match"
	TypeCancelMatch = "cancel-match"
	TypeCreateGame  = "create-game"
	TypeJoinGame    = "join-game"
	TypeSubmitMove  = "submit-move"
	TypeOfferDraw   = "offer-draw"
	TypeAcceptDraw  = "accept-draw"
	TypeResign      = "resign"
	TypeLeave       = "leave"
)

// Server→client message types.
const (
	TypeQueued               = "queued"
	TypeMatchFound           = "match-found"
	TypeGameCreated          = "game-created"
	TypeGameStarted          = "game-started"
	TypeMoveApplied          = "move-applied"
	TypeMoveRejected         = "move-rejected"
	TypeGameEnded            = "game-ended"
	TypeDrawOffered          = "draw-offered"
	TypeOpponentDisconnected = "opponent-disconnected"
	TypeOpponentGone         = "opponent-disconnected-permanently"
	TypeOpponentReconnected  = "opponent-reconnected"
	TypeResync               = "resync"
	TypeError                = "error"
)

// GameCriteria constrains matchmaking compatibility.
type GameCriteria struct {
	TimeControl string `json:"timeControl,omitempty"`
	Wager       string `json:"wager,omitempty"`
}

// ClientMessage is the envelope read off the websocket.
type ClientMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId,omitempty"`
	Move      string        `json:"move,omitempty"`
	Criteria  *GameCriteria `json:"criteria,omitempty"`
	Config    *GameCriteria `json:"config,omitempty"`
}

// GameResult is attached to game-ended messages.
type GameResult struct {
	Outcome string `json:"outcome"`
	Winner  string `json:"winner,omitempty"`
	Method  string `json:"method,omitempty"`
}

// ServerMessage is the envelope written to the websocket.
type ServerMessage struct {
	Type         string       `json:"type"`
	SessionID    string       `json:"sessionId,omitempty"`
	Color        string       `json:"color,omitempty"`
	Opponent     string       `json:"opponent,omitempty"`
	Move         string       `json:"move,omitempty"`
	SAN          string       `json:"san,omitempty"`
	FEN          string       `json:"fen,omitempty"`
	Turn         string       `json:"turn,omitempty"`
	MoveLog      []string     `json:"moveLog,omitempty"`
	Result       *GameResult  `json:"result,omitempty"`
	GraceSeconds int          `json:"graceSeconds,omitempty"`
	Message      string       `json:"message,omitempty"`
	Error        *DomainError `json:"error,omitempty"`
}
