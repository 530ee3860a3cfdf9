package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/NP5555/BlockChain-Chess-Arena/internal/session"
)

// Repository stores terminal game results in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// RecordResult upserts a finished or abandoned session.
func (r *Repository) RecordResult(ctx context.Context, s *session.Session, method string) error {
	if r == nil || r.db == nil || s == nil || s.Result == nil {
		return nil
	}

	pgnResult := mapResultToPGN(s.Result.Outcome)
	pgn := buildPGN(s, pgnResult, method)
	movesUCIRaw, _ := json.Marshal(s.MovesUCI)
	movesSANRaw, _ := json.Marshal(s.MovesSAN)
	duration := s.LastActivityAt.Sub(s.CreatedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO arena_games (
	    session_id, white_id, black_id, time_control, wager,
	    result, result_method, moves_uci, moves_san, pgn,
	    started_at, ended_at, duration_ms
	  ) VALUES (
	    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	  ) ON CONFLICT (session_id) DO UPDATE SET
	    result=EXCLUDED.result,
	    result_method=EXCLUDED.result_method,
	    moves_uci=EXCLUDED.moves_uci,
	    moves_san=EXCLUDED.moves_san,
	    pgn=EXCLUDED.pgn,
	    ended_at=EXCLUDED.ended_at,
	    duration_ms=EXCLUDED.duration_ms`

	_, err := r.db.ExecContext(ctx, q,
		s.ID,
		s.White, s.Black,
		s.Config.TimeControl, s.Config.Wager,
		s.Result.Outcome, strings.TrimSpace(method),
		string(movesUCIRaw), string(movesSANRaw), pgn,
		s.CreatedAt, s.LastActivityAt, duration,
	)
	return err
}

func mapResultToPGN(outcome string) string {
	switch strings.ToLower(strings.TrimSpace(outcome)) {
	case "white":
		return "1-0"
	case "black":
		return "0-1"
	case "draw":
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(s *session.Session, pgnResult, method string) string {
	var b strings.Builder
	date := s.LastActivityAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"BlockChain Chess Arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(s.White)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(s.Black)))
	if strings.TrimSpace(s.Config.TimeControl) != "" {
		b.WriteString(fmt.Sprintf("[TimeControl \"%s\"]\n", sanitizePGN(s.Config.TimeControl)))
	}
	if strings.TrimSpace(method) != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(strings.ToLower(method))))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", pgnResult))

	for i := 0; i < len(s.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(s.MovesSAN[i])))
		if i+1 < len(s.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(s.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(pgnResult)
	return b.String()
}

func sanitizePGN(v string) string {
	v = strings.ReplaceAll(v, "\\", " ")
	v = strings.ReplaceAll(v, "\"", "'")
	return strings.TrimSpace(v)
}
