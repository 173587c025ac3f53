// Package archive persists finished games to PostgreSQL.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// GameRecord is one finished game as stored in bot_games.
type GameRecord struct {
	GameID   string
	RunID    string
	Color    string
	Result   string // white, black, draw or "" when undecided
	Reason   string
	MovesUCI []string
	MovesSAN []string
	Attempts int
	Started  time.Time
	Ended    time.Time
}

const schema = `CREATE TABLE IF NOT EXISTS bot_games (
    game_id     TEXT PRIMARY KEY,
    run_id      TEXT NOT NULL,
    bot_color   TEXT NOT NULL,
    result      TEXT NOT NULL,
    reason      TEXT NOT NULL,
    moves_uci   JSONB NOT NULL,
    moves_san   JSONB NOT NULL,
    pgn         TEXT NOT NULL,
    attempts    INTEGER NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    ended_at    TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL
)`

type Repository struct {
	db      *sql.DB
	botName string
}

func NewRepository(ctx context.Context, databaseURL, botName string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Repository{db: db, botName: botName}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates bot_games when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// SaveResult upserts a finished game.
func (r *Repository) SaveResult(ctx context.Context, g *GameRecord) error {
	if r == nil || r.db == nil || g == nil {
		return nil
	}
	movesUCIRaw, err := json.Marshal(nonNil(g.MovesUCI))
	if err != nil {
		return err
	}
	movesSANRaw, err := json.Marshal(nonNil(g.MovesSAN))
	if err != nil {
		return err
	}
	duration := g.Ended.Sub(g.Started).Milliseconds()
	if duration < 0 {
		duration = 0
	}

	q := `INSERT INTO bot_games (
        game_id, run_id, bot_color, result, reason,
        moves_uci, moves_san, pgn, attempts,
        started_at, ended_at, duration_ms
      ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
      ) ON CONFLICT (game_id) DO UPDATE SET
        run_id=EXCLUDED.run_id,
        bot_color=EXCLUDED.bot_color,
        result=EXCLUDED.result,
        reason=EXCLUDED.reason,
        moves_uci=EXCLUDED.moves_uci,
        moves_san=EXCLUDED.moves_san,
        pgn=EXCLUDED.pgn,
        attempts=EXCLUDED.attempts,
        started_at=EXCLUDED.started_at,
        ended_at=EXCLUDED.ended_at,
        duration_ms=EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, q,
		g.GameID, g.RunID, g.Color, g.Result, g.Reason,
		string(movesUCIRaw), string(movesSANRaw), buildPGN(g, r.botName), g.Attempts,
		g.Started, g.Ended, duration,
	)
	if err != nil {
		return fmt.Errorf("save game %s: %w", g.GameID, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
