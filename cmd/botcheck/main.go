package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	appcfg "github.com/park285/Cheese-lichess-bot/internal/config"
	"github.com/park285/Cheese-lichess-bot/internal/lichess"
	"github.com/park285/Cheese-lichess-bot/internal/position"
	"github.com/park285/Cheese-lichess-bot/internal/sessionstore"
)

// botcheck verifies the token, optionally inspects one game (botcheck <gameId>) and lists the
// sessions a running bot has mirrored into Redis.
func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	client := lichess.NewClient(cfg.LichessBaseURL, cfg.LichessToken,
		lichess.WithTimeout(8*time.Second),
		lichess.WithRetry(1),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	acc, err := client.Account(ctx)
	if err != nil {
		log.Printf("/api/account error: %v", err)
	} else {
		log.Printf("/api/account ok: id=%s username=%s title=%s", acc.ID, acc.Username, acc.Title)
	}

	if len(os.Args) > 1 {
		checkGame(ctx, client, strings.TrimSpace(os.Args[1]))
	}

	if cfg.RedisURL == "" {
		log.Println("REDIS_URL not set; skipping session listing")
		return
	}
	store, err := sessionstore.Open(ctx, cfg.RedisURL)
	if err != nil {
		log.Printf("redis error: %v", err)
		return
	}
	defer store.Close()

	active, err := store.ListActive(ctx)
	if err != nil {
		log.Printf("list sessions error: %v", err)
		return
	}
	if len(active) == 0 {
		log.Println("no active sessions")
	}
	for _, rec := range active {
		fmt.Printf("game=%s color=%s state=%s last_acted=%d attempts=%d last=%s/%s since=%s\n",
			rec.GameID, rec.Color, rec.State, rec.LastActed, rec.Attempts, rec.LastMove, rec.LastOutcome,
			rec.StartedAt.Format(time.RFC3339))
	}
}

func checkGame(ctx context.Context, client *lichess.Client, gameID string) {
	if gameID == "" {
		return
	}
	payload, err := client.FetchGameState(ctx, gameID)
	if err != nil {
		log.Printf("export %s error: %v", gameID, err)
		return
	}
	pos := position.Normalize(payload)
	log.Printf("export %s ok: shape=%s plies=%d status=%s reason=%s winner=%s to_move=%s last=%s",
		gameID, position.Kind(payload), pos.MoveCount(), pos.Status, pos.Reason, pos.Winner,
		position.SideToMove(pos), pos.LastMove())
}
