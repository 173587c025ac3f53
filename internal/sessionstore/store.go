// Package sessionstore mirrors the supervisor's session registry into Redis so that running games
// can be inspected from outside the process.
package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/dispatch"
	"github.com/park285/Cheese-lichess-bot/internal/position"
	"github.com/park285/Cheese-lichess-bot/internal/session"
	"github.com/redis/go-redis/v9"
)

const (
	ttlRecord = 24 * time.Hour
	keyPrefix = "bot:session:"
	keyActive = "bot:sessions:active"
)

// Record is the mirrored view of one session run.
type Record struct {
	RunID       string        `json:"run_id"`
	GameID      string        `json:"game_id"`
	Color       string        `json:"color"`
	State       session.State `json:"state"`
	LastActed   int           `json:"last_acted"`
	MoveCount   int           `json:"move_count"`
	LastMove    string        `json:"last_move,omitempty"`
	Attempts    int           `json:"attempts"`
	LastOutcome string        `json:"last_outcome,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Winner      string        `json:"winner,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Store implements session.Recorder on top of Redis. Each record is written only by the session
// that owns the game, so plain GET/SET is enough.
type Store struct{ rdb *redis.Client }

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Open parses a redis:// URL and pings the server.
func Open(ctx context.Context, redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("redis url required")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func (s *Store) keyRecord(gameID string) string { return keyPrefix + strings.TrimSpace(gameID) }

func (s *Store) Save(ctx context.Context, rec *Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keyRecord(rec.GameID), raw, ttlRecord).Err()
}

// Load returns nil, nil when no record exists.
func (s *Store) Load(ctx context.Context, gameID string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, s.keyRecord(gameID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", gameID, err)
	}
	return &rec, nil
}

// ListActive는 종료되지 않은 세션 레코드를 시작 시각 순으로 반환.
// 레코드가 만료된 인덱스 항목은 정리한다.
func (s *Store) ListActive(ctx context.Context) ([]*Record, error) {
	ids, err := s.rdb.SMembers(ctx, keyActive).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			_ = s.rdb.SRem(ctx, keyActive, id).Err()
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *Store) SessionStarted(ctx context.Context, info session.HandleInfo) error {
	rec := &Record{
		RunID:     info.RunID,
		GameID:    info.GameID,
		Color:     string(info.Color),
		State:     info.State,
		LastActed: info.LastActed,
		StartedAt: info.StartedAt,
		UpdatedAt: info.UpdatedAt,
	}
	if err := s.Save(ctx, rec); err != nil {
		return err
	}
	if err := s.rdb.SAdd(ctx, keyActive, info.GameID).Err(); err != nil {
		return err
	}
	return s.rdb.Expire(ctx, keyActive, ttlRecord).Err()
}

func (s *Store) SessionTransition(ctx context.Context, info session.HandleInfo, _ session.State) error {
	return s.update(ctx, info, func(rec *Record) {})
}

func (s *Store) MoveAttempted(ctx context.Context, info session.HandleInfo, moveCount int, res dispatch.Result) error {
	return s.update(ctx, info, func(rec *Record) {
		rec.Attempts++
		rec.MoveCount = moveCount
		rec.LastMove = res.Move
		rec.LastOutcome = res.Outcome.String()
	})
}

func (s *Store) SessionClosed(ctx context.Context, info session.HandleInfo, last *position.Position) error {
	err := s.update(ctx, info, func(rec *Record) {
		if last != nil {
			rec.MoveCount = last.MoveCount()
			rec.Reason = last.Reason
			rec.Winner = last.Winner
		}
	})
	if err != nil {
		return err
	}
	return s.rdb.SRem(ctx, keyActive, info.GameID).Err()
}

// update: 현재 run의 레코드를 읽고(없거나 run이 다르면 새로 생성) 핸들 스냅샷 반영 후 fn 적용.
func (s *Store) update(ctx context.Context, info session.HandleInfo, fn func(*Record)) error {
	rec, err := s.Load(ctx, info.GameID)
	if err != nil {
		return err
	}
	if rec == nil || rec.RunID != info.RunID {
		rec = &Record{RunID: info.RunID, GameID: info.GameID, Color: string(info.Color), StartedAt: info.StartedAt}
	}
	rec.State = info.State
	rec.LastActed = info.LastActed
	rec.UpdatedAt = info.UpdatedAt
	fn(rec)
	return s.Save(ctx, rec)
}

var _ session.Recorder = (*Store)(nil)
