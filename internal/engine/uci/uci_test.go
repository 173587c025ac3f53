package uci

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"
)

// fakeEngine answers just enough UCI for the handshake and a search.
const fakeEngine = `#!/bin/sh
while read -r line; do
  case "$line" in
    uci) echo "id name fake"; echo "uciok" ;;
    isready) echo "readyok" ;;
    "position startpos") best="e2e4" ;;
    position*) best="e7e5" ;;
    go*) echo "info depth 1 multipv 1 score cp 31 pv $best"; echo "bestmove $best" ;;
    quit) exit 0 ;;
  esac
done
`

func writeFakeEngine(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script engine needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-engine")
	if err := os.WriteFile(path, []byte(fakeEngine), 0o755); err != nil {
		t.Fatalf("write fake engine: %v", err)
	}
	return path
}

func TestBuildPositionCommand(t *testing.T) {
	if got := buildPositionCommand("", nil); got != "position startpos\n" {
		t.Fatalf("got %q", got)
	}
	if got := buildPositionCommand("startpos", []string{"e2e4", "e7e5"}); got != "position startpos moves e2e4 e7e5\n" {
		t.Fatalf("got %q", got)
	}
	fen := "8/8/8/8/8/8/8/K6k w - - 0 1"
	if got := buildPositionCommand(fen, nil); got != "position fen "+fen+"\n" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildGoTokens(t *testing.T) {
	got, err := buildGoTokens(Limits{Depth: 8, MoveTimeMillis: 300})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if want := []string{"go", "depth", "8", "movetime", "300"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v want %v", got, want)
	}
	if _, err := buildGoTokens(Limits{}); err == nil {
		t.Fatalf("expected error without limits")
	}
}

func TestParseInfo(t *testing.T) {
	idx, cand, ok := parseInfo("info depth 12 seldepth 18 multipv 2 score cp -45 nodes 1000 pv g1f3 d7d5 d2d4")
	if !ok || idx != 2 || cand.Move != "g1f3" || cand.EvalCP != -45 || len(cand.Principal) != 3 {
		t.Fatalf("unexpected parse: idx=%d cand=%+v ok=%v", idx, cand, ok)
	}
	_, cand, ok = parseInfo("info depth 20 score mate -3 pv h7h8q")
	if !ok || cand.EvalCP != -mateScore {
		t.Fatalf("unexpected mate parse: %+v", cand)
	}
	if _, _, ok := parseInfo("info string NNUE evaluation enabled"); ok {
		t.Fatalf("info string must not parse as candidate")
	}
}

func TestParseBestMove(t *testing.T) {
	cases := map[string]string{
		"bestmove e2e4 ponder e7e5": "e2e4",
		"bestmove (none)":           "",
		"bestmove 0000":             "",
		"bestmove":                  "",
	}
	for in, want := range cases {
		if got := parseBestMove(in); got != want {
			t.Fatalf("%q: got %q want %q", in, got, want)
		}
	}
}

func TestComputeSearchTimeout(t *testing.T) {
	if got := computeSearchTimeout(Limits{Depth: 1}); got != 6*time.Second {
		t.Fatalf("depth floor: %v", got)
	}
	if got := computeSearchTimeout(Limits{Depth: 200}); got != 20*time.Second {
		t.Fatalf("depth cap: %v", got)
	}
	if got := computeSearchTimeout(Limits{MoveTimeMillis: 1000}); got != 9*time.Second {
		t.Fatalf("movetime: %v", got)
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := (Options{SkillLevel: 21}).validate(); err == nil {
		t.Fatalf("expected skill range error")
	}
	if err := (Options{Elo: -1}).validate(); err == nil {
		t.Fatalf("expected elo error")
	}
	opt := Options{}.withDefaults()
	if opt.Threads != 1 || opt.HashMB != 16 || opt.MultiPV != 1 {
		t.Fatalf("unexpected defaults %+v", opt)
	}
}

func TestProcessSearchWithFakeEngine(t *testing.T) {
	bin := writeFakeEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	proc, err := StartProcess(ctx, bin, Options{SkillLevel: 5, Elo: 1500}, nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer proc.Close()

	if err := proc.NewGame(ctx); err != nil {
		t.Fatalf("new game: %v", err)
	}
	resp, err := proc.Search(ctx, SearchRequest{Limits: Limits{MoveTimeMillis: 10}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.BestMove != "e2e4" || len(resp.Candidates) != 1 || resp.Candidates[0].EvalCP != 31 {
		t.Fatalf("unexpected response %+v", resp)
	}

	resp, err = proc.Search(ctx, SearchRequest{Moves: []string{"e2e4"}, Limits: Limits{Depth: 1}})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if resp.BestMove != "e7e5" {
		t.Fatalf("unexpected best move %q", resp.BestMove)
	}
}

func TestPoolReusesProcesses(t *testing.T) {
	bin := writeFakeEngine(t)
	pool, err := NewPool(PoolConfig{BinaryPath: bin, Capacity: 1})
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// at capacity: a second acquire waits until the first is released
	waitCtx, waitCancel := context.WithTimeout(ctx, 50*time.Millisecond)
	if _, err := pool.Acquire(waitCtx); err == nil {
		t.Fatalf("expected acquire to block at capacity")
	}
	waitCancel()

	pool.Release(first, nil)
	second, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if second != first {
		t.Fatalf("expected the idle process to be reused")
	}

	pool.Release(second, context.DeadlineExceeded)
	if total, idle := pool.Stats(); total != 0 || idle != 0 {
		t.Fatalf("discarded process still counted: total=%d idle=%d", total, idle)
	}
}

func TestNewPoolMissingBinary(t *testing.T) {
	if _, err := NewPool(PoolConfig{BinaryPath: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("expected error for missing binary")
	}
	if _, err := NewPool(PoolConfig{}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
