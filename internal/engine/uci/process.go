// Package uci drives UCI chess engines (Stockfish) as child processes.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond
	mateScore            = 30000
)

var errEngineExited = errors.New("engine process exited")

type Options struct {
	Threads    int
	SkillLevel int
	HashMB     int
	MultiPV    int
	// Elo > 0 turns on UCI_LimitStrength.
	Elo int
}

func (o Options) withDefaults() Options {
	if o.Threads <= 0 {
		o.Threads = 1
	}
	if o.HashMB <= 0 {
		o.HashMB = 16
	}
	if o.MultiPV <= 0 {
		o.MultiPV = 1
	}
	return o
}

func (o Options) validate() error {
	if o.SkillLevel < 0 || o.SkillLevel > 20 {
		return fmt.Errorf("skill level %d out of range 0-20", o.SkillLevel)
	}
	if o.Elo < 0 {
		return fmt.Errorf("elo must be >= 0: %d", o.Elo)
	}
	return nil
}

type Limits struct {
	Depth          int
	MoveTimeMillis int
	NodeCap        int
}

type Candidate struct {
	Move      string
	EvalCP    int
	Principal []string
}

type SearchRequest struct {
	FEN    string
	Moves  []string
	Limits Limits
}

// SearchResponse.BestMove is empty when the engine answered "bestmove (none)".
type SearchResponse struct {
	Candidates []Candidate
	BestMove   string
}

// Process is one running engine. Searches are serialized; a single pump goroutine owns stdout.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	lines  chan string
	done   chan struct{}
	logger *zap.Logger

	writeMu  sync.Mutex
	searchMu sync.Mutex
	closeMu  sync.Mutex
	closed   bool
}

func StartProcess(ctx context.Context, binaryPath string, opt Options, logger *zap.Logger) (*Process, error) {
	opt = opt.withDefaults()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// the process outlives the acquiring request
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	p := &Process{
		cmd:    cmd,
		stdin:  stdin,
		lines:  make(chan string, 64),
		done:   make(chan struct{}),
		logger: logger,
	}
	go p.pump(stdout)

	if err := p.initialize(ctx, opt); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (p *Process) pump(r io.Reader) {
	defer close(p.lines)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		select {
		case p.lines <- strings.TrimSpace(sc.Text()):
		case <-p.done:
			return
		}
	}
}

// Search sends the position and a go command and waits for bestmove.
func (p *Process) Search(ctx context.Context, req SearchRequest) (SearchResponse, error) {
	p.searchMu.Lock()
	defer p.searchMu.Unlock()

	goTokens, err := buildGoTokens(req.Limits)
	if err != nil {
		return SearchResponse{}, err
	}
	if err := p.send(buildPositionCommand(req.FEN, req.Moves)); err != nil {
		return SearchResponse{}, fmt.Errorf("send position: %w", err)
	}
	if err := p.send(strings.Join(goTokens, " ") + "\n"); err != nil {
		return SearchResponse{}, fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, computeSearchTimeout(req.Limits))
	defer cancel()

	candidates := make(map[int]Candidate)
	for {
		line, err := p.readLine(searchCtx)
		if err != nil {
			p.logger.Warn("uci_search_read_error",
				zap.Int("ply", len(req.Moves)),
				zap.Any("limits", req.Limits),
				zap.Error(err),
			)
			return SearchResponse{}, fmt.Errorf("read line: %w", err)
		}
		switch {
		case strings.HasPrefix(line, "info "):
			if idx, cand, ok := parseInfo(line); ok {
				candidates[idx] = cand
			}
		case strings.HasPrefix(line, "bestmove"):
			return SearchResponse{
				Candidates: collapseCandidates(candidates),
				BestMove:   parseBestMove(line),
			}, nil
		}
	}
}

func (p *Process) EnsureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := p.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := p.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// NewGame clears engine state between games sharing one process.
func (p *Process) NewGame(ctx context.Context) error {
	if err := p.send("ucinewgame\n"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}
	for attempt := 1; ; attempt++ {
		err := p.EnsureReady(ctx)
		if err == nil || attempt == newGameRetryAttempts {
			return err
		}
		p.logger.Debug("uci_ready_retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
}

func (p *Process) Close() error {
	p.closeMu.Lock()
	defer p.closeMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	_ = p.send("quit\n")
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// killed on purpose
		return nil
	}
	return err
}

func (p *Process) initialize(ctx context.Context, opt Options) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := p.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := p.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}
	for _, cmd := range optionCommands(opt) {
		if err := p.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	if err := p.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := p.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func optionCommands(opt Options) []string {
	cmds := []string{
		fmt.Sprintf("setoption name Threads value %d\n", opt.Threads),
		fmt.Sprintf("setoption name Hash value %d\n", opt.HashMB),
		fmt.Sprintf("setoption name Skill Level value %d\n", opt.SkillLevel),
		fmt.Sprintf("setoption name MultiPV value %d\n", opt.MultiPV),
		"setoption name Move Overhead value 100\n",
	}
	if opt.Elo > 0 {
		cmds = append(cmds,
			"setoption name UCI_LimitStrength value true\n",
			fmt.Sprintf("setoption name UCI_Elo value %d\n", opt.Elo),
		)
	}
	return cmds
}

func (p *Process) send(msg string) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_, err := io.WriteString(p.stdin, msg)
	return err
}

func (p *Process) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := p.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (p *Process) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", errEngineExited
		}
		return line, nil
	}
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		sb.WriteString("position startpos")
	} else {
		sb.WriteString("position fen ")
		sb.WriteString(fen)
	}
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	sb.WriteString("\n")
	return sb.String()
}

func buildGoTokens(l Limits) ([]string, error) {
	args := []string{"go"}
	if l.Depth > 0 {
		args = append(args, "depth", strconv.Itoa(l.Depth))
	}
	if l.MoveTimeMillis > 0 {
		args = append(args, "movetime", strconv.Itoa(l.MoveTimeMillis))
	}
	if l.NodeCap > 0 {
		args = append(args, "nodes", strconv.Itoa(l.NodeCap))
	}
	if len(args) == 1 {
		return nil, errors.New("no search limits specified")
	}
	return args, nil
}

func computeSearchTimeout(l Limits) time.Duration {
	if l.MoveTimeMillis > 0 {
		return time.Duration(l.MoveTimeMillis+2000) * time.Millisecond * 3
	}
	if l.Depth > 0 {
		base := time.Duration(l.Depth) * 300 * time.Millisecond
		return min(max(base, 6*time.Second), 20*time.Second)
	}
	return 6 * time.Second
}

func parseBestMove(line string) string {
	parts := strings.Fields(line)
	if len(parts) < 2 || parts[1] == "(none)" || parts[1] == "0000" {
		return ""
	}
	return parts[1]
}

// parseInfo extracts (multipv index, candidate) from an "info ... pv ..." line.
func parseInfo(line string) (int, Candidate, bool) {
	parts := strings.Fields(line)
	multipv := 1
	evalCP := 0
	pvIdx := -1

	for i := 0; i < len(parts) && pvIdx == -1; i++ {
		switch parts[i] {
		case "multipv":
			if i+1 < len(parts) {
				if v, err := strconv.Atoi(parts[i+1]); err == nil {
					multipv = v
				}
				i++
			}
		case "score":
			if i+2 < len(parts) {
				if v, err := strconv.Atoi(parts[i+2]); err == nil {
					switch parts[i+1] {
					case "cp":
						evalCP = v
					case "mate":
						evalCP = mateScore
						if v < 0 {
							evalCP = -mateScore
						}
					}
				}
				i += 2
			}
		case "pv":
			pvIdx = i + 1
		}
	}

	if pvIdx == -1 || pvIdx >= len(parts) {
		return 0, Candidate{}, false
	}
	principal := append([]string(nil), parts[pvIdx:]...)
	return multipv, Candidate{Move: principal[0], EvalCP: evalCP, Principal: principal}, true
}

func collapseCandidates(m map[int]Candidate) []Candidate {
	if len(m) == 0 {
		return nil
	}
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
