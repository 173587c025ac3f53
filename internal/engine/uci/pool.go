package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

type PoolConfig struct {
	BinaryPath string
	Options    Options
	// Capacity bounds the number of live processes; <= 0 picks a value from the CPU count.
	Capacity int
	Logger   *zap.Logger
}

// Pool hands out engine processes configured with one set of options. Processes are started on
// demand up to Capacity; callers beyond that wait for a release.
type Pool struct {
	binaryPath string
	opt        Options
	capacity   int
	logger     *zap.Logger
	start      func(ctx context.Context) (*Process, error)

	mu     sync.Mutex
	total  int
	closed bool
	idle   chan *Process
	// freed wakes waiters when a discarded process frees a slot.
	freed  chan struct{}
}

var (
	errPoolAtCapacity = errors.New("engine pool at capacity")
	ErrPoolClosed     = errors.New("engine pool closed")
)

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, errors.New("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("stockfish binary check: %w", err)
	}
	opt := cfg.Options.withDefaults()
	if err := opt.validate(); err != nil {
		return nil, err
	}
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		binaryPath: cfg.BinaryPath,
		opt:        opt,
		capacity:   capacity,
		logger:     logger,
		idle:       make(chan *Process, capacity),
		freed:      make(chan struct{}, 1),
	}
	p.start = func(ctx context.Context) (*Process, error) {
		return StartProcess(ctx, p.binaryPath, p.opt, p.logger)
	}
	return p, nil
}

// Acquire returns a ready process. It must be handed back with Release.
func (p *Pool) Acquire(ctx context.Context) (*Process, error) {
	for {
		select {
		case proc := <-p.idle:
			if ready := p.checkIdle(ctx, proc); ready != nil {
				return ready, nil
			}
			continue
		default:
		}

		proc, err := p.create(ctx)
		if err == nil {
			return proc, nil
		}
		if !errors.Is(err, errPoolAtCapacity) {
			return nil, err
		}

		select {
		case proc := <-p.idle:
			if ready := p.checkIdle(ctx, proc); ready != nil {
				return ready, nil
			}
		case <-p.freed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) checkIdle(ctx context.Context, proc *Process) *Process {
	if proc == nil {
		return nil
	}
	if err := proc.EnsureReady(ctx); err != nil {
		p.logger.Warn("uci_pool_stale_process", zap.Error(err))
		p.discard(proc)
		return nil
	}
	return proc
}

// Release returns proc to the pool. A non-nil err means the process is in an unknown state and
// is discarded.
func (p *Pool) Release(proc *Process, err error) {
	if proc == nil {
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if err != nil || closed {
		p.discard(proc)
		return
	}
	select {
	case p.idle <- proc:
	default:
		p.discard(proc)
	}
}

// Close stops idle processes. Processes still acquired are stopped on Release.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	var errs []error
	for {
		select {
		case proc := <-p.idle:
			if err := proc.Close(); err != nil {
				errs = append(errs, err)
			}
			p.decrement()
		default:
			return errors.Join(errs...)
		}
	}
}

// Stats reports live and idle process counts.
func (p *Pool) Stats() (total, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, len(p.idle)
}

func (p *Pool) create(ctx context.Context) (*Process, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if p.total >= p.capacity {
		p.mu.Unlock()
		return nil, errPoolAtCapacity
	}
	p.total++
	p.mu.Unlock()

	proc, err := p.start(ctx)
	if err != nil {
		p.decrement()
		return nil, err
	}
	p.logger.Debug("uci_pool_started", zap.Int("capacity", p.capacity))
	return proc, nil
}

func (p *Pool) discard(proc *Process) {
	_ = proc.Close()
	p.decrement()
}

func (p *Pool) decrement() {
	p.mu.Lock()
	if p.total > 0 {
		p.total--
	}
	p.mu.Unlock()
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

func defaultCapacity() int {
	return min(max(runtime.NumCPU(), 2), 4)
}
