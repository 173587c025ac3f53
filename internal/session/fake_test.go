package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/park285/Cheese-lichess-bot/internal/dispatch"
	"github.com/park285/Cheese-lichess-bot/internal/position"
)

type streamItem struct {
	payload position.Payload
	err     error
}

// fakeStream replays items, then returns io.EOF (or blocks until ctx is done when hold is set).
type fakeStream struct {
	items []streamItem
	idx   int
	hold  bool
}

func (f *fakeStream) Next(ctx context.Context) (position.Payload, error) {
	if f.idx >= len(f.items) {
		if f.hold {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return nil, io.EOF
	}
	it := f.items[f.idx]
	f.idx++
	return it.payload, it.err
}

func (f *fakeStream) Close() error { return nil }

type eventItem struct {
	ev  Event
	err error
}

type fakeEvents struct {
	items []eventItem
	idx   int
}

func (f *fakeEvents) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if f.idx >= len(f.items) {
		return Event{}, io.EOF
	}
	it := f.items[f.idx]
	f.idx++
	return it.ev, it.err
}

func (f *fakeEvents) Close() error { return nil }

type fetchResult struct {
	payload position.Payload
	err     error
}

type fakeService struct {
	mu sync.Mutex

	streams     map[string]*fakeStream
	streamErr   error
	streamCalls map[string]int

	// fetches are consumed in order; the last one repeats.
	fetches map[string][]fetchResult

	// submitErrs are consumed in order; nil afterwards.
	submitErrs []error
	submitted  []string

	eventStreams []EventStream
	eventErrs    []error

	acceptErr error
	accepted  []string
	declined  map[string]string
}

func newFakeService() *fakeService {
	return &fakeService{
		streams:     make(map[string]*fakeStream),
		streamCalls: make(map[string]int),
		fetches:     make(map[string][]fetchResult),
		declined:    make(map[string]string),
	}
}

func (f *fakeService) StreamEvents(context.Context) (EventStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.eventErrs) > 0 {
		err := f.eventErrs[0]
		f.eventErrs = f.eventErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.eventStreams) == 0 {
		return &fakeEvents{}, nil
	}
	es := f.eventStreams[0]
	f.eventStreams = f.eventStreams[1:]
	return es, nil
}

func (f *fakeService) AcceptChallenge(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.acceptErr != nil {
		return f.acceptErr
	}
	f.accepted = append(f.accepted, id)
	return nil
}

func (f *fakeService) DeclineChallenge(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declined[id] = reason
	return nil
}

func (f *fakeService) StreamGameState(_ context.Context, gameID string) (PayloadStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamCalls[gameID]++
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	st, ok := f.streams[gameID]
	if !ok {
		return nil, ErrStreamUnavailable
	}
	return st, nil
}

func (f *fakeService) FetchGameState(_ context.Context, gameID string) (position.Payload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.fetches[gameID]
	if len(list) == 0 {
		return nil, errors.New("no export configured")
	}
	r := list[0]
	if len(list) > 1 {
		f.fetches[gameID] = list[1:]
	}
	return r.payload, r.err
}

func (f *fakeService) SubmitMove(_ context.Context, _ string, move string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, move)
	if len(f.submitErrs) > 0 {
		err := f.submitErrs[0]
		f.submitErrs = f.submitErrs[1:]
		return err
	}
	return nil
}

func (f *fakeService) Submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}

func (f *fakeService) Accepted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.accepted...)
}

func (f *fakeService) Declined() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.declined))
	for k, v := range f.declined {
		out[k] = v
	}
	return out
}

func (f *fakeService) StreamCalls(gameID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streamCalls[gameID]
}

type selectorFunc func(ctx context.Context, pos position.Position) (string, error)

func (fn selectorFunc) SelectMove(ctx context.Context, pos position.Position) (string, error) {
	return fn(ctx, pos)
}

func fixedSelector(move string) selectorFunc {
	return func(context.Context, position.Position) (string, error) { return move, nil }
}

type transitionRecorder struct {
	NopRecorder
	mu          sync.Mutex
	transitions []State
	attempts    []dispatch.Outcome
	closed      int
}

func (r *transitionRecorder) SessionTransition(_ context.Context, info HandleInfo, _ State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, info.State)
	return nil
}

func (r *transitionRecorder) MoveAttempted(_ context.Context, _ HandleInfo, _ int, res dispatch.Result) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, res.Outcome)
	return nil
}

func (r *transitionRecorder) SessionClosed(context.Context, HandleInfo, *position.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func frame(t *testing.T, raw string) position.Payload {
	t.Helper()
	p, err := position.Decode([]byte(raw))
	if err != nil {
		t.Fatalf("decode %q: %v", raw, err)
	}
	return p
}

func frames(t *testing.T, raws ...string) []streamItem {
	t.Helper()
	out := make([]streamItem, 0, len(raws))
	for _, raw := range raws {
		out = append(out, streamItem{payload: frame(t, raw)})
	}
	return out
}

func fetched(t *testing.T, raws ...string) []fetchResult {
	t.Helper()
	out := make([]fetchResult, 0, len(raws))
	for _, raw := range raws {
		out = append(out, fetchResult{payload: frame(t, raw)})
	}
	return out
}
