package lichess

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/park285/Cheese-lichess-bot/internal/position"
	"github.com/park285/Cheese-lichess-bot/internal/session"
	"github.com/valyala/fasthttp"
)

const maxFrameSize = 1 << 20

type frame struct {
	data []byte
	err  error
}

// frameReader splits an ndjson body into non-blank lines. A pump goroutine owns the response and
// releases it when the body ends or the reader is closed; blocked reads are not interrupted.
type frameReader struct {
	frames chan frame
	stop   chan struct{}
	once   sync.Once
	final  error
}

func newFrameReader(resp *fasthttp.Response) *frameReader {
	r := &frameReader{
		frames: make(chan frame),
		stop:   make(chan struct{}),
	}
	go r.pump(resp)
	return r
}

func (r *frameReader) pump(resp *fasthttp.Response) {
	defer fasthttp.ReleaseResponse(resp)
	defer func() { _ = resp.CloseBodyStream() }()

	body := resp.BodyStream()
	if body == nil {
		// server sent the whole body at once
		body = bytes.NewReader(resp.Body())
	}
	r.read(body)
}

func (r *frameReader) read(body io.Reader) {
	br := bufio.NewReaderSize(body, 64*1024)
	for {
		line, err := br.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > maxFrameSize {
			if !r.emit(frame{err: fmt.Errorf("%w: frame of %d bytes", position.ErrMalformedPayload, len(line))}) {
				return
			}
		} else if len(line) > 0 {
			if !r.emit(frame{data: line}) {
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				err = fmt.Errorf("read stream: %w", err)
			}
			r.emit(frame{err: err})
			return
		}
	}
}

func (r *frameReader) emit(f frame) bool {
	select {
	case r.frames <- f:
		return true
	case <-r.stop:
		return false
	}
}

// Next returns the next non-blank line. io.EOF marks the end of the stream.
func (r *frameReader) Next(ctx context.Context) ([]byte, error) {
	if r.final != nil {
		return nil, r.final
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.stop:
		return nil, io.EOF
	case f := <-r.frames:
		if f.err != nil && !errors.Is(f.err, position.ErrMalformedPayload) {
			r.final = f.err
		}
		return f.data, f.err
	}
}

func (r *frameReader) Close() error {
	r.once.Do(func() { close(r.stop) })
	return nil
}

type gameStream struct {
	frames *frameReader
}

func (s *gameStream) Next(ctx context.Context) (position.Payload, error) {
	raw, err := s.frames.Next(ctx)
	if err != nil {
		return nil, err
	}
	return position.Decode(raw)
}

func (s *gameStream) Close() error { return s.frames.Close() }

type eventStream struct {
	frames *frameReader
}

func (s *eventStream) Next(ctx context.Context) (session.Event, error) {
	raw, err := s.frames.Next(ctx)
	if err != nil {
		if errors.Is(err, position.ErrMalformedPayload) {
			return session.Event{}, fmt.Errorf("%w: %v", session.ErrMalformedEvent, err)
		}
		return session.Event{}, err
	}
	return DecodeEvent(raw)
}

func (s *eventStream) Close() error { return s.frames.Close() }
