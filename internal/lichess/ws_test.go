package lichess

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/position"
	"github.com/park285/Cheese-lichess-bot/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func newRelay(t *testing.T, frames ...string) (*httptest.Server, chan subscribeFrame) {
	t.Helper()
	subs := make(chan subscribeFrame, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		var sub subscribeFrame
		if err := wsjson.Read(ctx, conn, &sub); err != nil {
			return
		}
		subs <- sub
		for _, f := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(f)); err != nil {
				return
			}
		}
		_ = conn.Close(websocket.StatusNormalClosure, "game over")
	}))
	t.Cleanup(srv.Close)
	return srv, subs
}

func TestWSSourceStreamsFrames(t *testing.T) {
	srv, subs := newRelay(t,
		`{"type":"gameFull","id":"g1","state":{"moves":"","status":"started"}}`,
		`{"moves":"e2e4 e7e5","status":"mate","winner":"black"}`,
	)
	src := NewWSSource("ws"+strings.TrimPrefix(srv.URL, "http"), "tok", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := src.StreamGameState(ctx, "g1")
	require.NoError(t, err)
	defer st.Close()

	p, err := st.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, position.Normalize(p).MoveCount())

	p, err = st.Next(ctx)
	require.NoError(t, err)
	assert.False(t, position.Normalize(p).Started())

	_, err = st.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)

	assert.Equal(t, subscribeFrame{Type: "subscribe", GameID: "g1"}, <-subs)
}

func TestWSSourceDialFailure(t *testing.T) {
	srv, _ := newRelay(t)
	src := NewWSSource("ws"+strings.TrimPrefix(srv.URL, "http"), "wrong", nil)

	_, err := src.StreamGameState(context.Background(), "g1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, session.ErrStreamUnavailable))
}

func TestWSSourceNotConfigured(t *testing.T) {
	var src *WSSource
	_, err := src.StreamGameState(context.Background(), "g1")
	assert.ErrorIs(t, err, session.ErrStreamUnavailable)
}

func TestNewGameServiceModes(t *testing.T) {
	c := NewClient("", "tok")
	assert.Same(t, c, NewGameService("http", c, nil, nil))
	assert.Same(t, c, NewGameService("", c, nil, nil))

	svc := NewGameService("WS", c, NewWSSource("", "tok", nil), nil)
	_, ok := svc.(*wsService)
	require.True(t, ok)

	_, err := svc.StreamGameState(context.Background(), "g1")
	assert.ErrorIs(t, err, session.ErrStreamUnavailable)
}
