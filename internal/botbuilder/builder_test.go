package botbuilder

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/Cheese-lichess-bot/internal/config"
	"github.com/park285/Cheese-lichess-bot/internal/lichess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func fakeLichess(t *testing.T, status int) lichess.Option {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) != "/api/account" {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		ctx.SetStatusCode(status)
		ctx.SetBodyString(`{"id":"cheesebot","username":"CheeseBot","title":"BOT"}`)
	}}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })
	return lichess.WithDial(func(string) (net.Conn, error) { return ln.Dial() })
}

func baseConfig() *config.AppConfig {
	return &config.AppConfig{
		LichessBaseURL:     "http://lichess.test",
		LichessToken:       "lip_x",
		StreamTransport:    "http",
		PollInterval:       time.Second,
		HTTPTimeout:        time.Second,
		MaxConcurrentGames: 2,
		AcceptChallenges:   true,
		AllowedVariants:    []string{"standard"},
	}
}

func TestNewRandomOnly(t *testing.T) {
	deps, err := New(context.Background(), baseConfig(), nil, fakeLichess(t, fasthttp.StatusOK))
	require.NoError(t, err)
	defer deps.Close()

	assert.Equal(t, "CheeseBot", deps.Account.Username)
	assert.NotNil(t, deps.Supervisor)
	assert.Nil(t, deps.Stockfish)
	assert.Nil(t, deps.Store)
	assert.Nil(t, deps.Archive)
	assert.Same(t, deps.Client, deps.Service)
}

func TestNewWithRedisAndWebSocket(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.RedisURL = fmt.Sprintf("redis://%s/0", mr.Addr())
	cfg.StreamTransport = "ws"
	cfg.StreamWSURL = "ws://relay.test/game/{gameId}"

	deps, err := New(context.Background(), cfg, nil, fakeLichess(t, fasthttp.StatusOK))
	require.NoError(t, err)
	defer deps.Close()

	require.NotNil(t, deps.Store)
	assert.NotSame(t, deps.Client, deps.Service)
}

func TestNewRejectsBadToken(t *testing.T) {
	_, err := New(context.Background(), baseConfig(), nil, fakeLichess(t, fasthttp.StatusUnauthorized))
	require.Error(t, err)
}

func TestNewMissingEngineBinary(t *testing.T) {
	cfg := baseConfig()
	cfg.StockfishPath = "/nonexistent/stockfish"
	_, err := New(context.Background(), cfg, nil, fakeLichess(t, fasthttp.StatusOK))
	require.Error(t, err)
}

func TestNewNilConfig(t *testing.T) {
	_, err := New(context.Background(), nil, nil)
	require.Error(t, err)
}
