package lichess

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/position"
	"github.com/park285/Cheese-lichess-bot/internal/session"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// subscribeFrame asks the push relay for one game's state frames.
type subscribeFrame struct {
	Type   string `json:"t"`
	GameID string `json:"gameId"`
}

// WSSource streams game state over a WebSocket relay. The URL may contain a {gameId}
// placeholder; otherwise the game is selected with a subscribe frame after the handshake.
type WSSource struct {
	wsURL        string
	token        string
	pingInterval time.Duration
	dialTimeout  time.Duration
	logger       *zap.Logger
}

func NewWSSource(wsURL, token string, logger *zap.Logger) *WSSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSSource{
		wsURL:        strings.TrimSpace(wsURL),
		token:        strings.TrimSpace(token),
		pingInterval: 30 * time.Second,
		dialTimeout:  10 * time.Second,
		logger:       logger,
	}
}

func (s *WSSource) buildHeaders() http.Header {
	h := http.Header{}
	if s.token != "" {
		h.Set("Authorization", "Bearer "+s.token)
	}
	return h
}

func (s *WSSource) StreamGameState(ctx context.Context, gameID string) (session.PayloadStream, error) {
	if s == nil || s.wsURL == "" {
		return nil, session.ErrStreamUnavailable
	}
	target := s.wsURL
	templated := strings.Contains(target, "{gameId}")
	if templated {
		target = strings.ReplaceAll(target, "{gameId}", url.PathEscape(gameID))
	}

	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, target, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      s.buildHeaders(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", session.ErrStreamUnavailable, target, err)
	}
	conn.SetReadLimit(maxFrameSize)

	if !templated {
		if err := wsjson.Write(dialCtx, conn, subscribeFrame{Type: "subscribe", GameID: gameID}); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
			return nil, fmt.Errorf("%w: subscribe: %v", session.ErrStreamUnavailable, err)
		}
	}

	ws := &wsStream{conn: conn, gameID: gameID, logger: s.logger, stopCh: make(chan struct{})}
	ws.wg.Add(1)
	go ws.pingLoop(s.pingInterval)
	return ws, nil
}

type wsStream struct {
	conn   *websocket.Conn
	gameID string
	logger *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Next reads one text message. A normal close by the relay is reported as io.EOF.
func (w *wsStream) Next(ctx context.Context) (position.Payload, error) {
	typ, data, err := w.conn.Read(ctx)
	if err != nil {
		if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("ws read: %w", err)
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("%w: binary ws message", position.ErrMalformedPayload)
	}
	return position.Decode(data)
}

func (w *wsStream) pingLoop(interval time.Duration) {
	defer w.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-w.stopCh:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := w.conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				w.logger.Warn("ws_ping_failed", zap.String("game_id", w.gameID), zap.Error(err))
				_ = w.conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (w *wsStream) Close() error {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		// the relay may already have closed the connection
		_ = w.conn.Close(websocket.StatusNormalClosure, "")
		w.wg.Wait()
	})
	return nil
}
