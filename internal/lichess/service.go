package lichess

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/Cheese-lichess-bot/internal/session"
	"go.uber.org/zap"
)

type transportMode string

const (
	transportHTTP transportMode = "http"
	transportWS   transportMode = "ws"
)

// NewGameService selects where game-state streams come from. Every other call goes through the
// HTTP client. In ws mode a failed dial surfaces as ErrStreamUnavailable, which makes the session
// poll the export endpoint.
func NewGameService(mode string, c *Client, ws *WSSource, logger *zap.Logger) session.GameService {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch transportMode(strings.ToLower(strings.TrimSpace(mode))) {
	case transportWS:
		return &wsService{Client: c, ws: ws, logger: logger}
	default:
		return c
	}
}

// wsService is the HTTP client with game-state streams read from a WebSocket relay.
type wsService struct {
	*Client
	ws     *WSSource
	logger *zap.Logger
}

func (s *wsService) StreamGameState(ctx context.Context, gameID string) (session.PayloadStream, error) {
	if s.ws == nil {
		return nil, errors.New("ws stream source not configured")
	}
	st, err := s.ws.StreamGameState(ctx, gameID)
	if err != nil {
		s.logger.Warn("ws_stream_unavailable", zap.String("game_id", gameID), zap.Error(err))
		return nil, err
	}
	return st, nil
}

var (
	_ session.GameService = (*Client)(nil)
	_ session.GameService = (*wsService)(nil)
)
