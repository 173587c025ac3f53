// Package lichess is the game-service client: a fasthttp JSON/ndjson client for the Bot API and an
// optional WebSocket push source for game state.
package lichess

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/dispatch"
	"github.com/park285/Cheese-lichess-bot/internal/position"
	"github.com/park285/Cheese-lichess-bot/internal/session"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://lichess.org"

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("lichess api error: status=%d body=%s", e.Status, e.Body)
}

type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Title    string `json:"title"`
}

type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *fasthttp.Client
	stream    *fasthttp.Client
	logger    *zap.Logger

	defaultTimeout time.Duration
	retryMax       int
}

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.defaultTimeout = d
		}
	}
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDial replaces the dialer of both the request and the streaming client.
func WithDial(dial fasthttp.DialFunc) Option {
	return func(c *Client) {
		c.http.Dial = dial
		c.stream.Dial = dial
	}
}

func NewClient(baseURL, token string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     strings.TrimSpace(token),
		userAgent: "cheese-lichess-bot",
		http:      &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		// ndjson streams stay open for the whole game; no read deadline.
		stream:         &fasthttp.Client{StreamResponseBody: true, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 256},
		logger:         zap.NewNop(),
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Account(ctx context.Context) (*Account, error) {
	var acc Account
	if err := c.do(ctx, fasthttp.MethodGet, "/api/account", nil, &acc, true); err != nil {
		return nil, err
	}
	return &acc, nil
}

func (c *Client) AcceptChallenge(ctx context.Context, challengeID string) error {
	return c.do(ctx, fasthttp.MethodPost, "/api/challenge/"+url.PathEscape(challengeID)+"/accept", nil, nil, false)
}

func (c *Client) DeclineChallenge(ctx context.Context, challengeID, reason string) error {
	var form url.Values
	if reason != "" {
		form = url.Values{"reason": {reason}}
	}
	return c.do(ctx, fasthttp.MethodPost, "/api/challenge/"+url.PathEscape(challengeID)+"/decline", form, nil, false)
}

// SubmitMove posts one UCI move. Client errors (4xx other than 429) wrap dispatch.ErrRejected;
// everything else is a transport failure. Submissions are never retried here.
func (c *Client) SubmitMove(ctx context.Context, gameID, move string) error {
	path := "/api/bot/game/" + url.PathEscape(gameID) + "/move/" + url.PathEscape(move)
	err := c.do(ctx, fasthttp.MethodPost, path, nil, nil, false)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && isRejection(apiErr.Status) {
		return fmt.Errorf("%w: %w", dispatch.ErrRejected, err)
	}
	return err
}

// FetchGameState polls the JSON export of a game. Its moves are in SAN.
func (c *Client) FetchGameState(ctx context.Context, gameID string) (position.Payload, error) {
	path := "/game/export/" + url.PathEscape(gameID) + "?moves=true&tags=false&clocks=false&evals=false&opening=false"
	var raw json.RawMessage
	if err := c.do(ctx, fasthttp.MethodGet, path, nil, &raw, true); err != nil {
		return nil, fmt.Errorf("export game %s: %w", gameID, err)
	}
	p, err := position.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("export game %s: %w", gameID, err)
	}
	return p, nil
}

// StreamEvents opens the account event stream.
func (c *Client) StreamEvents(ctx context.Context) (session.EventStream, error) {
	frames, err := c.openStream(ctx, "/api/stream/event")
	if err != nil {
		return nil, err
	}
	return &eventStream{frames: frames}, nil
}

// StreamGameState opens the bot game stream.
func (c *Client) StreamGameState(ctx context.Context, gameID string) (session.PayloadStream, error) {
	frames, err := c.openStream(ctx, "/api/bot/game/stream/"+url.PathEscape(gameID))
	if err != nil {
		return nil, err
	}
	return &gameStream{frames: frames}, nil
}

func (c *Client) newRequest(method, path string) *fasthttp.Request {
	req := fasthttp.AcquireRequest()
	req.Header.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.userAgent != "" {
		req.Header.SetUserAgent(c.userAgent)
	}
	return req
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any, retry bool) error {
	req := c.newRequest(method, path)
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.SetContentType("application/x-www-form-urlencoded")
		req.SetBodyString(form.Encode())
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("request %s %s: %w", method, path, err)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = &APIError{Status: status, Body: truncate(string(resp.Body()), 512)}
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			c.logger.Debug("lichess_retry", zap.String("path", path), zap.Int("status", status), zap.Int("attempt", attempt))
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	}

	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

// openStream starts an ndjson request and hands the response to a frameReader, which owns it
// from then on. Only the wait for response headers is bounded by ctx and the client timeout; a
// deadline on the connection would also cut the body.
func (c *Client) openStream(ctx context.Context, path string) (*frameReader, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := c.newRequest(fasthttp.MethodGet, path)
	req.Header.Set("Accept", "application/x-ndjson")
	resp := fasthttp.AcquireResponse()

	done := make(chan error, 1)
	go func() {
		err := c.stream.Do(req, resp)
		fasthttp.ReleaseRequest(req)
		done <- err
	}()

	timer := time.NewTimer(time.Until(c.computeDeadline(ctx)))
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		abandonStream(done, resp)
		return nil, fmt.Errorf("open stream %s: %w", path, ctx.Err())
	case <-timer.C:
		abandonStream(done, resp)
		return nil, fmt.Errorf("open stream %s: %w", path, fasthttp.ErrTimeout)
	}

	if err != nil {
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("open stream %s: %w", path, err)
	}
	if status := resp.StatusCode(); status < 200 || status >= 300 {
		body := truncate(string(resp.Body()), 512)
		fasthttp.ReleaseResponse(resp)
		return nil, fmt.Errorf("open stream %s: %w", path, &APIError{Status: status, Body: body})
	}
	c.logger.Debug("lichess_stream_open", zap.String("path", path))
	return newFrameReader(resp), nil
}

// abandonStream releases resp once the request that was given up on returns.
func abandonStream(done <-chan error, resp *fasthttp.Response) {
	go func() {
		if err := <-done; err == nil {
			_ = resp.CloseBodyStream()
		}
		fasthttp.ReleaseResponse(resp)
	}()
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		attempt = 6
	}
	base := 100 * time.Millisecond
	return time.Duration(1<<uint(attempt-1)) * base
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func isRejection(code int) bool {
	return code >= 400 && code < 500 && code != 429
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
