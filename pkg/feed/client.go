package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Sumatoshi-tech/fuzzdash/pkg/mathutil"
)

// Default reconnect backoff bounds.
const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Handler consumes one decoded event. The client invokes it from a single
// goroutine, so handlers need no locking of their own.
type Handler func(Event)

// Client maintains a websocket connection to the fuzzing transport, decoding
// and dispatching events until its context is cancelled. On every (re)connect
// it invokes the connect hook first, so the owning session can clear per-test
// state before the feed replays its bulk snapshot. A full replay followed by
// a resumed incremental feed then cannot double-count.
type Client struct {
	url        string
	handler    Handler
	onConnect  func()
	logger     *slog.Logger
	dialer     *websocket.Dialer
	minBackoff time.Duration
	maxBackoff time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithConnectHook sets the hook invoked after every successful (re)connect,
// before any events are dispatched.
func WithConnectHook(hook func()) ClientOption {
	return func(c *Client) { c.onConnect = hook }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithBackoff overrides the reconnect backoff bounds. Non-positive values
// keep the defaults.
func WithBackoff(minWait, maxWait time.Duration) ClientOption {
	return func(c *Client) {
		if minWait > 0 {
			c.minBackoff = minWait
		}

		if maxWait >= c.minBackoff {
			c.maxBackoff = maxWait
		}
	}
}

// NewClient creates a feed client for the given websocket URL.
func NewClient(url string, handler Handler, opts ...ClientOption) *Client {
	c := &Client{
		url:        url,
		handler:    handler,
		logger:     slog.Default(),
		dialer:     websocket.DefaultDialer,
		minBackoff: defaultMinBackoff,
		maxBackoff: defaultMaxBackoff,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run connects and dispatches events until the context is cancelled. Dial and
// read failures trigger a reconnect with exponential backoff; they are never
// surfaced as fatal.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.minBackoff

	for {
		err := c.runConn(ctx)
		if err != nil && errors.Is(err, context.Canceled) {
			return nil
		}

		if err != nil {
			c.logger.WarnContext(ctx, "feed connection lost",
				slog.String("url", c.url), slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff = c.nextBackoff(backoff)
	}
}

// nextBackoff doubles the current wait, clamped to the configured maximum.
func (c *Client) nextBackoff(cur time.Duration) time.Duration {
	return mathutil.Min(cur*2, c.maxBackoff)
}

// runConn handles one connection lifetime.
func (c *Client) runConn(ctx context.Context) error {
	conn, resp, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	defer conn.Close()

	connID := uuid.New().String()
	c.logger.InfoContext(ctx, "feed connected",
		slog.String("url", c.url), slog.String("conn_id", connID))

	if c.onConnect != nil {
		c.onConnect()
	}

	// Unblock the read loop on cancellation.
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, readErr := conn.ReadMessage()
		if readErr != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}

			return fmt.Errorf("read message: %w", readErr)
		}

		ev, decodeErr := Decode(data)
		if decodeErr != nil {
			// One malformed event must not take the dashboard down.
			c.logger.WarnContext(ctx, "skipping malformed event",
				slog.String("conn_id", connID), slog.Any("error", decodeErr))

			continue
		}

		c.handler(ev)
	}
}
