package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"BrentShift/internal/domain/models"
	applogger "BrentShift/pkg/logger"
)

// StreamPath is the server route for live analysis progress.
const StreamPath = "/api/change-points/stream"

// ErrNotConnected is returned by Read before Connect succeeds.
var ErrNotConnected = errors.New("stream not connected")

// Client follows one streamed analysis over a websocket.
type Client struct {
	baseURL      string
	pingInterval time.Duration
	dialer       *websocket.Dialer
	l            *applogger.Logger

	mu   sync.Mutex
	conn *websocket.Conn
}

// Option configures Client.
type Option func(*Client)

func WithPingInterval(d time.Duration) Option { return func(c *Client) { c.pingInterval = d } }

func WithLogger(l *applogger.Logger) Option { return func(c *Client) { c.l = l } }

// New creates a client for the server at baseURL (http, https, ws or wss).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		pingInterval: 20 * time.Second,
		dialer:       websocket.DefaultDialer,
		l:            applogger.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL builds the stream address for req.
func (c *Client) URL(req models.StreamRequest) (string, error) {
	u, err := url.Parse(c.baseURL + StreamPath)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	q := url.Values{}
	if req.Column != "" {
		q.Set("column", req.Column)
	}
	if req.Start != "" {
		q.Set("start", req.Start)
	}
	if req.End != "" {
		q.Set("end", req.End)
	}
	if req.Every > 0 {
		q.Set("every", strconv.Itoa(req.Every))
	}
	if req.NumChains != nil {
		q.Set("num_chains", strconv.Itoa(*req.NumChains))
	}
	if req.WarmupSweeps != nil {
		q.Set("warmup_sweeps", strconv.Itoa(*req.WarmupSweeps))
	}
	if req.SampleSweeps != nil {
		q.Set("sample_sweeps", strconv.Itoa(*req.SampleSweeps))
	}
	if req.BaseSeed != nil {
		q.Set("base_seed", strconv.FormatUint(*req.BaseSeed, 10))
	}
	if req.Diagnostics != nil {
		q.Set("diagnostics", strconv.FormatBool(*req.Diagnostics))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect opens the websocket, which starts the analysis on the server.
func (c *Client) Connect(ctx context.Context, req models.StreamRequest) error {
	u, err := c.URL(req)
	if err != nil {
		return err
	}
	conn, resp, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("stream connect: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("stream connect: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.l.Debug("stream connected", applogger.String("url", u))
	return nil
}

// Read returns the server frames. Progress frames are dropped when the
// consumer falls behind; the closing result or error frame never is. Both
// channels are closed when the server ends the stream or ctx is done.
func (c *Client) Read(ctx context.Context) (<-chan models.StreamFrame, <-chan error) {
	frames := make(chan models.StreamFrame, 64)
	errs := make(chan error, 1)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		errs <- ErrNotConnected
		close(frames)
		close(errs)
		return frames, errs
	}

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// unblock the reader
				_ = conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	go func() {
		defer close(errs)
		defer close(frames)
		defer close(done)
		for {
			_, b, err := conn.ReadMessage()
			if err != nil {
				switch {
				case ctx.Err() != nil:
					errs <- ctx.Err()
				case websocket.IsCloseError(err, websocket.CloseNormalClosure):
				default:
					errs <- fmt.Errorf("stream read: %w", err)
				}
				return
			}
			var f models.StreamFrame
			if err := json.Unmarshal(b, &f); err != nil {
				c.l.Warn("stream frame skipped", applogger.Error(err))
				continue
			}
			if f.Type == models.FrameProgress {
				select {
				case frames <- f:
				default:
				}
				continue
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return frames, errs
}

// Close closes the connection, which cancels an unfinished analysis.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
