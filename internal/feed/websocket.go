// Package feed connects to the remote telemetry push feed over websockets.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/i474232898/bike-tracker/internal/tracking"
)

// Config describes the feed endpoint.
type Config struct {
	URL   string
	Token string

	// DialTimeout bounds the websocket handshake. Default 10s.
	DialTimeout time.Duration
	// WriteTimeout bounds control message writes. Default 5s.
	WriteTimeout time.Duration
	// MaxFrameBytes limits a single inbound frame. Default 1 MiB.
	MaxFrameBytes int64
}

// Dialer implements tracking.Feed.
type Dialer struct {
	cfg    Config
	url    string
	dialer *websocket.Dialer
}

// NewDialer validates cfg and builds a Dialer. The token, when set, is
// passed as the "token" query parameter.
func NewDialer(cfg Config) (*Dialer, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse feed url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("feed url scheme must be ws or wss, got %q", u.Scheme)
	}
	if cfg.Token != "" {
		q := u.Query()
		q.Set("token", cfg.Token)
		u.RawQuery = q.Encode()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = 1 << 20
	}

	return &Dialer{
		cfg: cfg,
		url: u.String(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.DialTimeout,
			Proxy:            websocket.DefaultDialer.Proxy,
		},
	}, nil
}

// Endpoint returns the URL without the token, for logging.
func (d *Dialer) Endpoint() string {
	return d.cfg.URL
}

func (d *Dialer) Dial(ctx context.Context) (tracking.FeedConn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial feed: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	ws.SetReadLimit(d.cfg.MaxFrameBytes)
	return &Conn{ws: ws, writeTimeout: d.cfg.WriteTimeout}, nil
}

// Conn is an open websocket feed connection.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
}

func (c *Conn) Send(ctx context.Context, msg tracking.SubscribeMessage) error {
	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.ws.SetWriteDeadline(deadline)
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Command, err)
	}
	return nil
}

func (c *Conn) Receive() (tracking.Frame, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return tracking.Frame{}, err
		}
		switch kind {
		case websocket.TextMessage:
			return tracking.Frame{Data: data}, nil
		case websocket.BinaryMessage:
			return tracking.Frame{Binary: true, Data: data}, nil
		}
	}
}

// Close sends a close frame on a best-effort basis and closes the socket.
// Safe to call more than once and concurrently with Receive.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
