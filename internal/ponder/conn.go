package ponder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned when an operation needs a live websocket and
// none exists. Callers inside the session reconnect instead; anything else
// hitting this is bypassing the state machine.
var ErrNotConnected = errors.New("ponder: websocket not connected")

// endpointURL builds the synthesis endpoint with embedded credentials. The
// base URL is normally a bare host (wss is assumed); an explicit ws:// or
// wss:// scheme is honored for self-hosted deployments.
func (c *Client) endpointURL() (string, error) {
	base := strings.TrimSpace(c.cfg.BaseURL)
	if base == "" {
		return "", errors.New("base url is empty")
	}
	if !strings.Contains(base, "://") {
		base = "wss://" + base
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("base url has no host")
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/v1/ws/tts"
	}
	q := u.Query()
	q.Set("api_key", c.cfg.APIKey)
	q.Set("voice_id", c.cfg.VoiceID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// connAliveLocked reports whether the current handle is still usable. The
// receive loop's exit channel doubles as the staleness signal: once the loop
// is gone the connection is dead even if Close has not run yet.
func (c *Client) connAliveLocked() bool {
	if c.conn == nil || c.recvDone == nil {
		return false
	}
	select {
	case <-c.recvDone:
		return false
	default:
		return true
	}
}

// connectLocked opens the websocket if no live one exists and starts the
// receive loop. No-op when already connected.
func (c *Client) connectLocked(ctx context.Context) error {
	if c.connAliveLocked() {
		return nil
	}
	if c.conn != nil {
		// Stale handle left over from an abrupt closure.
		c.disconnectLocked()
	}

	target, err := c.endpointURL()
	if err != nil {
		return fmt.Errorf("invalid endpoint: %w", err)
	}

	c.log.Debug("connecting", slog.String("host", c.cfg.BaseURL))

	dialer := websocket.Dialer{
		HandshakeTimeout: time.Duration(c.cfg.ConnectTimeout) * time.Millisecond,
	}
	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		c.conn = nil
		return fmt.Errorf("dial %s: %w", c.cfg.BaseURL, err)
	}

	c.conn = conn
	c.startReceiveLocked(conn)
	return nil
}

// disconnectLocked tears the connection down: stop metrics, await the
// receive loop, close the handle, clear state. Every step is best effort;
// close-time failures are logged, never escalated.
func (c *Client) disconnectLocked() {
	c.metrics.StopAll(context.Background())

	if c.recvDone != nil {
		if c.recvCancel != nil {
			c.recvCancel()
		}
		if c.conn != nil {
			// Unblock a reader parked in ReadMessage, then wait for the
			// loop to exit before closing the handle underneath it.
			// Setting the deadline from here is safe alongside the reader:
			// it delegates to the underlying net.Conn, whose deadline
			// methods may be called concurrently with reads.
			_ = c.conn.SetReadDeadline(time.Now())
		}
		<-c.recvDone
		c.recvDone = nil
		c.recvCancel = nil
	}

	if c.conn != nil {
		c.log.Debug("disconnecting", slog.String("host", c.cfg.BaseURL))
		if err := c.conn.Close(); err != nil {
			c.log.Warn("error closing websocket", slogError(err))
		}
	}

	c.setRequestID("")
	c.conn = nil
}

// currentConnLocked returns the live handle or fails distinctly.
func (c *Client) currentConnLocked() (*websocket.Conn, error) {
	if c.conn == nil {
		return nil, ErrNotConnected
	}
	return c.conn, nil
}
