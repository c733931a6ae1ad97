package ponder

import (
	"context"
	"log/slog"

	"github.com/gorilla/websocket"

	"github.com/ponderinc/ponder-stream/internal/protocol"
	"github.com/ponderinc/ponder-stream/internal/tts"
)

// startReceiveLocked launches the receive loop for conn. At most one loop
// runs per session; a second start against a live loop is a contract
// violation, so this panics rather than racing two readers on one handle.
func (c *Client) startReceiveLocked(conn *websocket.Conn) {
	if c.recvDone != nil {
		select {
		case <-c.recvDone:
		default:
			panic("ponder: receive loop already running")
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.recvCancel = cancel
	c.recvDone = done
	go c.receiveLoop(ctx, conn, done)
}

// receiveLoop drains inbound messages until the channel closes or the loop
// is cancelled. It classifies each message and forwards audio and error
// events downstream. It never reconnects; that policy belongs to the next
// caller that needs the connection.
func (c *Client) receiveLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug("receive loop ended", slogError(err))
			}
			return
		}

		switch msg := protocol.Classify(messageType, data).(type) {
		case protocol.HandshakeArtifact:
			// Precedes the audio stream, carries nothing.
		case protocol.AudioChunk:
			c.metrics.StopTTFB(ctx)
			c.push(ctx, tts.Event{
				Kind:       tts.EventAudioChunk,
				RequestID:  c.currentRequestID(),
				PCM:        msg.PCM,
				SampleRate: c.cfg.SampleRate,
				Channels:   c.cfg.Channels,
			})
		case protocol.ControlMessage:
			if msg.Error != "" {
				c.log.Error("service reported error", slog.String("error", msg.Error))
				c.push(ctx, tts.Event{
					Kind:      tts.EventError,
					RequestID: c.currentRequestID(),
					Message:   msg.Error,
				})
				continue
			}
			c.log.Debug("control message received", slog.Any("fields", msg.Fields))
		case protocol.Malformed:
			c.log.Error("invalid message received", slog.String("raw", string(msg.Raw)))
		}
	}
}

// push forwards one event downstream, preserving arrival order. It gives up
// only when the loop is cancelled.
func (c *Client) push(ctx context.Context, ev tts.Event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	}
}
