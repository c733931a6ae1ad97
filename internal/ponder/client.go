// Package ponder implements a streaming client for the Ponder websocket
// text-to-speech API. One Client owns one logical session: a single duplex
// connection shared between the submit path and a background receive loop,
// with audio delivered as ordered events.
package ponder

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ponderinc/ponder-stream/internal/config"
	"github.com/ponderinc/ponder-stream/internal/protocol"
	"github.com/ponderinc/ponder-stream/internal/tts"
)

// ErrNotStarted is returned by Submit when the session was never started.
var ErrNotStarted = errors.New("ponder: session not started")

// Client is a streaming TTS session against the Ponder websocket API. It
// implements tts.Backend. Failures during active synthesis surface as
// events, not returned errors; returned errors mark contract violations.
//
// The session mutex guards connection and lifecycle state. The request id
// sits behind its own leaf lock so the receive loop can read it without
// touching the session lock: disconnect waits for the loop to exit while
// holding the session lock, and the loop must never block on it. Submit,
// Interrupt and disconnect are the only writers of the request id.
type Client struct {
	cfg      config.TTSConfig
	settings tts.Settings
	log      *slog.Logger
	metrics  Metrics
	tracer   trace.Tracer

	events chan tts.Event

	mu         sync.Mutex
	started    bool
	conn       *websocket.Conn
	recvCancel context.CancelFunc
	recvDone   chan struct{}

	reqMu     sync.Mutex
	requestID string
}

// New builds a client from config. A nil metrics collaborator disables
// measurement.
func New(cfg config.TTSConfig, metrics Metrics, log *slog.Logger) *Client {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Client{
		cfg: cfg,
		settings: tts.Settings{
			Language:     cfg.Language,
			OutputFormat: cfg.OutputFormat,
			VoiceEngine:  cfg.VoiceEngine,
			Speed:        cfg.Speed,
			Seed:         cfg.Seed,
		},
		log:     log.With(slog.String("component", "ponder-tts")),
		metrics: metrics,
		tracer:  otel.Tracer("ponder-stream/tts"),
		events:  make(chan tts.Event, 64),
	}
}

// Events is the ordered outbound event stream. The host must drain it for
// the lifetime of the session.
func (c *Client) Events() <-chan tts.Event { return c.events }

// Settings returns the voice configuration snapshot applied to utterances.
func (c *Client) Settings() tts.Settings { return c.settings }

// Start brings the session up and connects eagerly. A connect failure is
// reported on the connection-error channel and leaves the session
// disconnected; Start itself does not fail for it.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	_ = c.ensureConnectedLocked(ctx)
	return nil
}

// Stop tears the session down. Idempotent and best effort.
func (c *Client) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	c.disconnectLocked()
	return nil
}

// Cancel aborts the session immediately. Same teardown as Stop.
func (c *Client) Cancel(ctx context.Context) error {
	return c.Stop(ctx)
}

// Interrupt abandons the current utterance without dropping the
// connection: metrics stop, the request id clears, the websocket stays.
func (c *Client) Interrupt(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics.StopAll(ctx)
	c.setRequestID("")
	return nil
}

// Submit hands one text unit to the transport. The first chunk of an
// utterance opens the request boundary: the TTFB timer starts, the started
// event is emitted and a fresh request id is assigned. Audio arrives
// asynchronously on Events. A send failure ends the utterance with a
// stopped event and cycles the connection once so the next submission can
// proceed without a manual retry.
func (c *Client) Submit(ctx context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}

	ctx, span := c.tracer.Start(ctx, "tts.submit",
		trace.WithAttributes(attribute.Int("text.len", len(text))))
	defer span.End()

	c.log.Debug("generating tts", slog.String("text", text))

	// Reconnect transparently if the websocket went away.
	if !c.connAliveLocked() {
		if err := c.ensureConnectedLocked(ctx); err != nil {
			// Connection-error event already emitted; this submission
			// ends without audio.
			return nil
		}
	}

	requestID := c.currentRequestID()
	if requestID == "" {
		c.metrics.StartTTFB(ctx)
		requestID = uuid.NewString()
		c.setRequestID(requestID)
		c.push(ctx, tts.Event{Kind: tts.EventUtteranceStarted, RequestID: requestID})
	}

	payload, err := protocol.EncodeRequest(text)
	if err != nil {
		c.log.Error("error encoding request", slogError(err))
		c.push(ctx, tts.Event{Kind: tts.EventError, RequestID: requestID, Message: err.Error()})
		return nil
	}

	conn, err := c.currentConnLocked()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.log.Error("error sending message", slogError(err))
		c.push(ctx, tts.Event{Kind: tts.EventUtteranceStopped, RequestID: requestID})
		c.disconnectLocked()
		_ = c.ensureConnectedLocked(ctx)
		return nil
	}

	c.metrics.AddUsage(ctx, text)
	return nil
}

// ensureConnectedLocked connects if needed and routes failures to the
// connection-error channel. The session stays Disconnected on failure.
func (c *Client) ensureConnectedLocked(ctx context.Context) error {
	err := c.connectLocked(ctx)
	if err == nil {
		return nil
	}
	c.log.Error("connection error", slogError(err))
	c.push(ctx, tts.Event{Kind: tts.EventConnectionError, Message: err.Error()})
	return err
}

func (c *Client) setRequestID(id string) {
	c.reqMu.Lock()
	c.requestID = id
	c.reqMu.Unlock()
}

func (c *Client) currentRequestID() string {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()
	return c.requestID
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
