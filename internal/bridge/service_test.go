package bridge

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ponderinc/ponder-stream/internal/bus"
	"github.com/ponderinc/ponder-stream/internal/config"
	"github.com/ponderinc/ponder-stream/internal/natsserver"
	"github.com/ponderinc/ponder-stream/internal/protocol"
	"github.com/ponderinc/ponder-stream/internal/tts"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBridgePublishesUtterance(t *testing.T) {
	logger := newLogger()

	// Random port keeps parallel test runs from colliding.
	embedded, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, logger)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(embedded.Shutdown)

	busCli, err := bus.Connect(config.BusConfig{Servers: []string{embedded.ClientURL()}, ConnectTimeout: 2000}, logger)
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(busCli.Close)

	subStarted, err := busCli.Conn().SubscribeSync(protocol.SubjectTTSStarted)
	if err != nil {
		t.Fatalf("subscribe started: %v", err)
	}
	subAudio, err := busCli.Conn().SubscribeSync(protocol.SubjectTTSAudio)
	if err != nil {
		t.Fatalf("subscribe audio: %v", err)
	}
	subStopped, err := busCli.Conn().SubscribeSync(protocol.SubjectTTSStopped)
	if err != nil {
		t.Fatalf("subscribe stopped: %v", err)
	}

	backend := tts.NewMockBackend(16000, 1)
	svc := NewService(context.Background(), config.BridgeConfig{Enabled: true}, "voice-1", busCli, backend, nil, logger)
	if err := svc.Start(); err != nil {
		t.Fatalf("start bridge: %v", err)
	}
	t.Cleanup(svc.Close)

	say, _ := json.Marshal(protocol.SayRequest{SessionID: "session-1", Text: "hello"})
	if err := busCli.Conn().Publish(protocol.SubjectTTSSay, say); err != nil {
		t.Fatalf("publish say: %v", err)
	}

	msg, err := subStarted.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("waiting for started: %v", err)
	}
	var started protocol.UtteranceStatus
	if err := json.Unmarshal(msg.Data, &started); err != nil {
		t.Fatalf("decode started: %v", err)
	}
	if !started.Started || started.RequestID == "" {
		t.Fatalf("unexpected started status: %+v", started)
	}

	msg, err = subAudio.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("waiting for audio: %v", err)
	}
	var chunk protocol.AudioChunkMsg
	if err := json.Unmarshal(msg.Data, &chunk); err != nil {
		t.Fatalf("decode audio: %v", err)
	}
	if chunk.RequestID != started.RequestID {
		t.Fatalf("audio request id %q does not match %q", chunk.RequestID, started.RequestID)
	}
	if chunk.Sequence != 0 || chunk.SampleRate != 16000 || chunk.Channels != 1 {
		t.Fatalf("unexpected chunk metadata: %+v", chunk)
	}
	if len(chunk.PCM) == 0 {
		t.Fatal("expected PCM payload")
	}

	msg, err = subStopped.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("waiting for stopped: %v", err)
	}
	var stopped protocol.UtteranceStatus
	if err := json.Unmarshal(msg.Data, &stopped); err != nil {
		t.Fatalf("decode stopped: %v", err)
	}
	if stopped.Started || stopped.RequestID != started.RequestID {
		t.Fatalf("unexpected stopped status: %+v", stopped)
	}
}

func TestBridgeDisabled(t *testing.T) {
	backend := tts.NewMockBackend(16000, 1)
	svc := NewService(context.Background(), config.BridgeConfig{Enabled: false}, "voice-1", nil, backend, nil, newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start disabled bridge: %v", err)
	}
	if !svc.Healthy() {
		t.Fatal("disabled bridge should report healthy")
	}
	svc.Close()
}
