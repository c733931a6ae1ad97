package protocol

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/gorilla/websocket"
)

func TestEncodeRequest(t *testing.T) {
	data, err := EncodeRequest("hello world")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatalf("encoded request is not valid JSON: %v", err)
	}
	if req.Type != "text" {
		t.Fatalf("expected type %q, got %q", "text", req.Type)
	}
	if req.Text != "hello world" {
		t.Fatalf("expected text round-trip, got %q", req.Text)
	}
}

func TestClassifyHandshakeArtifact(t *testing.T) {
	msg := Classify(websocket.BinaryMessage, append([]byte("RIFF"), 0x01, 0x02))
	if _, ok := msg.(HandshakeArtifact); !ok {
		t.Fatalf("expected HandshakeArtifact, got %T", msg)
	}
}

func TestClassifyAudioChunkVerbatim(t *testing.T) {
	pcm := []byte{0x00, 0x10, 0x20, 0x30, 0x40}
	msg := Classify(websocket.BinaryMessage, pcm)
	chunk, ok := msg.(AudioChunk)
	if !ok {
		t.Fatalf("expected AudioChunk, got %T", msg)
	}
	if !bytes.Equal(chunk.PCM, pcm) {
		t.Fatalf("expected PCM unchanged, got %v", chunk.PCM)
	}
}

func TestClassifyControlMessageWithError(t *testing.T) {
	msg := Classify(websocket.TextMessage, []byte(`{"error":"voice not found"}`))
	ctl, ok := msg.(ControlMessage)
	if !ok {
		t.Fatalf("expected ControlMessage, got %T", msg)
	}
	if ctl.Error != "voice not found" {
		t.Fatalf("expected error surfaced, got %q", ctl.Error)
	}
}

func TestClassifyControlMessageStructuredError(t *testing.T) {
	msg := Classify(websocket.TextMessage, []byte(`{"error":{"code":42}}`))
	ctl, ok := msg.(ControlMessage)
	if !ok {
		t.Fatalf("expected ControlMessage, got %T", msg)
	}
	if ctl.Error == "" {
		t.Fatal("expected non-string error field to surface")
	}
}

func TestClassifyControlMessageWithoutError(t *testing.T) {
	msg := Classify(websocket.TextMessage, []byte(`{"status":"ready"}`))
	ctl, ok := msg.(ControlMessage)
	if !ok {
		t.Fatalf("expected ControlMessage, got %T", msg)
	}
	if ctl.Error != "" {
		t.Fatalf("expected empty error, got %q", ctl.Error)
	}
	if ctl.Fields["status"] != "ready" {
		t.Fatalf("expected fields preserved, got %v", ctl.Fields)
	}
}

func TestClassifyMalformed(t *testing.T) {
	raw := []byte("not json at all")
	msg := Classify(websocket.TextMessage, raw)
	m, ok := msg.(Malformed)
	if !ok {
		t.Fatalf("expected Malformed, got %T", msg)
	}
	if !bytes.Equal(m.Raw, raw) {
		t.Fatalf("expected raw bytes preserved, got %q", m.Raw)
	}
}
