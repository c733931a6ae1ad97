package tts

import (
	"context"
	"testing"
	"time"
)

func collect(t *testing.T, b *MockBackend, n int) []Event {
	t.Helper()
	var events []Event
	for len(events) < n {
		select {
		case ev := <-b.Events():
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d events", len(events))
		}
	}
	return events
}

func TestMockBackendEmitsUtterance(t *testing.T) {
	b := NewMockBackend(16000, 1)
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })

	if err := b.Submit(context.Background(), "hello"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	events := collect(t, b, 3)
	if events[0].Kind != EventUtteranceStarted {
		t.Fatalf("expected started first, got %s", events[0].Kind)
	}
	if events[1].Kind != EventAudioChunk {
		t.Fatalf("expected audio second, got %s", events[1].Kind)
	}
	if len(events[1].PCM) == 0 || events[1].SampleRate != 16000 {
		t.Fatalf("unexpected audio payload: %d bytes at %d Hz", len(events[1].PCM), events[1].SampleRate)
	}
	if events[2].Kind != EventUtteranceStopped {
		t.Fatalf("expected stopped last, got %s", events[2].Kind)
	}
	for _, ev := range events {
		if ev.RequestID != events[0].RequestID {
			t.Fatalf("request id mismatch: %q vs %q", ev.RequestID, events[0].RequestID)
		}
	}
}

func TestMockBackendSubmitBeforeStart(t *testing.T) {
	b := NewMockBackend(16000, 1)
	if err := b.Submit(context.Background(), "hello"); err == nil {
		t.Fatal("expected error for submit before start")
	}
}
