package tts

import "context"

// EventKind discriminates Event.
type EventKind string

const (
	EventUtteranceStarted EventKind = "utterance_started"
	EventAudioChunk       EventKind = "audio_chunk"
	EventUtteranceStopped EventKind = "utterance_stopped"
	EventError            EventKind = "error"
	// EventConnectionError reports connect-time failures on a channel
	// distinct from ordinary synthesis errors.
	EventConnectionError EventKind = "connection_error"
)

// Event is one entry in the ordered stream a backend emits for its host.
type Event struct {
	Kind       EventKind
	RequestID  string
	PCM        []byte
	SampleRate int
	Channels   int
	Message    string
}

// Settings is the voice configuration snapshot applied to an utterance.
type Settings struct {
	Language     string
	OutputFormat string
	VoiceEngine  string
	Speed        float64
	Seed         int64
}

// Backend is the capability set a streaming TTS session exposes. The host
// pipeline drives the lifecycle; Submit hands one text unit to the
// transport and returns without waiting for audio, which arrives
// asynchronously on Events.
type Backend interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Cancel(ctx context.Context) error
	Interrupt(ctx context.Context) error
	Submit(ctx context.Context, text string) error
	Events() <-chan Event
}
