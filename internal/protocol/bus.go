package protocol

import "time"

// SayRequest asks the adapter to synthesize one text unit.
type SayRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// AudioChunkMsg carries decoded PCM streamed back to the host pipeline.
type AudioChunkMsg struct {
	RequestID  string `json:"request_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
}

// UtteranceStatus marks an utterance boundary.
type UtteranceStatus struct {
	RequestID string    `json:"request_id"`
	Started   bool      `json:"started"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorMsg reports a synthesis or connection failure.
type ErrorMsg struct {
	RequestID string    `json:"request_id,omitempty"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTTSSay             = "tts.say"
	SubjectTTSInterrupt       = "tts.interrupt"
	SubjectTTSAudio           = "tts.audio"
	SubjectTTSStarted         = "tts.status.started"
	SubjectTTSStopped         = "tts.status.stopped"
	SubjectTTSError           = "tts.error"
	SubjectTTSConnectionError = "tts.connection_error"
)
