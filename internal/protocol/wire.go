package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/gorilla/websocket"
)

// handshakeMagic prefixes the initial binary message the service sends before
// real audio. It carries no payload semantics and must be discarded.
var handshakeMagic = []byte("RIFF")

// Request is the outbound synthesis command.
type Request struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// EncodeRequest serializes a text chunk into the wire format.
func EncodeRequest(text string) ([]byte, error) {
	return json.Marshal(Request{Type: "text", Text: text})
}

// Inbound is the classification of one received websocket message.
// Implementations are HandshakeArtifact, AudioChunk, ControlMessage and
// Malformed; nothing else satisfies the interface.
type Inbound interface {
	inbound()
}

// HandshakeArtifact is the discardable header message preceding the audio
// stream.
type HandshakeArtifact struct{}

// AudioChunk carries raw PCM bytes, verbatim from the wire.
type AudioChunk struct {
	PCM []byte
}

// ControlMessage is a structured text message. Error is non-empty when the
// service reported a failure.
type ControlMessage struct {
	Error  string
	Fields map[string]any
}

// Malformed is a text message that failed to parse.
type Malformed struct {
	Raw []byte
}

func (HandshakeArtifact) inbound() {}
func (AudioChunk) inbound()        {}
func (ControlMessage) inbound()    {}
func (Malformed) inbound()         {}

// Classify tags one inbound websocket message. messageType is the gorilla
// frame type; binary frames are audio (or the handshake artifact), text
// frames are JSON control messages.
func Classify(messageType int, data []byte) Inbound {
	if messageType == websocket.BinaryMessage {
		if bytes.HasPrefix(data, handshakeMagic) {
			return HandshakeArtifact{}
		}
		return AudioChunk{PCM: data}
	}

	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return Malformed{Raw: data}
	}
	msg := ControlMessage{Fields: fields}
	if v, ok := fields["error"]; ok {
		switch e := v.(type) {
		case string:
			msg.Error = e
		default:
			raw, _ := json.Marshal(e)
			msg.Error = string(raw)
		}
	}
	return msg
}
