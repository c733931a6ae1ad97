package tts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockBackend emits a short silent utterance per submission. Used in tests
// and as a placeholder mode when no synthesizer is configured.
type MockBackend struct {
	sampleRate int
	channels   int
	delay      time.Duration

	events chan Event

	mu        sync.Mutex
	started   bool
	requestID string
	wg        sync.WaitGroup
}

func NewMockBackend(sampleRate, channels int) *MockBackend {
	return &MockBackend{
		sampleRate: sampleRate,
		channels:   channels,
		delay:      10 * time.Millisecond,
		events:     make(chan Event, 16),
	}
}

func (m *MockBackend) Events() <-chan Event { return m.events }

func (m *MockBackend) Start(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	m.mu.Unlock()
	return nil
}

func (m *MockBackend) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.started = false
	m.requestID = ""
	m.mu.Unlock()
	m.wg.Wait()
	return nil
}

func (m *MockBackend) Cancel(ctx context.Context) error { return m.Stop(ctx) }

func (m *MockBackend) Interrupt(ctx context.Context) error {
	m.mu.Lock()
	m.requestID = ""
	m.mu.Unlock()
	return nil
}

func (m *MockBackend) Submit(ctx context.Context, text string) error {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return errors.New("mock tts: submit before start")
	}
	requestID := m.requestID
	fresh := requestID == ""
	if fresh {
		requestID = uuid.NewString()
		m.requestID = requestID
	}
	m.mu.Unlock()

	if fresh {
		m.events <- Event{Kind: EventUtteranceStarted, RequestID: requestID}
	}

	// 20ms of silence per text unit, sized for 16-bit mono frames.
	pcm := make([]byte, m.sampleRate/50*2*m.channels)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		time.Sleep(m.delay)
		m.events <- Event{
			Kind:       EventAudioChunk,
			RequestID:  requestID,
			PCM:        pcm,
			SampleRate: m.sampleRate,
			Channels:   m.channels,
		}
		m.events <- Event{Kind: EventUtteranceStopped, RequestID: requestID}
		m.mu.Lock()
		if m.requestID == requestID {
			m.requestID = ""
		}
		m.mu.Unlock()
	}()
	return nil
}
