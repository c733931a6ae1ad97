// Package bridge connects a streaming TTS backend to the host pipeline's
// message bus: lifecycle and say/interrupt signals come in as NATS
// subjects, synthesized audio and boundary events go back out.
package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ponderinc/ponder-stream/internal/bus"
	"github.com/ponderinc/ponder-stream/internal/config"
	"github.com/ponderinc/ponder-stream/internal/protocol"
	"github.com/ponderinc/ponder-stream/internal/tts"
	"github.com/ponderinc/ponder-stream/internal/utterancelog"
)

type Service struct {
	cfg     config.BridgeConfig
	voice   string
	bus     *bus.Client
	backend tts.Backend
	store   *utterancelog.Store

	subSay       *nats.Subscription
	subInterrupt *nats.Subscription
	ctx          context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
	logger       *slog.Logger
}

func NewService(parent context.Context, cfg config.BridgeConfig, voice string, busClient *bus.Client, backend tts.Backend, store *utterancelog.Store, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:     cfg,
		voice:   voice,
		bus:     busClient,
		backend: backend,
		store:   store,
		ctx:     ctx,
		cancel:  cancel,
		logger:  log.With(slog.String("component", "tts-bridge")),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}

	if err := s.backend.Start(s.ctx); err != nil {
		return err
	}

	subSay, err := s.bus.Conn().Subscribe(protocol.SubjectTTSSay, s.handleSay)
	if err != nil {
		return err
	}
	s.subSay = subSay

	subInterrupt, err := s.bus.Conn().Subscribe(protocol.SubjectTTSInterrupt, s.handleInterrupt)
	if err != nil {
		_ = subSay.Drain()
		s.subSay = nil
		return err
	}
	s.subInterrupt = subInterrupt

	s.wg.Add(1)
	go s.pump()
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subSay != nil {
		_ = s.subSay.Drain()
	}
	if s.subInterrupt != nil {
		_ = s.subInterrupt.Drain()
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := s.backend.Stop(stopCtx); err != nil {
		s.logger.Warn("backend stop failed", slogError(err))
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || (s.subSay != nil && s.subInterrupt != nil)
}

func (s *Service) handleSay(msg *nats.Msg) {
	var req protocol.SayRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode say request", slogError(err))
		return
	}
	if req.Text == "" {
		return
	}
	if err := s.backend.Submit(s.ctx, req.Text); err != nil {
		s.logger.Error("submit failed", slogError(err))
	}
}

func (s *Service) handleInterrupt(msg *nats.Msg) {
	if err := s.backend.Interrupt(s.ctx); err != nil {
		s.logger.Warn("interrupt failed", slogError(err))
	}
}

// pump forwards backend events to the bus in arrival order.
func (s *Service) pump() {
	defer s.wg.Done()
	sequence := 0
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-s.backend.Events():
			if !ok {
				return
			}
			s.publish(ev, &sequence)
		}
	}
}

func (s *Service) publish(ev tts.Event, sequence *int) {
	switch ev.Kind {
	case tts.EventUtteranceStarted:
		*sequence = 0
		s.record(ev)
		s.publishJSON(protocol.SubjectTTSStarted, protocol.UtteranceStatus{
			RequestID: ev.RequestID,
			Started:   true,
			Timestamp: time.Now().UTC(),
		})
	case tts.EventAudioChunk:
		s.publishJSON(protocol.SubjectTTSAudio, protocol.AudioChunkMsg{
			RequestID:  ev.RequestID,
			Sequence:   *sequence,
			SampleRate: ev.SampleRate,
			Channels:   ev.Channels,
			PCM:        ev.PCM,
		})
		*sequence++
	case tts.EventUtteranceStopped:
		s.record(ev)
		s.publishJSON(protocol.SubjectTTSStopped, protocol.UtteranceStatus{
			RequestID: ev.RequestID,
			Timestamp: time.Now().UTC(),
		})
	case tts.EventError:
		s.record(ev)
		s.publishJSON(protocol.SubjectTTSError, protocol.ErrorMsg{
			RequestID: ev.RequestID,
			Message:   ev.Message,
			Timestamp: time.Now().UTC(),
		})
	case tts.EventConnectionError:
		s.record(ev)
		s.publishJSON(protocol.SubjectTTSConnectionError, protocol.ErrorMsg{
			Message:   ev.Message,
			Timestamp: time.Now().UTC(),
		})
	}
}

func (s *Service) publishJSON(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish event", slog.String("subject", subject), slogError(err))
	}
}

// record appends boundary and error events to the utterance log, best
// effort.
func (s *Service) record(ev tts.Event) {
	if s.store == nil || ev.RequestID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.store.AppendUtterance(ctx, ev.RequestID, s.voice); err != nil {
		s.logger.Warn("failed to record utterance", slogError(err))
		return
	}
	evt := utterancelog.Event{RequestID: ev.RequestID, Type: string(ev.Kind)}
	if ev.Message != "" {
		evt.Payload = []byte(ev.Message)
	}
	if err := s.store.AppendEvent(ctx, evt); err != nil {
		s.logger.Warn("failed to record event", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
