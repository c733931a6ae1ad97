package tts

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/google/uuid"
	"github.com/mattn/go-shellwords"
)

// ExecBackend synthesizes through a local subprocess instead of the remote
// service. The command reads one JSON request on stdin and writes line-JSON
// chunks on stdout. Kept as an alternate mode for offline deployments.
type ExecBackend struct {
	cmd        []string
	sampleRate int
	channels   int
	voice      string
	log        *slog.Logger

	events chan Event

	mu        sync.Mutex
	started   bool
	requestID string
	cancelRun context.CancelFunc
	wg        sync.WaitGroup
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

func NewExecBackend(command string, sampleRate, channels int, voice string, log *slog.Logger) (*ExecBackend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &ExecBackend{
		cmd:        args,
		sampleRate: sampleRate,
		channels:   channels,
		voice:      voice,
		log:        log.With(slog.String("component", "exec-tts")),
		events:     make(chan Event, 64),
	}, nil
}

func (e *ExecBackend) Events() <-chan Event { return e.events }

func (e *ExecBackend) Start(ctx context.Context) error {
	e.mu.Lock()
	e.started = true
	e.mu.Unlock()
	return nil
}

func (e *ExecBackend) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.started = false
	if e.cancelRun != nil {
		e.cancelRun()
	}
	e.requestID = ""
	e.mu.Unlock()
	e.wg.Wait()
	return nil
}

func (e *ExecBackend) Cancel(ctx context.Context) error {
	return e.Stop(ctx)
}

func (e *ExecBackend) Interrupt(ctx context.Context) error {
	e.mu.Lock()
	if e.cancelRun != nil {
		e.cancelRun()
	}
	e.requestID = ""
	e.mu.Unlock()
	return nil
}

func (e *ExecBackend) Submit(ctx context.Context, text string) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return fmt.Errorf("exec tts: submit before start")
	}
	requestID := e.requestID
	fresh := requestID == ""
	if fresh {
		requestID = uuid.NewString()
		e.requestID = requestID
	}
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancelRun = cancel
	e.mu.Unlock()

	if fresh {
		e.events <- Event{Kind: EventUtteranceStarted, RequestID: requestID}
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		if err := e.run(runCtx, requestID, text); err != nil {
			if runCtx.Err() != nil {
				return
			}
			e.log.Error("synthesis command failed", slog.String("error", err.Error()))
			e.emit(runCtx, Event{Kind: EventError, RequestID: requestID, Message: err.Error()})
		}
	}()
	return nil
}

func (e *ExecBackend) run(ctx context.Context, requestID, text string) error {
	payload, err := json.Marshal(execRequest{
		Text:       text,
		Voice:      e.voice,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}

	if _, err := stdin.Write(payload); err != nil {
		_ = cmd.Wait()
		return err
	}
	stdin.Close()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			_ = cmd.Wait()
			return err
		}
		pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			_ = cmd.Wait()
			return err
		}
		e.emit(ctx, Event{
			Kind:       EventAudioChunk,
			RequestID:  requestID,
			PCM:        pcm,
			SampleRate: e.sampleRate,
			Channels:   e.channels,
		})
		if resp.Final {
			break
		}
	}
	if err := cmd.Wait(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	e.emit(ctx, Event{Kind: EventUtteranceStopped, RequestID: requestID})
	e.mu.Lock()
	if e.requestID == requestID {
		e.requestID = ""
	}
	e.mu.Unlock()
	return nil
}

func (e *ExecBackend) emit(ctx context.Context, ev Event) {
	select {
	case e.events <- ev:
	case <-ctx.Done():
	}
}
