package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ponderinc/ponder-stream/internal/bridge"
	"github.com/ponderinc/ponder-stream/internal/bus"
	"github.com/ponderinc/ponder-stream/internal/config"
	"github.com/ponderinc/ponder-stream/internal/natsserver"
	"github.com/ponderinc/ponder-stream/internal/ponder"
	"github.com/ponderinc/ponder-stream/internal/tts"
	"github.com/ponderinc/ponder-stream/internal/utterancelog"
)

// Runtime wires the adapter together: telemetry, the bus (embedded or
// external), the utterance log, the configured TTS backend and the bridge,
// plus the health endpoints.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	embedded *natsserver.EmbeddedServer
	busCli   *bus.Client
	store    *utterancelog.Store
	bridge   *bridge.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	r.embedded = embedded

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	busCli, err := bus.Connect(busCfg, r.logger)
	if err != nil {
		r.shutdownComponents()
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	r.busCli = busCli

	store, err := utterancelog.Open(ctx, r.cfg.UtteranceLog, r.logger)
	if err != nil {
		r.shutdownComponents()
		return fmt.Errorf("failed to open utterance log: %w", err)
	}
	r.store = store

	backend, err := buildBackend(r.cfg.TTS, r.logger)
	if err != nil {
		r.shutdownComponents()
		return fmt.Errorf("failed to build tts backend: %w", err)
	}

	r.bridge = bridge.NewService(ctx, r.cfg.Bridge, r.cfg.TTS.VoiceID, busCli, backend, store, r.logger)
	if err := r.bridge.Start(); err != nil {
		r.shutdownComponents()
		return fmt.Errorf("failed to start bridge: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr), slog.String("tts_mode", r.cfg.TTS.Mode))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	r.shutdownComponents()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func buildBackend(cfg config.TTSConfig, logger *slog.Logger) (tts.Backend, error) {
	switch cfg.Mode {
	case "ws":
		metrics, err := ponder.NewOTelMetrics()
		if err != nil {
			return nil, err
		}
		return ponder.New(cfg, metrics, logger), nil
	case "exec":
		return tts.NewExecBackend(cfg.Command, cfg.SampleRate, cfg.Channels, cfg.VoiceID, logger)
	case "mock":
		return tts.NewMockBackend(cfg.SampleRate, cfg.Channels), nil
	default:
		return nil, fmt.Errorf("unknown tts mode %q", cfg.Mode)
	}
}

func (r *Runtime) shutdownComponents() {
	if r.bridge != nil {
		r.bridge.Close()
		r.bridge = nil
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Warn("utterance log close error", slog.String("error", err.Error()))
		}
		r.store = nil
	}
	if r.busCli != nil {
		r.busCli.Close()
		r.busCli = nil
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
		r.embedded = nil
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if r.busCli != nil && !r.busCli.Healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("bus unhealthy"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && (r.bridge == nil || r.bridge.Healthy()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
