// Package runtime assembles the daemon: embedded bus, pipeline services,
// report store, telemetry, and the health endpoints.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oratia-labs/oratia-core/internal/analysis"
	"github.com/oratia-labs/oratia-core/internal/audio"
	"github.com/oratia-labs/oratia-core/internal/bus"
	"github.com/oratia-labs/oratia-core/internal/config"
	"github.com/oratia-labs/oratia-core/internal/grammar"
	"github.com/oratia-labs/oratia-core/internal/natsserver"
	"github.com/oratia-labs/oratia-core/internal/readability"
	"github.com/oratia-labs/oratia-core/internal/reportstore"
	"github.com/oratia-labs/oratia-core/internal/stt"
)

type service interface {
	Start() error
	Close()
	Healthy() bool
}

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	busServer *natsserver.EmbeddedServer
	busClient *bus.Client
	store     *reportstore.Store
	services  []service
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

	tel, err := newTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = tel.Shutdown

	if err := r.startBus(); err != nil {
		return err
	}
	defer r.stopBus()

	store, err := reportstore.Open(ctx, r.cfg.ReportStore, r.logger.With(slog.String("component", "report-store")))
	if err != nil {
		return fmt.Errorf("open report store: %w", err)
	}
	r.store = store
	defer store.Close()

	if err := r.startServices(ctx); err != nil {
		r.closeServices()
		return err
	}
	defer r.closeServices()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if handler := tel.MetricsHandler(); handler != nil {
		mux.Handle("/metrics", handler)
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
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) startBus() error {
	server, err := natsserver.Start(r.cfg.Bus, r.logger.With(slog.String("component", "nats-server")))
	if err != nil {
		return fmt.Errorf("start embedded bus: %w", err)
	}
	r.busServer = server

	client, err := bus.Connect(r.cfg.Bus, r.cfg.RuntimeName, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		r.busServer.Shutdown()
		return fmt.Errorf("connect to bus: %w", err)
	}
	r.busClient = client
	return nil
}

func (r *Runtime) stopBus() {
	if r.busClient != nil {
		r.busClient.Close()
	}
	if r.busServer != nil {
		r.busServer.Shutdown()
	}
}

func (r *Runtime) startServices(ctx context.Context) error {
	recognizer, err := stt.NewRecognizer(r.cfg.STT)
	if err != nil {
		return fmt.Errorf("build recognizer: %w", err)
	}
	checker, err := grammar.NewChecker(r.cfg.Grammar)
	if err != nil {
		return fmt.Errorf("build grammar checker: %w", err)
	}

	analyzer, err := readability.NewAnalyzer()
	if err != nil {
		return fmt.Errorf("build readability analyzer: %w", err)
	}

	audioSvc := audio.NewService(ctx, r.cfg.Audio, r.busClient, r.logger)
	sttSvc := stt.NewService(ctx, r.cfg.STT, r.busClient, recognizer, r.logger)
	analysisSvc, err := analysis.NewService(ctx, r.cfg, r.busClient, checker, analyzer, r.store, r.logger)
	if err != nil {
		return fmt.Errorf("build analysis service: %w", err)
	}

	for _, svc := range []service{audioSvc, sttSvc, analysisSvc} {
		if err := svc.Start(); err != nil {
			return err
		}
		r.services = append(r.services, svc)
	}
	return nil
}

func (r *Runtime) closeServices() {
	for i := len(r.services) - 1; i >= 0; i-- {
		r.services[i].Close()
	}
	r.services = nil
}

func (r *Runtime) healthy() bool {
	if !r.busClient.Healthy() {
		return false
	}
	for _, svc := range r.services {
		if !svc.Healthy() {
			return false
		}
	}
	return true
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !r.healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unhealthy"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
