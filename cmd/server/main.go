// Package main is the voice translation relay's process entry point: it
// wires the config, logger, provider clients, session registry, and
// per-participant orchestrator together, then serves the WebSocket
// endpoint and a liveness probe until a shutdown signal arrives.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Furkansz/voice-translation-api/internal/asr"
	"github.com/Furkansz/voice-translation-api/internal/config"
	"github.com/Furkansz/voice-translation-api/internal/emotion"
	"github.com/Furkansz/voice-translation-api/internal/gate"
	"github.com/Furkansz/voice-translation-api/internal/pipeline"
	"github.com/Furkansz/voice-translation-api/internal/session"
	"github.com/Furkansz/voice-translation-api/internal/transport"
	"github.com/Furkansz/voice-translation-api/internal/translation"
	"github.com/Furkansz/voice-translation-api/internal/tts"
)

func main() {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	stats := &counters{}
	orch := buildOrchestrator(cfg, logger)

	registry := session.NewRegistry(session.Options{
		Logger:             logger.Sugar(),
		ReconnectWindow:    cfg.ReconnectWindow,
		PendingTimeout:     cfg.PendingSessionTimeout,
		IdleSessionTimeout: cfg.SessionIdleTimeout,
	}, func(d session.Disconnected) {
		onDisconnect(orch, stats, d)
	})

	handler := transport.NewHandler(registry, orch, logger)
	handler.Config.PingInterval = cfg.HeartbeatInterval

	router := mux.NewRouter()
	router.HandleFunc("/ws", handler.ServeHTTP)
	router.HandleFunc("/healthz", healthHandler(registry, stats)).Methods(http.MethodGet)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go runReaper(reaperCtx, registry, orch, cfg.ReaperInterval, stats)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.ListenAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received")
	stopReaper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
}

// buildOrchestrator wires the ASR/MT/TTS stub providers and emotion
// analyzer behind their respective Client types. A production deployment
// swaps the stub providers for real HTTP/WebSocket-backed ones behind the
// same interfaces; the orchestrator itself is unaware of the difference.
func buildOrchestrator(cfg config.Config, logger *zap.Logger) *pipeline.Orchestrator {
	asrClient := asr.New(
		[]asr.StreamProvider{asr.NewStubStreamProvider("stub-stream", asr.DefaultStubStreamProviderConfig())},
		[]asr.BatchProvider{asr.NewStubBatchProvider("stub-batch")},
		asr.DefaultRoutingTable("stub-stream", "stub-stream", "stub-batch"),
		asr.DefaultChunkWindows(),
		[]string{"stub-stream", "stub-batch"},
		logger,
	)

	mt := translation.New(translation.NewStubProvider(translation.StubProviderConfig{}), cfg.MTTimeout, logger)

	ttsClient := tts.New(tts.NewStubProvider(tts.DefaultStubProviderConfig()), tts.NewCache(), logger)

	analyzer := emotion.New(nil)

	thresholds := gate.Thresholds{
		MinConfidence:       cfg.Gate.MinConfidence,
		MinWords:            cfg.Gate.MinWords,
		MinChars:            cfg.Gate.MinChars,
		ShortMessageTimeout: cfg.Gate.ShortMessageTimeout,
		ConversationalPause: cfg.Gate.ConversationalPause,
		SentenceCompletion:  cfg.Gate.SentenceCompletion,
		ThoughtCompletion:   cfg.Gate.ThoughtCompletion,
		EmergencyTimeout:    cfg.Gate.EmergencyTimeout,
		DedupWindow:         cfg.Gate.DedupWindow,
		MinNormalFireScore:  gate.DefaultThresholds().MinNormalFireScore,
		ImmediateFireScore:  gate.DefaultThresholds().ImmediateFireScore,
	}

	return pipeline.New(pipeline.Deps{
		ASR:        asrClient,
		MT:         mt,
		TTS:        ttsClient,
		Emotion:    analyzer,
		Languages:  gate.DefaultProfiles(),
		Thresholds: thresholds,
		Logger:     logger,
	})
}

// onDisconnect runs the teardown side effects spec §4.1/§4.2 assign to an
// unmatched reconnect window: stop the departed participant's pipeline
// task, and if the session had gone Active, notify and stop the partner
// too since a two-party relay has nothing left to relay.
func onDisconnect(orch *pipeline.Orchestrator, c *counters, d session.Disconnected) {
	orch.Stop(d.Participant.ID)
	c.incDisconnects()
	if d.Partner == nil {
		return
	}
	_ = d.Partner.Send(&transport.PartnerDisconnected{
		Type:      transport.TypePartnerDisconnected,
		SessionID: d.Session.ID.String(),
	})
	orch.Stop(d.Partner.ID)
}

// runReaper drives session.Registry.Sweep on a ticker (spec §4.2, §5),
// notifying any participants whose sessions were reaped for inactivity and
// stopping their pipeline tasks the same way an explicit disconnect would.
func runReaper(ctx context.Context, registry *session.Registry, orch *pipeline.Orchestrator, interval time.Duration, c *counters) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			for _, d := range registry.Sweep(now) {
				onDisconnect(orch, c, d)
			}
		}
	}
}

// counters are the process-local, in-memory figures /healthz reports
// (spec's supplemented "/healthz and /metrics-shaped counters", not the
// excluded admin REST surface).
type counters struct {
	disconnects int64
}

func (c *counters) incDisconnects() { atomic.AddInt64(&c.disconnects, 1) }

func healthHandler(registry *session.Registry, c *counters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":      "ok",
			"disconnects": atomic.LoadInt64(&c.disconnects),
		})
	}
}

func newLogger() *zap.Logger {
	level := strings.ToLower(os.Getenv("APP_LOG_LEVEL"))
	cfg := zap.NewProductionConfig()

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	case "warn", "warning":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	return logger
}
