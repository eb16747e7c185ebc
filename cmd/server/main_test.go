package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/Furkansz/voice-translation-api/internal/config"
	"github.com/Furkansz/voice-translation-api/internal/session"
)

type fakeSender struct {
	sent   []any
	binary [][]byte
}

func (f *fakeSender) Send(v any) error             { f.sent = append(f.sent, v); return nil }
func (f *fakeSender) SendBinary(b []byte) error     { f.binary = append(f.binary, b); return nil }
func (f *fakeSender) Close(code int, reason string) error { return nil }

func TestHealthHandlerReportsStatusAndCounters(t *testing.T) {
	registry := session.NewRegistry(session.Options{}, nil)
	c := &counters{}
	c.incDisconnects()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()

	healthHandler(registry, c).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status code: %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected json content type, got %q", ct)
	}
}

func TestNewLoggerHonorsEnv(t *testing.T) {
	t.Setenv("APP_LOG_LEVEL", "debug")
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected logger to enable debug level")
	}
}

func TestNewLoggerDefaultLevel(t *testing.T) {
	t.Setenv("APP_LOG_LEVEL", "")
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	if logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected debug level disabled by default")
	}
	if !logger.Core().Enabled(zap.InfoLevel) {
		t.Fatal("expected info level enabled by default")
	}
}

func TestOnDisconnectNotifiesSurvivingPartner(t *testing.T) {
	orch := buildOrchestrator(config.Load(), zap.NewNop())

	registry := session.NewRegistry(session.Options{}, nil)
	doctor, _, _ := registry.AddUser("doctor", "en", "v_en", &fakeSender{})
	survivorSender := &fakeSender{}
	patient, sess, outcome := registry.AddUser("patient", "tr", "v_tr", survivorSender)
	if outcome != session.OutcomePaired {
		t.Fatalf("expected pairing, got %v", outcome)
	}

	c := &counters{}
	onDisconnect(orch, c, session.Disconnected{
		Participant: doctor,
		Partner:     patient,
		Session:     sess,
	})

	if c.disconnects != 1 {
		t.Fatalf("expected disconnect counter to increment, got %d", c.disconnects)
	}
	if len(survivorSender.sent) != 1 {
		t.Fatalf("expected the surviving partner to receive one notification, got %d", len(survivorSender.sent))
	}
}
