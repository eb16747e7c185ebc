package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Furkansz/voice-translation-api/internal/session"
)

type fakePipeline struct {
	started []uuid.UUID
	stopped []uuid.UUID
}

func (f *fakePipeline) Start(sess *session.Session, p, partner *session.Participant) {
	f.started = append(f.started, p.ID, partner.ID)
}
func (f *fakePipeline) Submit(participantID uuid.UUID, frame []byte, receivedAt time.Time) {}
func (f *fakePipeline) Stop(participantID uuid.UUID)                                     { f.stopped = append(f.stopped, participantID) }

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return c
}

// TestJoinPairsTwoParticipants covers the transport half of S1: two clients
// joining with opposite-language roles get session-ready.
func TestJoinPairsTwoParticipants(t *testing.T) {
	reg := session.NewRegistry(session.Options{}, nil)
	pipeline := &fakePipeline{}
	h := NewHandler(reg, pipeline, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer srv.Close()

	a := dial(t, srv)
	defer a.Close()
	if err := a.WriteJSON(JoinSession{Type: TypeJoinSession, Role: "doctor", Language: "tr", VoiceID: "v_tr"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	_, msg, err := a.ReadMessage()
	if err != nil {
		t.Fatalf("read waiting notification: %v", err)
	}
	var env struct{ Type string }
	_ = json.Unmarshal(msg, &env)
	if env.Type != TypeWaitingForPartner {
		t.Fatalf("expected waiting-for-partner, got %s", env.Type)
	}

	b := dial(t, srv)
	defer b.Close()
	if err := b.WriteJSON(JoinSession{Type: TypeJoinSession, Role: "patient", Language: "en", VoiceID: "v_en"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_, msg, err = a.ReadMessage()
	if err != nil {
		t.Fatalf("read session-ready for A: %v", err)
	}
	_ = json.Unmarshal(msg, &env)
	if env.Type != TypeSessionReady {
		t.Fatalf("expected session-ready for A, got %s", env.Type)
	}

	_, msg, err = b.ReadMessage()
	if err != nil {
		t.Fatalf("read session-joined/ready for B: %v", err)
	}
	_ = json.Unmarshal(msg, &env)
	if env.Type != TypeSessionJoined {
		t.Fatalf("expected session-joined for B, got %s", env.Type)
	}

	if len(pipeline.started) != 2 {
		t.Fatalf("expected pipeline.Start to record both participants, got %d", len(pipeline.started))
	}
}

// TestRejectsMissingFields covers the invalid-input path from spec §4.1:
// the connection is closed with a typed error, never left hanging.
func TestRejectsMissingFields(t *testing.T) {
	reg := session.NewRegistry(session.Options{}, nil)
	h := NewHandler(reg, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeHTTP))
	defer srv.Close()

	c := dial(t, srv)
	defer c.Close()
	if err := c.WriteJSON(JoinSession{Type: TypeJoinSession, Role: "", Language: "en", VoiceID: "v"}); err != nil {
		t.Fatalf("write hello: %v", err)
	}

	_, msg, err := c.ReadMessage()
	if err != nil {
		t.Fatalf("expected an error message before close, got err: %v", err)
	}
	var env struct{ Type string }
	_ = json.Unmarshal(msg, &env)
	if env.Type != TypePipelineError {
		t.Fatalf("expected pipeline-error, got %s", env.Type)
	}

	if _, _, err := c.ReadMessage(); err == nil {
		t.Fatalf("expected the server to close the connection after the error")
	}
}
