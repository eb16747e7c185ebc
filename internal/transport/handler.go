// Package transport implements the client-facing WebSocket endpoint (spec
// §4.1): connection upgrade, the join/reconnect handshake, message framing,
// and the heartbeat. It is grounded on the teacher pack's live-session
// handler shape (vango-go-vai-lite/pkg/gateway/handlers/live.go: upgrade,
// read-and-decode-hello, validate, construct session, run) and its
// single-writer-per-connection discipline
// (vango-go-vai-lite/pkg/gateway/live/session/writer.go).
package transport

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Furkansz/voice-translation-api/internal/session"
)

// Pipeline is the narrow surface the transport layer drives once a session
// goes Active. internal/pipeline implements it; transport never imports
// pipeline directly so the dependency only runs one way, the same pattern
// internal/session uses for its Sender interface.
type Pipeline interface {
	// Start begins streaming orchestration for a newly-Active session's two
	// participants. Called at most once per session.
	Start(sess *session.Session, p, partner *session.Participant)
	// Submit forwards one inbound audio frame to participantID's pipeline task.
	Submit(participantID uuid.UUID, frame []byte, receivedAt time.Time)
	// Stop tears down participantID's pipeline task (ASR handle, gate timer,
	// in-flight MT/TTS) on disconnect or session end.
	Stop(participantID uuid.UUID)
}

// Handler upgrades HTTP connections to the live WebSocket protocol and
// drives each one for its lifetime.
type Handler struct {
	Registry *session.Registry
	Pipeline Pipeline
	Logger   *zap.Logger
	Config   Config

	HandshakeTimeout time.Duration
	upgrader         websocket.Upgrader
}

// NewHandler builds a Handler with sane defaults; CheckOrigin permissive
// matches the teacher's gateway default of allowing all origins at this
// layer and enforcing auth/allowlists above it (not applicable here — this
// spec carries no auth surface).
func NewHandler(reg *session.Registry, pipeline Pipeline, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Registry:         reg,
		Pipeline:         pipeline,
		Logger:           logger,
		Config:           DefaultConfig(),
		HandshakeTimeout: 5 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := NewConn(ws, h.Config, h.Logger)

	hello, err := h.readHello(ws)
	if err != nil {
		h.Logger.Info("rejecting connection with invalid hello", zap.Error(err))
		_ = ws.WriteJSON(PipelineError{Type: TypePipelineError, Stage: "session", Message: err.Error()})
		_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()), time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}

	go func() {
		if err := conn.Run(); err != nil {
			h.Logger.Debug("writer loop exited", zap.Error(err))
		}
	}()

	participant, sess, outcome := h.Registry.AddUser(hello.Role, hello.Language, hello.VoiceID, conn)
	h.announce(participant, sess, outcome)

	h.readLoop(ws, conn, participant)
}

func (h *Handler) readHello(ws *websocket.Conn) (JoinSession, error) {
	_ = ws.SetReadDeadline(time.Now().Add(h.HandshakeTimeout))
	defer ws.SetReadDeadline(time.Time{})

	msgType, data, err := ws.ReadMessage()
	if err != nil {
		return JoinSession{}, err
	}
	if msgType != websocket.TextMessage {
		return JoinSession{}, errInvalidHello("first frame must be a join-session control message")
	}
	var hello JoinSession
	if err := json.Unmarshal(data, &hello); err != nil {
		return JoinSession{}, errInvalidHello("malformed join-session payload")
	}
	if hello.Type != TypeJoinSession {
		return JoinSession{}, errInvalidHello("first frame must be type join-session")
	}
	if strings.TrimSpace(hello.Role) == "" || strings.TrimSpace(hello.Language) == "" || strings.TrimSpace(hello.VoiceID) == "" {
		return JoinSession{}, errInvalidHello("role, language and voiceId are required")
	}
	return hello, nil
}

type errInvalidHello string

func (e errInvalidHello) Error() string { return string(e) }

// announce sends the join-time notifications: waiting-for-partner to a lone
// waiter; session-joined to the second participant, then session-ready to
// both once it arrives; nothing on a silent reconnect.
func (h *Handler) announce(p *session.Participant, sess *session.Session, outcome session.AddOutcome) {
	switch outcome {
	case session.OutcomeWaiting:
		_ = p.Send(&WaitingForPartner{Type: TypeWaitingForPartner, SessionID: sess.ID.String()})
	case session.OutcomeReconnected:
		// Transport handle swapped silently; session and pipeline already running.
	case session.OutcomePaired:
		partner := sess.Partner(p.ID)
		_ = p.Send(&SessionJoined{Type: TypeSessionJoined, SessionID: sess.ID.String()})
		if partner != nil {
			_ = p.Send(&SessionReady{Type: TypeSessionReady, SessionID: sess.ID.String(), PartnerRole: partner.Role, PartnerLanguage: partner.Language})
			_ = partner.Send(&SessionReady{Type: TypeSessionReady, SessionID: sess.ID.String(), PartnerRole: p.Role, PartnerLanguage: p.Language})
			if h.Pipeline != nil {
				h.Pipeline.Start(sess, p, partner)
			}
		}
	}
}

// readLoop drains inbound frames until the socket closes, then removes the
// participant from the registry. RemoveUser only detaches the transport and
// arms the reconnect-window timer (session.Registry.RemoveUser) — it does
// not itself stop the pipeline task, so a rejoin within the window finds its
// ASR handle and gate still alive. The pipeline is only ever stopped from
// the registry's deferred onDisconnect callback once the window actually
// lapses unmatched (wired in cmd/server/main.go).
func (h *Handler) readLoop(ws *websocket.Conn, conn *Conn, p *session.Participant) {
	defer func() {
		_ = conn.Close(websocket.CloseNormalClosure, "")
		h.Registry.RemoveUser(p.ID)
	}()

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		now := time.Now()
		p.Touch(now)

		switch msgType {
		case websocket.BinaryMessage:
			if h.Pipeline != nil {
				h.Pipeline.Submit(p.ID, data, now)
			}
		case websocket.TextMessage:
			h.handleControl(p, data, now)
		}
	}
}

func (h *Handler) handleControl(p *session.Participant, data []byte, now time.Time) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return
	}
	switch envelope.Type {
	case TypeHeartbeatPong:
		// Touch already recorded above; nothing further to do.
	case TypeStreamingAudio:
		var msg StreamingAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		raw, err := base64.StdEncoding.DecodeString(msg.PCM)
		if err != nil {
			_ = p.Send(&PipelineError{Type: TypePipelineError, Stage: "session", Message: "invalid base64 audio"})
			return
		}
		if h.Pipeline != nil {
			h.Pipeline.Submit(p.ID, raw, now)
		}
	case TypeJoinSession:
		// A repeated hello on an already-established connection is a no-op;
		// reconnection happens by opening a new connection, not re-sending
		// join-session on a live one.
	}
}
