package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sender is the narrow outbound surface a participant's transport exposes to
// the rest of the system. internal/transport implements it; this package
// never imports transport, so the dependency only ever runs one way —
// consistent with the Design Note that pipeline tasks reach participants
// only through weak registry lookups, never direct ownership.
type Sender interface {
	// Send marshals v as a JSON control message and writes it to the client.
	Send(v any) error
	// SendBinary writes an opaque binary audio frame to the client.
	SendBinary(b []byte) error
	// Close terminates the underlying transport with a protocol close code.
	Close(code int, reason string) error
}

// Participant is the semantic identity of one speaker in a session. See
// spec §3 "Participant".
type Participant struct {
	ID        uuid.UUID
	Role      string
	Language  string
	VoiceID   string
	JoinedAt  time.Time
	SessionID uuid.UUID

	mu           sync.Mutex
	transport    Sender
	lastActivity time.Time
}

func newParticipant(role, language, voiceID string, now time.Time) *Participant {
	return &Participant{
		ID:           uuid.New(),
		Role:         role,
		Language:     language,
		VoiceID:      voiceID,
		JoinedAt:     now,
		lastActivity: now,
	}
}

// SetTransport swaps the live transport handle. Safe to call concurrently
// with Send/Touch; this is the only mutation a reconnect performs.
func (p *Participant) SetTransport(s Sender) {
	p.mu.Lock()
	p.transport = s
	p.mu.Unlock()
}

// Transport returns the current transport handle, or nil if the participant
// is mid-reconnect-window with no live connection.
func (p *Participant) Transport() Sender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport
}

// Send delivers a message to this participant if it currently has a live
// transport; it is a no-op (not an error) while the participant is
// disconnected but still inside its reconnect window, matching the
// single utterance's failure being local (spec §7): a transient gap never
// propagates as an error to anyone.
func (p *Participant) Send(v any) error {
	t := p.Transport()
	if t == nil {
		return nil
	}
	return t.Send(v)
}

// SendBinary delivers an audio frame to this participant's transport, if any.
func (p *Participant) SendBinary(b []byte) error {
	t := p.Transport()
	if t == nil {
		return nil
	}
	return t.SendBinary(b)
}

// Touch records activity (an inbound audio frame or control message) for
// idle-timeout bookkeeping.
func (p *Participant) Touch(now time.Time) {
	p.mu.Lock()
	p.lastActivity = now
	p.mu.Unlock()
}

// LastActivity returns the last time Touch was called.
func (p *Participant) LastActivity() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastActivity
}
