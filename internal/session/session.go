// Package session implements the session/participant registry and the
// pairing engine described in spec §3 and §4.2: it binds two participants
// speaking different source languages into a Session, hands out Pending
// status while a participant waits for a partner, and reaps idle or
// abandoned state on a schedule driven by the caller (see Registry.Sweep).
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a Session's position in its Pending -> Active -> Ended lifecycle.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// Stats holds the rolling statistics spec §3 assigns to a Session.
type Stats struct {
	mu                  sync.Mutex
	MessageCount        int64
	TranslationCount    int64
	ErrorCount          int64
	cumulativeLatencyMs int64
	latencySamples      int64
}

// RecordLatency folds one utterance's total pipeline latency into the
// session's cumulative and rolling-average figures.
func (s *Stats) RecordLatency(ms int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cumulativeLatencyMs += ms
	s.latencySamples++
	s.TranslationCount++
}

// IncMessage records one inbound utterance attempt toward MessageCount.
func (s *Stats) IncMessage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MessageCount++
}

// IncError records one pipeline-stage failure toward ErrorCount.
func (s *Stats) IncError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorCount++
}

// AverageLatencyMs returns the rolling mean latency, or 0 with no samples yet.
func (s *Stats) AverageLatencyMs() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latencySamples == 0 {
		return 0
	}
	return float64(s.cumulativeLatencyMs) / float64(s.latencySamples)
}

// Snapshot is a point-in-time, lock-free copy of Stats for status reporting.
type Snapshot struct {
	MessageCount        int64
	TranslationCount    int64
	ErrorCount          int64
	CumulativeLatencyMs int64
	AverageLatencyMs    float64
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	avg := float64(0)
	if s.latencySamples > 0 {
		avg = float64(s.cumulativeLatencyMs) / float64(s.latencySamples)
	}
	return Snapshot{
		MessageCount:        s.MessageCount,
		TranslationCount:    s.TranslationCount,
		ErrorCount:          s.ErrorCount,
		CumulativeLatencyMs: s.cumulativeLatencyMs,
		AverageLatencyMs:    avg,
	}
}

// Session binds exactly two participants speaking different source
// languages. See spec §3 "Session" and its invariants.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu           sync.Mutex
	status       Status
	endedAt      time.Time
	participants map[uuid.UUID]*Participant
	Stats        *Stats
}

func newSession(now time.Time) *Session {
	return &Session{
		ID:           uuid.New(),
		CreatedAt:    now,
		status:       StatusPending,
		participants: make(map[uuid.UUID]*Participant, 2),
		Stats:        &Stats{},
	}
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Participants returns a snapshot of the session's members, in no
// particular order.
func (s *Session) Participants() []*Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, p)
	}
	return out
}

// Partner returns the other participant in the session, or nil if the
// session doesn't (yet) have two members or id isn't one of them.
func (s *Session) Partner(id uuid.UUID) *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[id]; !ok {
		return nil
	}
	for pid, p := range s.participants {
		if pid != id {
			return p
		}
	}
	return nil
}

func (s *Session) addParticipant(p *Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
	if len(s.participants) == 2 {
		s.status = StatusActive
	}
}

func (s *Session) removeParticipant(id uuid.UUID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants, id)
	if s.status != StatusEnded {
		s.status = StatusEnded
		s.endedAt = now
	}
}
