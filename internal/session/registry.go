package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AddOutcome reports which branch of the §4.2 matching policy AddUser took.
type AddOutcome int

const (
	// OutcomeReconnected means an existing participant's transport was
	// swapped in place; the session and pipeline are preserved untouched.
	OutcomeReconnected AddOutcome = iota
	// OutcomePaired means the joiner matched a waiting partner and the
	// session just became Active.
	OutcomePaired
	// OutcomeWaiting means no partner was available; the joiner is now
	// queued and the session is Pending.
	OutcomeWaiting
)

// Options configures Registry timing. Zero values fall back to the spec's
// documented defaults (see SPEC_FULL.md §9).
type Options struct {
	Logger *zap.SugaredLogger

	// ReconnectWindow is how long a disconnected participant's teardown
	// (partner notification, requeue, session end) is deferred, giving a
	// matching rejoin a chance to swap the transport back in instead.
	ReconnectWindow time.Duration
	// EndedGrace is how long an Ended session stays discoverable via
	// GetSession before it's garbage-collected (spec §4.2).
	EndedGrace time.Duration
	// PendingTimeout reaps Pending sessions older than this (spec §4.2, §5).
	PendingTimeout time.Duration
	// IdleSessionTimeout reaps Active sessions silent on both sides for
	// this long (spec §4.2, §5).
	IdleSessionTimeout time.Duration

	// Now overrides time.Now, for deterministic tests.
	Now func() time.Time
}

const (
	defaultReconnectWindow    = 20 * time.Second
	defaultEndedGrace         = 30 * time.Second
	defaultPendingTimeout     = 30 * time.Minute
	defaultIdleSessionTimeout = 3 * time.Minute
)

// Disconnected is delivered to Registry's owner when a participant's
// teardown timer actually fires (i.e. no reconnect happened in time). The
// caller is responsible for any externally-visible side effect — sending
// partner-disconnected over the wire, closing a transport — the registry
// only tracks state.
type Disconnected struct {
	Participant *Participant
	Partner     *Participant // nil if the session never became Active
	Session     *Session
}

// Registry owns Session and Participant objects and the pairing queues.
// All mutating operations take a single short-held lock (spec §5); reads
// of the session/participant maps share the same mutex because the
// workload is dominated by short critical sections, not long scans.
type Registry struct {
	mu sync.Mutex

	logger *zap.SugaredLogger
	now    func() time.Time

	reconnectWindow    time.Duration
	endedGrace         time.Duration
	pendingTimeout     time.Duration
	idleSessionTimeout time.Duration

	sessions     map[uuid.UUID]*Session
	participants map[uuid.UUID]*Participant
	waiting      map[string][]*Participant // role -> FCFS queue
	pendingTeardown map[uuid.UUID]*time.Timer

	onDisconnect func(Disconnected)
}

// NewRegistry constructs a Registry. onDisconnect is invoked (from the
// registry's internal timer goroutine) whenever a teardown actually runs;
// it must not block or re-enter the registry synchronously.
func NewRegistry(opts Options, onDisconnect func(Disconnected)) *Registry {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	r := &Registry{
		logger:              logger,
		now:                 now,
		reconnectWindow:     orDefault(opts.ReconnectWindow, defaultReconnectWindow),
		endedGrace:          orDefault(opts.EndedGrace, defaultEndedGrace),
		pendingTimeout:      orDefault(opts.PendingTimeout, defaultPendingTimeout),
		idleSessionTimeout:  orDefault(opts.IdleSessionTimeout, defaultIdleSessionTimeout),
		sessions:            make(map[uuid.UUID]*Session),
		participants:        make(map[uuid.UUID]*Participant),
		waiting:             make(map[string][]*Participant),
		pendingTeardown:     make(map[uuid.UUID]*time.Timer),
		onDisconnect:        onDisconnect,
	}
	return r
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// AddUser implements the §4.2 matching policy: reconnection check, then
// opposite-queue scan, then enqueue.
func (r *Registry) AddUser(role, language, voiceID string, transport Sender) (*Participant, *Session, AddOutcome) {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	// 1. Reconnection check.
	if existing := r.findReconnectMatch(role, language, voiceID); existing != nil {
		if timer, ok := r.pendingTeardown[existing.ID]; ok {
			timer.Stop()
			delete(r.pendingTeardown, existing.ID)
		}
		existing.SetTransport(transport)
		existing.Touch(now)
		sess := r.sessions[existing.SessionID]
		return existing, sess, OutcomeReconnected
	}

	joiner := newParticipant(role, language, voiceID, now)
	joiner.SetTransport(transport)
	r.participants[joiner.ID] = joiner

	// 2. Opposite-queue scan: earliest-enqueued waiting participant with a
	// different role and a different language.
	// The waiter's own Pending session is the one that goes Active.
	if partner := r.popFirstMatch(role, language); partner != nil {
		sess, ok := r.sessions[partner.SessionID]
		if !ok {
			sess = newSession(now)
			sess.addParticipant(partner)
			partner.SessionID = sess.ID
			r.sessions[sess.ID] = sess
		}
		sess.addParticipant(joiner)
		joiner.SessionID = sess.ID
		return joiner, sess, OutcomePaired
	}

	// 3. Enqueue into own-role list; stays Pending holding only the joiner.
	sess := newSession(now)
	sess.addParticipant(joiner)
	joiner.SessionID = sess.ID
	r.sessions[sess.ID] = sess
	r.waiting[role] = append(r.waiting[role], joiner)
	return joiner, sess, OutcomeWaiting
}

// findReconnectMatch scans known participants (including those currently
// mid-teardown-grace) for an exact (role, language, voiceID) match.
func (r *Registry) findReconnectMatch(role, language, voiceID string) *Participant {
	for _, p := range r.participants {
		if p.Role == role && p.Language == language && p.VoiceID == voiceID {
			return p
		}
	}
	return nil
}

// popFirstMatch removes and returns the earliest-enqueued waiting
// participant whose role differs from role and whose language differs
// from language. Ties are broken by enqueue order (queues are FCFS).
func (r *Registry) popFirstMatch(role, language string) *Participant {
	var (
		bestRole string
		bestIdx  = -1
		best     *Participant
	)
	for waitingRole, queue := range r.waiting {
		if waitingRole == role {
			continue
		}
		for i, candidate := range queue {
			if candidate.Language == language {
				continue
			}
			if best == nil || candidate.JoinedAt.Before(best.JoinedAt) {
				best = candidate
				bestRole = waitingRole
				bestIdx = i
			}
			break // within one queue, only the first differing-language entry is eligible
		}
	}
	if best == nil {
		return nil
	}
	queue := r.waiting[bestRole]
	r.waiting[bestRole] = append(queue[:bestIdx], queue[bestIdx+1:]...)
	return best
}

// RemoveUser begins the disconnect sequence for a participant (spec §4.1
// "Disconnect"): the transport handle is cleared immediately and a
// reconnectWindow timer is armed. If nothing reconnects before it fires,
// onDisconnect runs with the partner/session teardown information.
func (r *Registry) RemoveUser(participantID uuid.UUID) {
	r.mu.Lock()
	p, ok := r.participants[participantID]
	if !ok {
		r.mu.Unlock()
		return
	}
	p.SetTransport(nil)
	if _, already := r.pendingTeardown[participantID]; already {
		r.mu.Unlock()
		return
	}
	timer := time.AfterFunc(r.reconnectWindow, func() { r.teardown(participantID) })
	r.pendingTeardown[participantID] = timer
	r.mu.Unlock()
}

func (r *Registry) teardown(participantID uuid.UUID) {
	now := r.now()

	r.mu.Lock()
	p, ok := r.participants[participantID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.pendingTeardown, participantID)
	delete(r.participants, participantID)
	r.removeFromWaitQueue(p)

	sess := r.sessions[p.SessionID]
	var partner *Participant
	if sess != nil {
		partner = sess.Partner(participantID)
		sess.removeParticipant(participantID, now)
		if partner != nil {
			sess.removeParticipant(partner.ID, now)
			partner.SessionID = uuid.Nil
		}
	}
	r.mu.Unlock()

	if partner != nil {
		r.RequeuePartner(partner)
	}
	if r.onDisconnect != nil {
		r.onDisconnect(Disconnected{Participant: p, Partner: partner, Session: sess})
	}
}

func (r *Registry) removeFromWaitQueue(p *Participant) {
	queue := r.waiting[p.Role]
	for i, q := range queue {
		if q.ID == p.ID {
			r.waiting[p.Role] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

// RequeuePartner places a partner that lost its other half back into its
// own waiting list as a fresh Pending session, per spec §4.1/§4.2.
func (r *Registry) RequeuePartner(p *Participant) *Session {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	sess := newSession(now)
	sess.addParticipant(p)
	p.SessionID = sess.ID
	r.sessions[sess.ID] = sess
	r.waiting[p.Role] = append(r.waiting[p.Role], p)
	return sess
}

// GetSession looks up a session by id. Ended sessions remain discoverable
// for EndedGrace after ending (spec §4.2).
func (r *Registry) GetSession(id uuid.UUID) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// FindPartner returns the partner of participantID within its current
// session, or nil.
func (r *Registry) FindPartner(participantID uuid.UUID) *Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[participantID]
	if !ok {
		return nil
	}
	sess, ok := r.sessions[p.SessionID]
	if !ok {
		return nil
	}
	return sess.Partner(participantID)
}

// GetParticipant looks up a live participant by id.
func (r *Registry) GetParticipant(id uuid.UUID) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	return p, ok
}

// Sweep runs the reaper pass described in spec §4.2/§5: drop Ended
// sessions past their grace window, reap idle Active sessions and stale
// Pending sessions. It returns the participants whose sessions were reaped
// so the caller can notify/close their transports.
func (r *Registry) Sweep(now time.Time) []Disconnected {
	r.mu.Lock()
	var toTeardown []uuid.UUID
	for id, sess := range r.sessions {
		switch sess.Status() {
		case StatusEnded:
			if now.Sub(sess.EndedAt()) > r.endedGrace {
				delete(r.sessions, id)
			}
		case StatusPending:
			if now.Sub(sess.CreatedAt) > r.pendingTimeout {
				for _, p := range sess.Participants() {
					toTeardown = append(toTeardown, p.ID)
				}
			}
		case StatusActive:
			idle := true
			for _, p := range sess.Participants() {
				if now.Sub(p.LastActivity()) < r.idleSessionTimeout {
					idle = false
					break
				}
			}
			if idle {
				for _, p := range sess.Participants() {
					toTeardown = append(toTeardown, p.ID)
				}
			}
		}
	}
	r.mu.Unlock()

	var out []Disconnected
	for _, id := range toTeardown {
		r.mu.Lock()
		if timer, ok := r.pendingTeardown[id]; ok {
			timer.Stop()
			delete(r.pendingTeardown, id)
		}
		r.mu.Unlock()
		if d := r.teardownSync(id); d != nil {
			out = append(out, *d)
		}
	}
	return out
}

// teardownSync performs the same work as teardown but returns the result
// instead of invoking onDisconnect, so Sweep can batch notifications.
func (r *Registry) teardownSync(participantID uuid.UUID) *Disconnected {
	now := r.now()

	r.mu.Lock()
	p, ok := r.participants[participantID]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(r.participants, participantID)
	r.removeFromWaitQueue(p)

	sess := r.sessions[p.SessionID]
	var partner *Participant
	if sess != nil {
		partner = sess.Partner(participantID)
		sess.removeParticipant(participantID, now)
		if partner != nil {
			sess.removeParticipant(partner.ID, now)
			partner.SessionID = uuid.Nil
		}
	}
	r.mu.Unlock()

	return &Disconnected{Participant: p, Partner: partner, Session: sess}
}
