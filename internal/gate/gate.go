package gate

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Thresholds collects the gate's configurable numeric knobs (set from
// internal/config's APP_GATE_MIN_CONFIDENCE, APP_GATE_MIN_WORDS,
// APP_GATE_MIN_CHARS, APP_GATE_SHORT_MSG_TIMEOUT,
// APP_GATE_CONVERSATIONAL_PAUSE, APP_GATE_SENTENCE_COMPLETION,
// APP_GATE_THOUGHT_COMPLETION, APP_GATE_EMERGENCY_TIMEOUT,
// APP_GATE_DEDUP_WINDOW).
type Thresholds struct {
	MinConfidence float64
	MinWords      int
	MinChars      int

	ShortMessageTimeout time.Duration
	ConversationalPause time.Duration
	SentenceCompletion  time.Duration
	ThoughtCompletion   time.Duration
	EmergencyTimeout    time.Duration
	DedupWindow         time.Duration

	MinNormalFireScore float64
	ImmediateFireScore float64
}

// DefaultThresholds matches the literal values spec §4.4 names.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinConfidence:       0.8,
		MinWords:            3,
		MinChars:            15,
		ShortMessageTimeout: 3 * time.Second,
		ConversationalPause: 750 * time.Millisecond,
		SentenceCompletion:  1200 * time.Millisecond,
		ThoughtCompletion:   2000 * time.Millisecond,
		EmergencyTimeout:    4000 * time.Millisecond,
		DedupWindow:         3 * time.Second,
		MinNormalFireScore:  0.4,
		ImmediateFireScore:  0.8,
	}
}

const formalRole = "doctor"

type pendingCandidate struct {
	best       string
	confidence float64
	isFinal    bool
	score      float64
	startedAt  time.Time
	lastSeenAt time.Time
}

// Gate is the per-participant completion-scoring state machine. A Gate is
// owned by exactly one pipeline task; Consider is not safe to call
// concurrently from more than one goroutine, except that the fired timer
// callback runs on its own goroutine and is internally synchronized.
type Gate struct {
	participantID uuid.UUID
	language      string
	role          string

	lang       *LanguageProfile
	profile    *ConversationProfile
	thresholds Thresholds
	clock      func() time.Time
	onReady    func(Utterance)

	mu      sync.Mutex
	pending *pendingCandidate
	timer   *time.Timer
}

// New builds a Gate for one participant. onReady is invoked (on the timer's
// own goroutine, or synchronously from Consider for immediate fires)
// whenever the gate decides a candidate is a complete Utterance.
func New(participantID uuid.UUID, language, role string, lang *LanguageProfile, profile *ConversationProfile, thresholds Thresholds, onReady func(Utterance)) *Gate {
	return &Gate{
		participantID: participantID,
		language:      language,
		role:          role,
		lang:          lang,
		profile:       profile,
		thresholds:    thresholds,
		clock:         time.Now,
		onReady:       onReady,
	}
}

// Consider feeds one ASR candidate (partial or final transcript) into the
// state machine (spec §4.4 "Decision policy, on each call").
func (g *Gate) Consider(text string, confidence float64, isFinal bool) {
	now := g.clock()
	trimmed := text
	normalized := normalizeText(trimmed)
	if normalized == "" {
		return
	}

	if g.profile.dedupCheck(normalized, now, g.thresholds.DedupWindow) {
		return
	}

	score := completionScore(trimmed, confidence, g.lang, g.profile)
	words := wordCount(trimmed)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending != nil && len(trimmed) >= len(g.pending.best) {
		g.pending.best = trimmed
		g.pending.confidence = confidence
		g.pending.isFinal = isFinal
		g.pending.score = score
		g.pending.lastSeenAt = now
	} else if g.pending == nil {
		g.pending = &pendingCandidate{
			best:       trimmed,
			confidence: confidence,
			isFinal:    isFinal,
			score:      score,
			startedAt:  now,
			lastSeenAt: now,
		}
	} else {
		g.pending.confidence = confidence
		g.pending.isFinal = g.pending.isFinal || isFinal
		if score > g.pending.score {
			g.pending.score = score
		}
		g.pending.lastSeenAt = now
	}

	g.stopTimerLocked()

	if g.immediateFire(trimmed, score, confidence, isFinal, words) {
		g.fireLocked(now)
		return
	}

	switch {
	case words <= 2:
		g.armTimerLocked(g.thresholds.ShortMessageTimeout)
	case words >= g.thresholds.MinWords && score >= g.thresholds.MinNormalFireScore:
		g.armTimerLocked(g.normalTimerDuration(score))
	default:
		// Accumulate: wait for a longer candidate, or the next Consider call's
		// timer branches above to take over. No timer armed here matches spec's
		// "accumulate, waiting for a longer candidate" fallback.
	}
}

func (g *Gate) immediateFire(text string, score, confidence float64, isFinal bool, words int) bool {
	t := g.thresholds
	if containsAny(text, g.lang.UrgencyKeywords) {
		return true
	}
	if score >= t.ImmediateFireScore && confidence >= t.MinConfidence {
		return true
	}
	isQuestion := len(text) > 0 && (text[len(text)-1] == '?' || startsWithInterrogative(splitWords(text), g.lang))
	if isQuestion && score >= 0.6 {
		return true
	}
	if isFinal && words >= t.MinWords && confidence >= t.MinConfidence {
		return true
	}
	if containsAny(text, g.lang.DomainKeywords) && score >= 0.6 {
		return true
	}
	return false
}

// normalTimerDuration implements the f(score, profile) formula from spec
// §4.4: scale the running-average pause (or, before the profile has
// stabilized, a score-banded seed value) by score/role/domain
// multipliers, bounded to [500ms, EmergencyTimeout].
func (g *Gate) normalTimerDuration(score float64) time.Duration {
	t := g.thresholds

	base := g.profile.avgPause()
	if g.profile.totalUtterances() < 3 {
		switch {
		case score >= 0.6:
			base = t.ConversationalPause
		case score <= 0.3:
			base = t.ThoughtCompletion
		default:
			base = t.SentenceCompletion
		}
	}

	mult := 1.0
	switch {
	case score >= 0.6:
		mult *= 0.6
	case score <= 0.3:
		mult *= 1.4
	}
	if g.role == formalRole {
		mult *= 1.1
	}
	if g.pending != nil && containsAny(g.pending.best, g.lang.DomainKeywords) {
		mult *= 1.2
	}

	d := time.Duration(float64(base) * mult)
	const floor = 500 * time.Millisecond
	if d < floor {
		d = floor
	}
	if d > t.EmergencyTimeout {
		d = t.EmergencyTimeout
	}
	return d
}

func (g *Gate) armTimerLocked(d time.Duration) {
	g.timer = time.AfterFunc(d, func() {
		now := g.clock()
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.pending == nil {
			return
		}
		g.fireLocked(now)
	})
}

func (g *Gate) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}

// fireLocked emits the pending candidate as an Utterance, folds its stats
// into the adaptive profile, and resets pending state. Caller holds g.mu.
func (g *Gate) fireLocked(now time.Time) {
	p := g.pending
	g.pending = nil
	g.stopTimerLocked()
	if p == nil {
		return
	}

	pause := now.Sub(p.startedAt)
	words := wordCount(p.best)
	g.profile.observe(words, pause, p.confidence, p.score)
	g.profile.markProcessed(normalizeText(p.best), now)

	if g.onReady != nil {
		g.onReady(Utterance{
			Text:            p.best,
			Language:        g.language,
			Confidence:      p.confidence,
			CompletionScore: p.score,
			Timestamp:       now,
			ParticipantID:   g.participantID,
		})
	}
}

// Flush forces whatever is pending to fire immediately, e.g. on session end
// or participant disconnect, so no trailing utterance is silently dropped.
func (g *Gate) Flush() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending != nil {
		g.fireLocked(g.clock())
	}
}

func wordCount(s string) int {
	return len(splitWords(s))
}

func splitWords(s string) []string {
	return strings.Fields(s)
}
