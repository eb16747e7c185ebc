// Package gate implements the professional-conversation processor (spec
// §4.4): a per-participant state machine that turns a noisy stream of ASR
// partial/final transcripts into discrete, translation-worthy Utterances.
package gate

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Utterance is the immutable unit the gate produces; only utterances
// trigger MT+TTS (spec §3).
type Utterance struct {
	Text            string
	Language        string
	Confidence      float64
	CompletionScore float64
	Timestamp       time.Time
	ParticipantID   uuid.UUID
}

// LanguageProfile is the static, per-language grammar/keyword data the
// gate is parameterized with at construction (spec §4.4 final paragraph):
// "the core does not itself learn vocabulary."
type LanguageProfile struct {
	// Agglutinative switches the grammar heuristic from a verb-word list to
	// verb-ending pattern matching (spec: "verb-ending patterns for
	// agglutinative languages; verb-word list + gerund/past forms for
	// analytic languages").
	Agglutinative bool

	InterrogativeWords []string
	VerbWords          []string // analytic languages
	VerbEndings        []string // agglutinative languages (suffix match)
	DomainKeywords      []string
	UrgencyKeywords     []string
	TopicStartMarkers   []string
}

// ConversationProfile is the adaptive, per-participant state the gate
// mutates on every firing (spec §3 "Conversation profile").
type ConversationProfile struct {
	mu sync.Mutex

	AvgSentenceLength float64       // running mean, in words
	AvgPause          time.Duration // running mean inter-utterance pause

	confidenceWindow      []float64 // bounded, last 10
	completionScoreWindow []float64 // bounded, last 20

	TotalUtterances int

	lastNormalizedText string
	lastProcessedAt     time.Time
}

const (
	confidenceWindowSize      = 10
	completionScoreWindowSize = 20

	sentenceLengthWeight = 0.15
	pauseWeight          = 0.2

	minAvgSentenceLength = 1.0
	maxAvgSentenceLength = 200.0
)

// NewConversationProfile seeds a fresh profile. seedPause is the initial
// running-average pause before any utterances have been observed.
func NewConversationProfile(seedPause time.Duration) *ConversationProfile {
	return &ConversationProfile{
		AvgSentenceLength: 5,
		AvgPause:          seedPause,
	}
}

// observe folds a fired utterance's stats into the adaptive profile (spec
// §4.4 "Adaptive learning on firing"). Property 7 (spec §8) requires the
// running sentence-length average stay within [1,200] and move by at most
// 15% of the firing utterance's own word count: the 0.15 EMA step is
// capped at that size in either direction.
func (c *ConversationProfile) observe(wordCount int, pause time.Duration, confidence, completionScore float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := sentenceLengthWeight * (float64(wordCount) - c.AvgSentenceLength)
	if limit := sentenceLengthWeight * float64(wordCount); step > limit {
		step = limit
	} else if step < -limit {
		step = -limit
	}
	c.AvgSentenceLength += step
	if c.AvgSentenceLength < minAvgSentenceLength {
		c.AvgSentenceLength = minAvgSentenceLength
	}
	if c.AvgSentenceLength > maxAvgSentenceLength {
		c.AvgSentenceLength = maxAvgSentenceLength
	}

	if pause > 0 {
		c.AvgPause = time.Duration(float64(c.AvgPause) + pauseWeight*(float64(pause)-float64(c.AvgPause)))
	}

	c.confidenceWindow = pushBounded(c.confidenceWindow, confidence, confidenceWindowSize)
	c.completionScoreWindow = pushBounded(c.completionScoreWindow, completionScore, completionScoreWindowSize)
	c.TotalUtterances++
}

func pushBounded(window []float64, v float64, max int) []float64 {
	window = append(window, v)
	if len(window) > max {
		window = window[len(window)-max:]
	}
	return window
}

func (c *ConversationProfile) avgSentenceLength() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.AvgSentenceLength
}

func (c *ConversationProfile) avgPause() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.AvgPause
}

func (c *ConversationProfile) totalUtterances() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.TotalUtterances
}

// dedupCheck reports whether normalized equals the last-processed text
// within the dedup window (spec §3 "last-processed normalized text +
// timestamp (for dedup)", spec §8 property 5).
func (c *ConversationProfile) dedupCheck(normalized string, now time.Time, window time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastNormalizedText == "" {
		return false
	}
	return normalized == c.lastNormalizedText && now.Sub(c.lastProcessedAt) < window
}

// lastProcessedText returns the normalized text of the last fired
// utterance, or "" before the first one fires. Used by completionScore to
// detect a candidate that textually extends it (spec §4.4's continuation
// penalty).
func (c *ConversationProfile) lastProcessedText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastNormalizedText
}

func (c *ConversationProfile) markProcessed(normalized string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastNormalizedText = normalized
	c.lastProcessedAt = now
}
