package gate

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestGate(t *testing.T, onReady func(Utterance)) *Gate {
	t.Helper()
	lang := DefaultProfiles()["en"]
	profile := NewConversationProfile(750 * time.Millisecond)
	th := DefaultThresholds()
	th.ShortMessageTimeout = 20 * time.Millisecond
	th.EmergencyTimeout = 60 * time.Millisecond
	return New(uuid.New(), "en", "patient", lang, profile, th, onReady)
}

// TestImmediateFireOnCompleteQuestion covers the complete-question
// immediate-fire rule: a short, high-confidence question fires without
// waiting on a timer.
func TestImmediateFireOnCompleteQuestion(t *testing.T) {
	fired := make(chan Utterance, 1)
	g := newTestGate(t, func(u Utterance) { fired <- u })

	g.Consider("Where does it hurt?", 0.95, true)

	select {
	case u := <-fired:
		if u.Text != "Where does it hurt?" {
			t.Fatalf("unexpected text: %q", u.Text)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected immediate fire, got none")
	}
}

// TestUrgencyKeywordFiresImmediately covers the urgency-keyword immediate
// fire path from spec §4.4, independent of score/confidence.
func TestUrgencyKeywordFiresImmediately(t *testing.T) {
	fired := make(chan Utterance, 1)
	g := newTestGate(t, func(u Utterance) { fired <- u })

	g.Consider("emergency I can't breathe", 0.3, false)

	select {
	case <-fired:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected urgency keyword to force an immediate fire")
	}
}

// TestShortMessageUsesShortTimer covers S5: a one or two word fragment
// doesn't fire immediately but does fire once the short-message timer
// elapses, rather than being held indefinitely.
func TestShortMessageUsesShortTimer(t *testing.T) {
	fired := make(chan Utterance, 1)
	g := newTestGate(t, func(u Utterance) { fired <- u })

	g.Consider("yes", 0.5, false)

	select {
	case <-fired:
		t.Fatal("did not expect an immediate fire for a bare word")
	case <-time.After(5 * time.Millisecond):
	}

	select {
	case u := <-fired:
		if u.Text != "yes" {
			t.Fatalf("unexpected text: %q", u.Text)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected the short-message timer to fire")
	}
}

// TestNewerLongerCandidateSupersedesAndResetsTimer: a longer revision of a
// partial transcript arriving before the first candidate's timer fires
// replaces the pending candidate and cancels that timer, so exactly one
// utterance fires, carrying the longer text. (The revision here contains
// the urgency keyword "severe", so it fires immediately.)
func TestNewerLongerCandidateSupersedesAndResetsTimer(t *testing.T) {
	var got []Utterance
	done := make(chan struct{}, 1)
	g := newTestGate(t, func(u Utterance) {
		got = append(got, u)
		done <- struct{}{}
	})

	g.Consider("I have a", 0.5, false)
	time.Sleep(10 * time.Millisecond)
	g.Consider("I have a severe headache since this morning", 0.5, false)

	select {
	case <-done:
	case <-time.After(300 * time.Millisecond):
		t.Fatal("expected exactly one fire for the superseding candidate")
	}

	if len(got) != 1 {
		t.Fatalf("expected exactly one utterance, got %d", len(got))
	}
	if got[0].Text != "I have a severe headache since this morning" {
		t.Fatalf("expected the longer candidate to win, got %q", got[0].Text)
	}
}

// TestDedupDropsRepeatWithinWindow covers spec §8 property 5: an identical
// (normalized) transcript arriving again inside the dedup window never
// produces a second utterance.
func TestDedupDropsRepeatWithinWindow(t *testing.T) {
	var got []Utterance
	g := newTestGate(t, func(u Utterance) { got = append(got, u) })

	g.Consider("Where does it hurt?", 0.95, true)
	time.Sleep(5 * time.Millisecond)
	g.Consider("where does it hurt?", 0.95, true)
	time.Sleep(5 * time.Millisecond)

	if len(got) != 1 {
		t.Fatalf("expected exactly one utterance despite the repeat, got %d", len(got))
	}
}

// TestCompletionScoreWithinBounds: the completion score is always clamped
// to [0,1] regardless of how many bonuses stack.
func TestCompletionScoreWithinBounds(t *testing.T) {
	lang := DefaultProfiles()["en"]
	profile := NewConversationProfile(750 * time.Millisecond)

	cases := []string{
		"",
		"What is the emergency dosage for severe chest pain, by the way?",
		"a",
		"The patient is taking 400 mg and also feels better.",
	}
	for _, c := range cases {
		s := completionScore(c, 0.95, lang, profile)
		if s < 0 || s > 1 {
			t.Fatalf("score for %q out of bounds: %f", c, s)
		}
	}
}

// TestCompletionScorePenalizesTextualContinuation covers the §4.4 scoring
// rule: a candidate that textually extends the previously-fired utterance
// scores lower than the same text would with no prior utterance, since it
// probably isn't a complete thought on its own.
func TestCompletionScorePenalizesTextualContinuation(t *testing.T) {
	lang := DefaultProfiles()["en"]
	text := "the patient is taking medicine and feeling tired"

	freshProfile := NewConversationProfile(750 * time.Millisecond)
	withoutPrior := completionScore(text, 0.9, lang, freshProfile)

	continuedProfile := NewConversationProfile(750 * time.Millisecond)
	continuedProfile.markProcessed(normalizeText("the patient is taking medicine"), time.Now())
	withPrior := completionScore(text, 0.9, lang, continuedProfile)

	if withPrior >= withoutPrior {
		t.Fatalf("expected the continuation penalty to lower the score: without=%f with=%f", withoutPrior, withPrior)
	}
	if diff := withoutPrior - withPrior; diff < 0.09 || diff > 0.11 {
		t.Fatalf("expected roughly a 0.1 penalty, got diff=%f", diff)
	}
}

// TestAdaptiveProfileMovesTowardObservedLength covers spec §8 property 7:
// the running sentence-length average shifts toward, but does not jump
// directly to, a newly observed word count.
func TestAdaptiveProfileMovesTowardObservedLength(t *testing.T) {
	p := NewConversationProfile(750 * time.Millisecond)
	before := p.avgSentenceLength()

	p.observe(20, 500*time.Millisecond, 0.9, 0.9)
	after := p.avgSentenceLength()

	if after <= before {
		t.Fatalf("expected average to move up toward 20, got before=%f after=%f", before, after)
	}
	if after >= 20 {
		t.Fatalf("expected EMA to move gradually, not jump to the observed value: %f", after)
	}
}

// TestFlushEmitsPendingCandidate ensures nothing is silently dropped when a
// session or participant tears down mid-accumulation.
func TestFlushEmitsPendingCandidate(t *testing.T) {
	fired := make(chan Utterance, 1)
	g := newTestGate(t, func(u Utterance) { fired <- u })

	g.Consider("I also wanted to mention", 0.5, false)
	g.Flush()

	select {
	case u := <-fired:
		if u.Text != "I also wanted to mention" {
			t.Fatalf("unexpected flushed text: %q", u.Text)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("expected Flush to emit the pending candidate")
	}
}
