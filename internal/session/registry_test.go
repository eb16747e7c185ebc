package session

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeSender struct {
	sent   []any
	closed bool
}

func (f *fakeSender) Send(v any) error       { f.sent = append(f.sent, v); return nil }
func (f *fakeSender) SendBinary(b []byte) error { return nil }
func (f *fakeSender) Close(code int, reason string) error {
	f.closed = true
	return nil
}

// TestPairing covers S1 (pairing) from spec §8.
func TestPairing(t *testing.T) {
	r := NewRegistry(Options{}, nil)

	_, sessA, outcomeA := r.AddUser("doctor", "tr", "v_tr", &fakeSender{})
	if outcomeA != OutcomeWaiting {
		t.Fatalf("expected A to wait, got %v", outcomeA)
	}
	if sessA.Status() != StatusPending {
		t.Fatalf("expected Pending session, got %v", sessA.Status())
	}

	_, sessB, outcomeB := r.AddUser("patient", "en", "v_en", &fakeSender{})
	if outcomeB != OutcomePaired {
		t.Fatalf("expected B to pair, got %v", outcomeB)
	}
	if sessB.ID != sessA.ID {
		t.Fatalf("expected both participants in the same session")
	}
	if sessB.Status() != StatusActive {
		t.Fatalf("expected Active session, got %v", sessB.Status())
	}
	if got := len(sessB.Participants()); got != 2 {
		t.Fatalf("expected 2 participants, got %d", got)
	}
}

// TestSameLanguageRefusal covers S2 from spec §8.
func TestSameLanguageRefusal(t *testing.T) {
	r := NewRegistry(Options{}, nil)

	_, sessA, _ := r.AddUser("doctor", "tr", "v_tr", &fakeSender{})
	_, sessC, outcomeC := r.AddUser("patient", "tr", "v_tr2", &fakeSender{})

	if outcomeC != OutcomeWaiting {
		t.Fatalf("expected C to wait (same language as A), got %v", outcomeC)
	}
	if sessA.Status() != StatusPending {
		t.Fatalf("expected A to remain Pending, got %v", sessA.Status())
	}
	if sessC.ID == sessA.ID {
		t.Fatalf("C should not join A's session")
	}
}

// TestReconnectionPreservesSession exercises the §4.1 reconnection path: a
// matching rejoin inside the window swaps the transport and leaves the
// session/pipeline untouched, with no disconnect side effects ever firing.
func TestReconnectionPreservesSession(t *testing.T) {
	var disconnects []Disconnected
	r := NewRegistry(Options{ReconnectWindow: time.Hour}, func(d Disconnected) {
		disconnects = append(disconnects, d)
	})

	pA, sess, _ := r.AddUser("doctor", "tr", "v_tr", &fakeSender{})
	_, _, _ = r.AddUser("patient", "en", "v_en", &fakeSender{})

	r.RemoveUser(pA.ID)

	newTransport := &fakeSender{}
	reconnected, reconnSess, outcome := r.AddUser("doctor", "tr", "v_tr", newTransport)
	if outcome != OutcomeReconnected {
		t.Fatalf("expected reconnection, got %v", outcome)
	}
	if reconnected.ID != pA.ID {
		t.Fatalf("expected same participant id across reconnect")
	}
	if reconnSess.ID != sess.ID {
		t.Fatalf("expected the original session to be preserved")
	}
	if reconnected.Transport() != newTransport {
		t.Fatalf("expected transport handle to be swapped")
	}
	if len(disconnects) != 0 {
		t.Fatalf("expected no disconnect side effects, got %d", len(disconnects))
	}
}

// TestDisconnectTeardownFiresAfterWindow covers S7's eventual teardown once
// the reconnect window elapses with no matching rejoin.
func TestDisconnectTeardownFiresAfterWindow(t *testing.T) {
	done := make(chan Disconnected, 1)
	r := NewRegistry(Options{ReconnectWindow: 10 * time.Millisecond}, func(d Disconnected) {
		done <- d
	})

	pA, _, _ := r.AddUser("doctor", "tr", "v_tr", &fakeSender{})
	pB, _, _ := r.AddUser("patient", "en", "v_en", &fakeSender{})

	r.RemoveUser(pA.ID)

	select {
	case d := <-done:
		if d.Participant.ID != pA.ID {
			t.Fatalf("expected teardown for A")
		}
		if d.Partner == nil || d.Partner.ID != pB.ID {
			t.Fatalf("expected partner B in teardown event")
		}
		if d.Session.Status() != StatusEnded {
			t.Fatalf("expected session to end, got %v", d.Session.Status())
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for teardown")
	}
}

func TestFindPartner(t *testing.T) {
	r := NewRegistry(Options{}, nil)
	pA, _, _ := r.AddUser("doctor", "tr", "v_tr", &fakeSender{})
	pB, _, _ := r.AddUser("patient", "en", "v_en", &fakeSender{})

	if got := r.FindPartner(pA.ID); got == nil || got.ID != pB.ID {
		t.Fatalf("expected FindPartner(A) == B")
	}
	if got := r.FindPartner(pB.ID); got == nil || got.ID != pA.ID {
		t.Fatalf("expected FindPartner(B) == A")
	}
	if got := r.FindPartner(uuid.New()); got != nil {
		t.Fatalf("expected nil for unknown participant")
	}
}

func TestSweepReapsStalePending(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }

	r := NewRegistry(Options{Now: clock, PendingTimeout: time.Minute, IdleSessionTimeout: time.Minute}, nil)

	lone, _, _ := r.AddUser("doctor", "tr", "v_tr", &fakeSender{})
	_ = lone

	now = now.Add(2 * time.Minute)
	events := r.Sweep(now)
	if len(events) != 1 {
		t.Fatalf("expected exactly one reaped participant, got %d", len(events))
	}
	if _, ok := r.GetParticipant(lone.ID); ok {
		t.Fatalf("expected lone participant to be removed from registry")
	}
}
