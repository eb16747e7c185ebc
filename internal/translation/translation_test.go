package translation

import (
	"context"
	"errors"
	"testing"
)

func TestTranslatePreservesDosageSpan(t *testing.T) {
	stub := NewStubProvider(StubProviderConfig{})
	c := New(stub, 0, nil)

	result, err := c.Translate(context.Background(), "Take 400mg twice a day", "en", "tr")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if !contains(result.TranslatedText, "400mg") {
		t.Fatalf("expected the dosage span to survive verbatim, got %q", result.TranslatedText)
	}
}

func TestTranslateRejectsEmptyText(t *testing.T) {
	stub := NewStubProvider(StubProviderConfig{})
	c := New(stub, 0, nil)

	if _, err := c.Translate(context.Background(), "", "en", "tr"); err == nil {
		t.Fatalf("expected an error for empty text")
	}
}

// TestNetworkErrorRetriedOnce covers spec §4.6: network/5xx is retried once.
func TestNetworkErrorRetriedOnce(t *testing.T) {
	stub := NewStubProvider(StubProviderConfig{FailNetworkTimes: 1})
	c := New(stub, 0, nil)

	result, err := c.Translate(context.Background(), "hello", "en", "tr")
	if err != nil {
		t.Fatalf("expected the retry to succeed, got: %v", err)
	}
	if stub.Calls() != 2 {
		t.Fatalf("expected exactly 2 provider calls (1 failure + 1 retry), got %d", stub.Calls())
	}
	if result.TranslatedText == "" {
		t.Fatalf("expected a non-empty translated text after retry")
	}
}

// TestQuotaExhaustedNotRetried covers spec §4.6: quota-exhausted is fatal,
// surfaced without a retry.
func TestQuotaExhaustedNotRetried(t *testing.T) {
	stub := NewStubProvider(StubProviderConfig{FailKind: ErrKindQuotaExhausted})
	c := New(stub, 0, nil)

	_, err := c.Translate(context.Background(), "hello", "en", "tr")
	if err == nil {
		t.Fatalf("expected quota exhaustion to surface as an error")
	}
	var perr *ProviderError
	if !errors.As(err, &perr) || perr.Kind != ErrKindQuotaExhausted {
		t.Fatalf("expected a quota-exhausted provider error, got %v", err)
	}
	if stub.Calls() != 1 {
		t.Fatalf("expected exactly 1 call, no retry, got %d", stub.Calls())
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
