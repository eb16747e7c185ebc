package translation

import (
	"context"
	"fmt"
)

// StubProviderConfig configures StubProvider's canned behavior, matching
// the teacher's Default*Config convention.
type StubProviderConfig struct {
	// FailNetworkTimes makes the first N calls fail with ErrKindNetwork,
	// exercising the client's one-shot retry.
	FailNetworkTimes int
	// FailKind, if set, makes every call fail with this classification.
	FailKind ErrorKind
}

// StubProvider is a deterministic test double: it returns "[<targetLang>] <text>"
// and tracks how many times it has been called.
type StubProvider struct {
	config StubProviderConfig
	calls  int
}

func NewStubProvider(config StubProviderConfig) *StubProvider {
	return &StubProvider{config: config}
}

func (s *StubProvider) Name() string { return "stub" }

func (s *StubProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (Result, error) {
	s.calls++
	if s.config.FailKind != ErrKindUnknown {
		return Result{}, &ProviderError{Kind: s.config.FailKind, Err: fmt.Errorf("stub failure")}
	}
	if s.calls <= s.config.FailNetworkTimes {
		return Result{}, &ProviderError{Kind: ErrKindNetwork, Err: fmt.Errorf("stub network error")}
	}
	return Result{
		TranslatedText:   fmt.Sprintf("[%s] %s", targetLang, text),
		DetectedLanguage: sourceLang,
		Confidence:       0.9,
	}, nil
}

func (s *StubProvider) Calls() int { return s.calls }
