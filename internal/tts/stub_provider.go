package tts

import (
	"context"
	"errors"
	"fmt"
)

// StubProviderConfig controls a StubProvider's injected failure behavior,
// mirroring the Default*Config idiom used by the other upstream stubs.
type StubProviderConfig struct {
	FailRateLimitTimes int
}

func DefaultStubProviderConfig() StubProviderConfig {
	return StubProviderConfig{}
}

// StubProvider is a deterministic Provider test double: it emits one chunk
// per call (no real audio), optionally failing with a RateLimitError the
// first N calls.
type StubProvider struct {
	cfg   StubProviderConfig
	calls int
}

func NewStubProvider(cfg StubProviderConfig) *StubProvider {
	return &StubProvider{cfg: cfg}
}

func (s *StubProvider) Name() string { return "stub-tts" }

func (s *StubProvider) Synthesize(ctx context.Context, voiceID, text, targetLanguage string, settings VoiceSettings) (<-chan Chunk, error) {
	s.calls++
	if s.calls <= s.cfg.FailRateLimitTimes {
		return nil, &RateLimitError{Err: errors.New("429 too many requests")}
	}
	audio := []byte(fmt.Sprintf("audio[%s:%s:%s]", voiceID, targetLanguage, text))
	ch := make(chan Chunk, 1)
	ch <- Chunk{Data: audio, IsFinal: true}
	close(ch)
	return ch, nil
}

func (s *StubProvider) Calls() int { return s.calls }
