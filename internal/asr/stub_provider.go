package asr

import (
	"context"
	"sync"
	"time"
)

// StubStreamProviderConfig configures StubStreamProvider's canned behavior,
// in the same spirit as the teacher's StubRecognizerConfig.
type StubStreamProviderConfig struct {
	// ProcessingDelay simulates provider latency per submitted frame.
	ProcessingDelay time.Duration
	// FailOpenAfter, if > 0, makes the Nth and every later OpenStream call
	// fail.
	FailOpenAfter int
	// FailFrameAfter, if > 0, makes the Nth and every later SubmitFrame call
	// return a non-recoverable ProviderError, forcing the client to fall back.
	FailFrameAfter int
	// FailFrameWithTimeoutAfter, if > 0, makes the Nth SubmitFrame call
	// return a timeout-classified ProviderError, exercising the client's
	// transparent stream-recreate path instead of the fallback path.
	FailFrameWithTimeoutAfter int
}

func DefaultStubStreamProviderConfig() StubStreamProviderConfig {
	return StubStreamProviderConfig{ProcessingDelay: 0}
}

// StubStreamProvider is an in-process streaming provider test double: every
// frame submitted becomes a partial transcript, with a synthetic final
// emitted on Close.
type StubStreamProvider struct {
	name   string
	config StubStreamProviderConfig

	mu        sync.Mutex
	opens     int
	submits   int
}

func NewStubStreamProvider(name string, config StubStreamProviderConfig) *StubStreamProvider {
	return &StubStreamProvider{name: name, config: config}
}

func (s *StubStreamProvider) Name() string { return s.name }

func (s *StubStreamProvider) OpenStream(ctx context.Context, language string, cb Callbacks) (StreamSession, error) {
	s.mu.Lock()
	s.opens++
	fail := s.config.FailOpenAfter > 0 && s.opens >= s.config.FailOpenAfter
	s.mu.Unlock()
	if fail {
		return nil, &ProviderError{Err: errStub("stub open failure"), Class: ErrClassNonRecoverable}
	}
	return &stubSession{provider: s, language: language, cb: cb}, nil
}

type stubSession struct {
	provider *StubStreamProvider
	language string
	cb       Callbacks
	mu       sync.Mutex
	text     string
}

func (s *stubSession) SubmitFrame(frame []byte) error {
	s.provider.mu.Lock()
	s.provider.submits++
	timeoutFail := s.provider.config.FailFrameWithTimeoutAfter > 0 && s.provider.submits == s.provider.config.FailFrameWithTimeoutAfter
	fail := s.provider.config.FailFrameAfter > 0 && s.provider.submits >= s.provider.config.FailFrameAfter
	s.provider.mu.Unlock()
	if timeoutFail {
		return &ProviderError{Err: errStub("stub frame timeout"), Class: ErrClassTimeout}
	}
	if fail {
		return &ProviderError{Err: errStub("stub frame failure"), Class: ErrClassNonRecoverable}
	}

	if s.provider.config.ProcessingDelay > 0 {
		time.Sleep(s.provider.config.ProcessingDelay)
	}

	s.mu.Lock()
	s.text += "chunk "
	partial := s.text
	s.mu.Unlock()

	if s.cb.OnPartial != nil {
		s.cb.OnPartial(Result{Text: partial, Confidence: 0.6, Language: s.language, IsFinal: false, Timestamp: time.Now()})
	}
	return nil
}

func (s *stubSession) Close() error {
	s.mu.Lock()
	final := s.text
	s.mu.Unlock()
	if final != "" && s.cb.OnFinal != nil {
		s.cb.OnFinal(Result{Text: final, Confidence: 0.9, Language: s.language, IsFinal: true, Timestamp: time.Now()})
	}
	return nil
}

type errStub string

func (e errStub) Error() string { return string(e) }

// StubBatchProvider is the REST-chunked/batch-mode test double: it just
// echoes the number of bytes it received as the transcript, enough to
// assert that chunking and flushing happened without needing real audio.
type StubBatchProvider struct {
	name string
}

func NewStubBatchProvider(name string) *StubBatchProvider {
	return &StubBatchProvider{name: name}
}

func (s *StubBatchProvider) Name() string { return s.name }

func (s *StubBatchProvider) Recognize(ctx context.Context, language string, pcm []byte) (Result, error) {
	return Result{
		Text:       stubTranscriptFor(len(pcm)),
		Confidence: 0.85,
		Language:   language,
		IsFinal:    true,
		Timestamp:  time.Now(),
	}, nil
}

func stubTranscriptFor(byteCount int) string {
	if byteCount == 0 {
		return ""
	}
	return "recognized batch segment"
}
