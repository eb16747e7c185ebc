// Package asr implements the ASR client's provider-multiplexing contract
// (spec §4.5): a uniform Open/SubmitFrame/Close surface backed by a
// priority-ordered list of streaming providers, a batch-mode fallback for
// languages that transcribe poorly on the streaming path, and a
// REST-chunked fallback for when a streaming provider degrades mid-stream.
// The channel-based shape of the old teacher Recognizer interface
// (Recognize(ctx, sessionID, chunks) -> <-chan Transcript) is preserved in
// spirit via the Callbacks' OnPartial/OnFinal channels of thought, but the
// public contract is callback-based to match a per-participant handle
// rather than a per-session channel.
package asr

import "time"

// Result is the provider-agnostic transcript shape the orchestrator
// receives; it never sees provider-specific fields (spec §4.5).
type Result struct {
	Text       string
	Confidence float64
	Language   string
	IsFinal    bool
	Timestamp  time.Time
}

// ErrorClass lets the client decide whether a provider error is a
// transparent-retry timeout, a hard failure requiring fallback, or
// something to just surface.
type ErrorClass int

const (
	ErrClassUnknown ErrorClass = iota
	// ErrClassTimeout recreates the stream transparently, preserving the handle.
	ErrClassTimeout
	// ErrClassNonRecoverable (e.g. provider closed with 1006/1011) triggers
	// REST-chunked fallback.
	ErrClassNonRecoverable
)

// ProviderError wraps a provider-level error with its classification.
type ProviderError struct {
	Err   error
	Class ErrorClass
}

func (e *ProviderError) Error() string { return e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }

// Callbacks are invoked from the provider's own goroutine(s); the client
// guarantees at most one of OnPartial/OnFinal/OnError is running at a time
// for a given handle.
type Callbacks struct {
	OnPartial func(Result)
	OnFinal   func(Result)
	OnError   func(error)
}
