package asr

import "context"

// StreamProvider opens a persistent bidirectional recognition stream.
// Real implementations wrap a provider's WebSocket/gRPC streaming API;
// StubStreamProvider in this package is the in-process test double.
type StreamProvider interface {
	Name() string
	OpenStream(ctx context.Context, language string, cb Callbacks) (StreamSession, error)
}

// StreamSession is one open streaming handle to a provider.
type StreamSession interface {
	SubmitFrame(frame []byte) error
	Close() error
}

// KeepAliveSession is implemented by providers that need an
// application-level keep-alive sent periodically (spec §4.5: "every 15s if
// the provider supports it").
type KeepAliveSession interface {
	StreamSession
	KeepAlive() error
}

// BatchProvider recognizes one complete buffer of audio synchronously; used
// both for languages routed straight to batch mode and for the
// REST-chunked fallback once a streaming provider degrades.
type BatchProvider interface {
	Name() string
	Recognize(ctx context.Context, language string, pcm []byte) (Result, error)
}
