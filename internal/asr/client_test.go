package asr

import (
	"context"
	"testing"
	"time"
)

func TestOpenUsesPrimaryStreamingProvider(t *testing.T) {
	primary := NewStubStreamProvider("primary", DefaultStubStreamProviderConfig())
	c := New([]StreamProvider{primary}, nil, RoutingTable{}, DefaultChunkWindows(), []string{"primary"}, nil)

	id, err := c.Open(context.Background(), "en", Callbacks{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if id.String() == "" {
		t.Fatalf("expected a handle id")
	}
}

func TestSubmitFrameEmitsPartialFromStream(t *testing.T) {
	primary := NewStubStreamProvider("primary", DefaultStubStreamProviderConfig())
	c := New([]StreamProvider{primary}, nil, RoutingTable{}, DefaultChunkWindows(), []string{"primary"}, nil)

	var partial Result
	id, _ := c.Open(context.Background(), "en", Callbacks{
		OnPartial: func(r Result) { partial = r },
	})
	if err := c.SubmitFrame(context.Background(), id, []byte{0, 0}); err != nil {
		t.Fatalf("SubmitFrame failed: %v", err)
	}
	if partial.Text == "" {
		t.Fatalf("expected a partial transcript")
	}
}

// TestNonRecoverableStreamErrorFallsBackToChunked covers spec §4.5's
// "REST-chunked fallback... selected automatically when the streaming
// provider closes with a non-recoverable code".
func TestNonRecoverableStreamErrorFallsBackToChunked(t *testing.T) {
	primary := NewStubStreamProvider("primary", StubStreamProviderConfig{FailFrameAfter: 1})
	batch := NewStubBatchProvider("batch")
	c := New([]StreamProvider{primary}, []BatchProvider{batch}, RoutingTable{}, DefaultChunkWindows(), []string{"primary", "batch"}, nil)

	var final Result
	id, _ := c.Open(context.Background(), "en", Callbacks{
		OnFinal: func(r Result) { final = r },
	})

	frame := make([]byte, pcmBytesPerSecond*3) // exceeds the 2s default window
	if err := c.SubmitFrame(context.Background(), id, frame); err != nil {
		t.Fatalf("SubmitFrame failed: %v", err)
	}

	if final.Text == "" {
		t.Fatalf("expected the chunked fallback to flush and emit a final transcript")
	}
	if !final.IsFinal {
		t.Fatalf("expected the fallback result to be marked final")
	}
}

// TestSubmitFrameRecreatesStreamOnTimeout covers S8 from spec §8: a
// timeout-classified provider error must not surface as a transcription
// error to the client. The stream is silently recreated on the same handle
// id and the triggering frame is resubmitted.
func TestSubmitFrameRecreatesStreamOnTimeout(t *testing.T) {
	primary := NewStubStreamProvider("primary", StubStreamProviderConfig{FailFrameWithTimeoutAfter: 1})
	c := New([]StreamProvider{primary}, nil, RoutingTable{}, DefaultChunkWindows(), []string{"primary"}, nil)

	var (
		gotError   error
		gotPartial Result
	)
	id, err := c.Open(context.Background(), "en", Callbacks{
		OnError:   func(e error) { gotError = e },
		OnPartial: func(r Result) { gotPartial = r },
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := c.SubmitFrame(context.Background(), id, []byte{0, 0}); err != nil {
		t.Fatalf("SubmitFrame returned an error to the caller: %v", err)
	}

	if gotError != nil {
		t.Fatalf("expected no transcription-error delivered to the client, got %v", gotError)
	}
	if gotPartial.Text == "" {
		t.Fatalf("expected the resubmitted frame to produce a partial transcript on the recreated stream")
	}

	h := c.get(id)
	if h == nil {
		t.Fatalf("expected the handle to survive the recreate")
	}
	if h.session == nil {
		t.Fatalf("expected a live session on the recreated handle")
	}
}

// TestLanguageRoutedDirectlyToBatchProvider covers the "batch-mode provider
// for languages known to behave badly" routing path.
func TestLanguageRoutedDirectlyToBatchProvider(t *testing.T) {
	batch := NewStubBatchProvider("batch")
	routing := RoutingTable{"ar": {"batch"}}
	c := New(nil, []BatchProvider{batch}, routing, DefaultChunkWindows(), []string{"batch"}, nil)

	var final Result
	id, err := c.Open(context.Background(), "ar", Callbacks{OnFinal: func(r Result) { final = r }})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	frame := make([]byte, pcmBytesPerSecond*2)
	if err := c.SubmitFrame(context.Background(), id, frame); err != nil {
		t.Fatalf("SubmitFrame failed: %v", err)
	}
	if final.Text == "" {
		t.Fatalf("expected a flushed transcript from the batch provider")
	}
}

// TestSweepClosesIdleHandles covers the 30s inactivity sweep.
func TestSweepClosesIdleHandles(t *testing.T) {
	primary := NewStubStreamProvider("primary", DefaultStubStreamProviderConfig())
	c := New([]StreamProvider{primary}, nil, RoutingTable{}, DefaultChunkWindows(), []string{"primary"}, nil)
	now := time.Now()
	c.clock = func() time.Time { return now }

	id, _ := c.Open(context.Background(), "en", Callbacks{})

	later := now.Add(45 * time.Second)
	c.clock = func() time.Time { return later }
	closed := c.Sweep(later)

	if len(closed) != 1 || closed[0] != id {
		t.Fatalf("expected the idle handle to be swept, got %v", closed)
	}
	if c.get(id) != nil {
		t.Fatalf("expected the handle to be removed from the registry")
	}
}
