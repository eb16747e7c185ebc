package asr

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const inactivityTimeout = 30 * time.Second

type mode int

const (
	modeStream mode = iota
	modeChunked
)

type handleState struct {
	mu sync.Mutex

	id            uuid.UUID
	language      string
	cb            Callbacks
	mode          mode
	lastActivity  time.Time
	stopKeepAlive context.CancelFunc

	provider StreamProvider
	session  StreamSession

	chunkBuffer     []byte
	chunkProvider   BatchProvider
	chunkWindow     time.Duration
	chunkStartedAt  time.Time
}

// Client implements the ASR client's Open/SubmitFrame/Close contract (spec
// §4.5), trying providers in routing-table order and falling back
// transparently from streaming to REST-chunked recognition.
type Client struct {
	mu       sync.Mutex
	handles  map[uuid.UUID]*handleState
	logger   *zap.Logger
	clock    func() time.Time

	streamProviders map[string]StreamProvider
	batchProviders  map[string]BatchProvider
	routing         RoutingTable
	defaultOrder    []string
	chunkWindows    ChunkWindows
}

// New builds a Client. defaultOrder is the provider-name priority used for
// any language the routing table doesn't mention explicitly.
func New(streamProviders []StreamProvider, batchProviders []BatchProvider, routing RoutingTable, chunkWindows ChunkWindows, defaultOrder []string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		handles:         make(map[uuid.UUID]*handleState),
		logger:          logger,
		clock:           time.Now,
		streamProviders: make(map[string]StreamProvider, len(streamProviders)),
		batchProviders:  make(map[string]BatchProvider, len(batchProviders)),
		routing:         routing,
		defaultOrder:    defaultOrder,
		chunkWindows:    chunkWindows,
	}
	for _, p := range streamProviders {
		c.streamProviders[p.Name()] = p
	}
	for _, p := range batchProviders {
		c.batchProviders[p.Name()] = p
	}
	return c
}

// Open tries providers in routing-table order for language, returning a
// handle id once one succeeds (either a live stream, or a registered
// batch/chunked accumulator).
func (c *Client) Open(ctx context.Context, language string, cb Callbacks) (uuid.UUID, error) {
	order := c.routing.orderFor(language, c.defaultOrder)
	if len(order) == 0 {
		return uuid.Nil, fmt.Errorf("asr: no provider configured for language %q", language)
	}

	now := c.clock()
	var lastErr error
	for _, name := range order {
		if sp, ok := c.streamProviders[name]; ok {
			sess, err := sp.OpenStream(ctx, language, cb)
			if err != nil {
				lastErr = err
				continue
			}
			h := &handleState{
				id:           uuid.New(),
				language:     language,
				cb:           cb,
				mode:         modeStream,
				lastActivity: now,
				provider:     sp,
				session:      sess,
			}
			c.register(h)
			c.maybeStartKeepAlive(ctx, h, sess)
			return h.id, nil
		}
		if bp, ok := c.batchProviders[name]; ok {
			h := &handleState{
				id:             uuid.New(),
				language:       language,
				cb:             cb,
				mode:           modeChunked,
				lastActivity:   now,
				chunkProvider:  bp,
				chunkWindow:    c.chunkWindows.windowFor(language),
				chunkStartedAt: now,
			}
			c.register(h)
			return h.id, nil
		}
	}
	if lastErr != nil {
		return uuid.Nil, lastErr
	}
	return uuid.Nil, fmt.Errorf("asr: no usable provider in routing order for language %q", language)
}

func (c *Client) register(h *handleState) {
	c.mu.Lock()
	c.handles[h.id] = h
	c.mu.Unlock()
}

func (c *Client) maybeStartKeepAlive(ctx context.Context, h *handleState, sess StreamSession) {
	ka, ok := sess.(KeepAliveSession)
	if !ok {
		return
	}
	kaCtx, cancel := context.WithCancel(ctx)
	h.stopKeepAlive = cancel
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
				if err := ka.KeepAlive(); err != nil {
					return
				}
			}
		}
	}()
}

// SubmitFrame forwards an audio frame to the given handle, falling back
// from streaming to REST-chunked recognition on a non-recoverable provider
// error (spec §4.5).
func (c *Client) SubmitFrame(ctx context.Context, handleID uuid.UUID, frame []byte) error {
	h := c.get(handleID)
	if h == nil {
		return fmt.Errorf("asr: unknown handle %s", handleID)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastActivity = c.clock()

	if h.mode == modeStream {
		err := h.session.SubmitFrame(frame)
		if err == nil {
			return nil
		}
		var perr *ProviderError
		if pe, ok := err.(*ProviderError); ok {
			perr = pe
		}
		if perr != nil && perr.Class == ErrClassTimeout {
			if recreateErr := c.recreateStreamLocked(ctx, h); recreateErr != nil {
				c.logger.Warn("asr stream recreate failed after timeout", zap.String("handle", handleID.String()), zap.Error(recreateErr))
				if h.cb.OnError != nil {
					h.cb.OnError(recreateErr)
				}
				return nil
			}
			// Stream recreated transparently on the same handle id (spec §4.5);
			// no transcription-error reaches the client. Resubmit the frame that
			// tripped the timeout so it isn't silently lost.
			if resubmitErr := h.session.SubmitFrame(frame); resubmitErr != nil {
				c.logger.Warn("asr resubmit after recreate failed", zap.String("handle", handleID.String()), zap.Error(resubmitErr))
			}
			return nil
		}
		c.logger.Info("asr stream failed, falling back to REST-chunked recognition", zap.String("handle", handleID.String()), zap.Error(err))
		c.fallbackToChunkedLocked(h)
	}

	return c.appendChunkLocked(ctx, h, frame)
}

// recreateStreamLocked closes the failed session and opens a fresh one from
// the same provider, keeping the handle id the caller already has (spec
// §4.5 "transparently recreates the stream, preserving the handle"). Caller
// holds h.mu.
func (c *Client) recreateStreamLocked(ctx context.Context, h *handleState) error {
	if h.stopKeepAlive != nil {
		h.stopKeepAlive()
		h.stopKeepAlive = nil
	}
	if h.session != nil {
		_ = h.session.Close()
		h.session = nil
	}
	if h.provider == nil {
		return fmt.Errorf("asr: no provider available to recreate stream")
	}
	sess, err := h.provider.OpenStream(ctx, h.language, h.cb)
	if err != nil {
		return err
	}
	h.session = sess
	c.maybeStartKeepAlive(ctx, h, sess)
	return nil
}

func (c *Client) fallbackToChunkedLocked(h *handleState) {
	if h.stopKeepAlive != nil {
		h.stopKeepAlive()
	}
	if h.session != nil {
		_ = h.session.Close()
		h.session = nil
	}
	h.mode = modeChunked
	h.chunkStartedAt = c.clock()
	h.chunkBuffer = nil
	if h.chunkProvider == nil {
		h.chunkProvider = c.primaryBatchFallback(h.language)
	}
	if h.chunkWindow == 0 {
		h.chunkWindow = c.chunkWindows.windowFor(h.language)
	}
}

// primaryBatchFallback picks any configured batch provider as the target
// of "REST-chunked fallback against the primary" when no language-specific
// batch provider is registered.
func (c *Client) primaryBatchFallback(language string) BatchProvider {
	for _, name := range c.routing.orderFor(language, c.defaultOrder) {
		if bp, ok := c.batchProviders[name]; ok {
			return bp
		}
	}
	for _, bp := range c.batchProviders {
		return bp
	}
	return nil
}

const pcmBytesPerSecond = 16000 * 2 // 16kHz, 16-bit mono

func (c *Client) appendChunkLocked(ctx context.Context, h *handleState, frame []byte) error {
	h.chunkBuffer = append(h.chunkBuffer, frame...)
	threshold := int(h.chunkWindow.Seconds() * pcmBytesPerSecond)
	if threshold <= 0 || len(h.chunkBuffer) < threshold {
		return nil
	}
	return c.flushChunkLocked(ctx, h)
}

func (c *Client) flushChunkLocked(ctx context.Context, h *handleState) error {
	if h.chunkProvider == nil || len(h.chunkBuffer) == 0 {
		return nil
	}
	buf := h.chunkBuffer
	h.chunkBuffer = nil
	h.chunkStartedAt = c.clock()

	result, err := h.chunkProvider.Recognize(ctx, h.language, buf)
	if err != nil {
		if h.cb.OnError != nil {
			h.cb.OnError(err)
		}
		return err
	}
	result.IsFinal = true
	if result.Timestamp.IsZero() {
		result.Timestamp = c.clock()
	}
	if h.cb.OnFinal != nil {
		h.cb.OnFinal(result)
	}
	return nil
}

// Close releases a handle's underlying provider resources.
func (c *Client) Close(handleID uuid.UUID) error {
	c.mu.Lock()
	h, ok := c.handles[handleID]
	if ok {
		delete(c.handles, handleID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopKeepAlive != nil {
		h.stopKeepAlive()
	}
	if h.session != nil {
		return h.session.Close()
	}
	return nil
}

func (c *Client) get(id uuid.UUID) *handleState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handles[id]
}

// Sweep closes and removes handles idle longer than the inactivity timeout
// (spec §4.5: "handles whose last-activity is older than 30s are closed").
func (c *Client) Sweep(now time.Time) []uuid.UUID {
	c.mu.Lock()
	var stale []uuid.UUID
	for id, h := range c.handles {
		h.mu.Lock()
		idle := now.Sub(h.lastActivity)
		h.mu.Unlock()
		if idle > inactivityTimeout {
			stale = append(stale, id)
		}
	}
	c.mu.Unlock()

	for _, id := range stale {
		_ = c.Close(id)
	}
	return stale
}
