package tts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxRateLimitAttempts = 3
	baseBackoff          = 1 * time.Second
	streamReapAfter      = 5 * time.Minute
)

type streamState struct {
	lastActivity time.Time
}

// Client wraps a Provider with the synthesis cache, voice-settings
// derivation, and rate-limit backoff spec §4.7 describes.
type Client struct {
	provider Provider
	cache    *Cache
	logger   *zap.Logger
	clock    func() time.Time

	mu      sync.Mutex
	streams map[uuid.UUID]*streamState
}

func New(provider Provider, cache *Cache, logger *zap.Logger) *Client {
	if cache == nil {
		cache = NewCache()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		provider: provider,
		cache:    cache,
		logger:   logger,
		clock:    time.Now,
		streams:  make(map[uuid.UUID]*streamState),
	}
}

// Synthesize implements spec §4.7's Synthesize(voiceId, text,
// targetLanguage, emotionalProfile?). emotional may be nil, in which case a
// language-default bundle is used. isFinal=false calls are dropped (with
// ErrPartialTooShort) below the minimum-length gate rather than sent to the
// provider.
func (c *Client) Synthesize(ctx context.Context, voiceID, text, targetLanguage string, emotional *VoiceSettings, agglutinative, isFinal bool) (<-chan Chunk, error) {
	trimmed := text
	if trimmed == "" {
		return nil, errEmptyText
	}
	if !isFinal && !meetsPartialMinimum(trimmed) {
		return nil, ErrPartialTooShort
	}

	settings := deriveSettings(emotional, agglutinative)
	key := cacheKey{
		VoiceID:        voiceID,
		NormalizedText: normalizeText(trimmed),
		TargetLanguage: targetLanguage,
		EmotionBucket:  emotionBucket(settings),
	}

	now := c.clock()
	if audio, ok := c.cache.lookup(key, now); ok {
		ch := make(chan Chunk, 1)
		ch <- Chunk{Data: audio, IsFinal: true}
		close(ch)
		return ch, nil
	}

	streamID := uuid.New()
	c.trackStream(streamID, now)

	rawChunks, err := c.synthesizeWithBackoff(ctx, voiceID, trimmed, targetLanguage, settings)
	if err != nil {
		c.untrackStream(streamID)
		return nil, err
	}

	out := make(chan Chunk, 8)
	go func() {
		defer close(out)
		defer c.untrackStream(streamID)
		var full []byte
		for chunk := range rawChunks {
			c.touchStream(streamID)
			full = append(full, chunk.Data...)
			out <- chunk
		}
		c.cache.store(key, full, c.clock())
	}()
	return out, nil
}

func (c *Client) synthesizeWithBackoff(ctx context.Context, voiceID, text, targetLanguage string, settings VoiceSettings) (<-chan Chunk, error) {
	backoff := baseBackoff
	var lastErr error
	for attempt := 1; attempt <= maxRateLimitAttempts; attempt++ {
		chunks, err := c.provider.Synthesize(ctx, voiceID, text, targetLanguage, settings)
		if err == nil {
			return chunks, nil
		}
		var rle *RateLimitError
		if !errors.As(err, &rle) {
			return nil, err
		}
		lastErr = err
		if attempt == maxRateLimitAttempts {
			break
		}
		c.logger.Info("tts provider rate limited, backing off", zap.Int("attempt", attempt), zap.Duration("backoff", backoff))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, lastErr
}

func (c *Client) trackStream(id uuid.UUID, now time.Time) {
	c.mu.Lock()
	c.streams[id] = &streamState{lastActivity: now}
	c.mu.Unlock()
}

func (c *Client) touchStream(id uuid.UUID) {
	c.mu.Lock()
	if s, ok := c.streams[id]; ok {
		s.lastActivity = c.clock()
	}
	c.mu.Unlock()
}

func (c *Client) untrackStream(id uuid.UUID) {
	c.mu.Lock()
	delete(c.streams, id)
	c.mu.Unlock()
}

// Sweep drops streams idle more than 5 minutes (spec §4.7) and cache
// entries older than the retention window, on whatever cadence the caller's
// reaper runs at.
func (c *Client) Sweep(now time.Time) int {
	c.mu.Lock()
	var stale []uuid.UUID
	for id, s := range c.streams {
		if now.Sub(s.lastActivity) > streamReapAfter {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		delete(c.streams, id)
	}
	c.mu.Unlock()

	c.cache.store(cacheKey{}, nil, now) // trigger the cache's own eviction sweep
	return len(stale)
}
