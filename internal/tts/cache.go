package tts

import (
	"sync"
	"time"
)

const (
	exactHitTTL      = 5 * time.Second
	nearHitTTL       = 3 * time.Second
	maxRetention     = 10 * time.Second
)

// cacheKey matches spec §3's synthesis cache entry key: (voice-id,
// normalized-text, target-language, emotion-bucket).
type cacheKey struct {
	VoiceID        string
	NormalizedText string
	TargetLanguage string
	EmotionBucket  string
}

type cacheEntry struct {
	audio     []byte
	createdAt time.Time
}

// Cache is the synthesis-dedup cache shared across sessions (spec §3, §5:
// "shared across sessions; protected; eviction runs on insert").
type Cache struct {
	mu      sync.Mutex
	entries map[cacheKey]cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]cacheEntry)}
}

// lookup returns a cache hit for key: an exact match within exactHitTTL, or
// a near-hit (same voice/text/language, any emotion bucket) within
// nearHitTTL — spec's "prevents near-duplicate rapid-fire synthesis".
func (c *Cache) lookup(key cacheKey, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && now.Sub(e.createdAt) < exactHitTTL {
		return e.audio, true
	}
	for k, e := range c.entries {
		if k.VoiceID == key.VoiceID && k.NormalizedText == key.NormalizedText && k.TargetLanguage == key.TargetLanguage {
			if now.Sub(e.createdAt) < nearHitTTL {
				return e.audio, true
			}
		}
	}
	return nil, false
}

// store inserts audio under key and evicts anything older than maxRetention.
func (c *Cache) store(key cacheKey, audio []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{audio: audio, createdAt: now}
	for k, e := range c.entries {
		if now.Sub(e.createdAt) > maxRetention {
			delete(c.entries, k)
		}
	}
}

func (c *Cache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
