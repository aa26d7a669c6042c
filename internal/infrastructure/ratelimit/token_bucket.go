package ratelimit

import (
	"math"
	"sync"
	"time"
)

// TokenBucket is the in-process bucket used while Redis is unreachable.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	rate       float64 // tokens per second
	lastRefill time.Time
	now        func() time.Time
}

func newTokenBucket(capacity, rate float64, now func() time.Time) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		rate:       rate,
		lastRefill: now(),
		now:        now,
	}
}

// Take consumes one token. When the bucket is empty it returns false and the
// wait until a token is available.
func (tb *TokenBucket) Take() (bool, float64, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.tokens = math.Min(tb.capacity, tb.tokens+now.Sub(tb.lastRefill).Seconds()*tb.rate)
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true, tb.tokens, 0
	}
	wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
	return false, tb.tokens, wait
}

// tokenBucketPool holds one bucket per key and forgets idle ones.
type tokenBucketPool struct {
	mu       sync.Mutex
	buckets  map[string]*tokenBucketEntry
	capacity float64
	rate     float64
	now      func() time.Time
}

type tokenBucketEntry struct {
	bucket   *TokenBucket
	lastUsed time.Time
}

func newTokenBucketPool(capacity, rate float64, now func() time.Time) *tokenBucketPool {
	return &tokenBucketPool{
		buckets:  make(map[string]*tokenBucketEntry),
		capacity: capacity,
		rate:     rate,
		now:      now,
	}
}

func (p *tokenBucketPool) get(key string) *TokenBucket {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.buckets[key]; ok {
		entry.lastUsed = p.now()
		return entry.bucket
	}
	bucket := newTokenBucket(p.capacity, p.rate, p.now)
	p.buckets[key] = &tokenBucketEntry{bucket: bucket, lastUsed: p.now()}
	return bucket
}

func (p *tokenBucketPool) remove(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.buckets, key)
}

// cleanup drops buckets unused for maxIdle and returns how many went.
func (p *tokenBucketPool) cleanup(maxIdle time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	removed := 0
	for key, entry := range p.buckets {
		if now.Sub(entry.lastUsed) > maxIdle {
			delete(p.buckets, key)
			removed++
		}
	}
	return removed
}

func (p *tokenBucketPool) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buckets)
}
