// Package secretcache keeps decrypted private keys and their passwords for a
// bounded time after a successful unlock.
package secretcache

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

// Cache events reported to the Recorder.
const (
	EventHit        = "hit"
	EventMiss       = "miss"
	EventPut        = "put"
	EventReplace    = "replace"
	EventInvalidate = "invalidate"
	EventEvict      = "evict"
)

// Recorder receives cache events. *monitoring.Metrics satisfies it.
type Recorder interface {
	RecordCacheEvent(event string)
}

type noopRecorder struct{}

func (noopRecorder) RecordCacheEvent(string) {}

// Entry is a read-only view of a cached secret. Key stays owned by the cache;
// use CloneKey to obtain a handle the caller may keep.
type Entry struct {
	Fingerprint models.Fingerprint
	Key         models.UnlockedKey
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

type item struct {
	entry    Entry
	password []byte
}

// wipe zeroes the password and releases the key handle.
func (it *item) wipe() {
	for i := range it.password {
		it.password[i] = 0
	}
	it.password = nil
	if it.entry.Key != nil {
		it.entry.Key.Wipe()
	}
}

// Cache is the time-bounded secret store. go-cache provides the storage and
// the janitor goroutine; expiry is additionally checked against the cache's
// own clock on every read so that reads past the TTL never see an entry.
type Cache struct {
	mu       sync.Mutex
	store    *cache.Cache
	ttl      time.Duration
	now      func() time.Time
	janitor  time.Duration
	recorder Recorder
	logger   logger.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithJanitorInterval sets how often expired entries are swept. Zero disables the janitor.
func WithJanitorInterval(d time.Duration) Option {
	return func(c *Cache) { c.janitor = d }
}

// WithRecorder reports cache events.
func WithRecorder(r Recorder) Option {
	return func(c *Cache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Cache) { c.logger = log.WithComponent("SecretCache") }
}

// New creates a cache whose entries live for ttl.
func New(ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = constants.DefaultSecretTTL
	}
	c := &Cache{
		ttl:      ttl,
		now:      time.Now,
		janitor:  constants.DefaultJanitorInterval,
		recorder: noopRecorder{},
		logger:   logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	cleanup := c.janitor
	if cleanup <= 0 {
		cleanup = -1
	}
	c.store = cache.New(ttl, cleanup)
	// Every removal path, janitor sweeps included, goes through this hook.
	c.store.OnEvicted(func(_ string, v interface{}) {
		if it, ok := v.(*item); ok {
			it.wipe()
			c.recorder.RecordCacheEvent(EventEvict)
		}
	})
	return c
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Put stores the decrypted key and a copy of password, replacing and wiping
// any previous entry for the fingerprint. The cache takes ownership of key.
func (c *Cache) Put(fpr models.Fingerprint, key models.UnlockedKey, password []byte) {
	now := c.now()
	it := &item{
		entry: Entry{
			Fingerprint: fpr,
			Key:         key,
			CreatedAt:   now,
			ExpiresAt:   now.Add(c.ttl),
		},
		password: append([]byte(nil), password...),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if v, found := c.store.Get(string(fpr)); found {
		if old := v.(*item); old.entry.Key == key {
			old.entry.Key = nil
		}
		c.recorder.RecordCacheEvent(EventReplace)
	}
	// Delete also reaches entries go-cache already considers expired.
	c.store.Delete(string(fpr))
	c.store.Set(string(fpr), it, c.ttl)
	c.recorder.RecordCacheEvent(EventPut)
	c.logger.Debug(context.Background(), "secret cached",
		logger.String("fingerprint", utils.MaskFingerprint(string(fpr))),
		logger.Time("expires_at", it.entry.ExpiresAt))
}

// Get returns the live entry for fpr. An expired entry is evicted and reported absent.
func (c *Cache) Get(fpr models.Fingerprint) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.live(fpr)
	if !ok {
		c.recorder.RecordCacheEvent(EventMiss)
		return Entry{}, false
	}
	c.recorder.RecordCacheEvent(EventHit)
	return it.entry, true
}

// CloneKey returns a copy of the cached key that the caller owns and must wipe.
func (c *Cache) CloneKey(fpr models.Fingerprint) (models.UnlockedKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.live(fpr)
	if !ok {
		c.recorder.RecordCacheEvent(EventMiss)
		return nil, false
	}
	clone, err := it.entry.Key.Clone()
	if err != nil {
		c.store.Delete(string(fpr))
		c.recorder.RecordCacheEvent(EventMiss)
		return nil, false
	}
	c.recorder.RecordCacheEvent(EventHit)
	return clone, true
}

// Invalidate removes and wipes the entry for fpr, expired or not.
func (c *Cache) Invalidate(fpr models.Fingerprint) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Delete(string(fpr))
	c.recorder.RecordCacheEvent(EventInvalidate)
	c.logger.Debug(context.Background(), "secret invalidated", logger.String("fingerprint", utils.MaskFingerprint(string(fpr))))
}

// ValidatePassword checks candidate against the cached password when a live
// entry exists, otherwise asks unlocker to try it. The result is never cached.
func (c *Cache) ValidatePassword(ctx context.Context, key *models.KeyRecord, candidate []byte, unlocker service.Unlocker) (bool, error) {
	c.mu.Lock()
	it, ok := c.live(key.Fingerprint)
	var match bool
	if ok {
		match = subtle.ConstantTimeCompare(it.password, candidate) == 1
	}
	c.mu.Unlock()
	if ok {
		return match, nil
	}

	unlocked, err := unlocker.AttemptUnlock(ctx, key, candidate)
	if err != nil {
		if errors.HasCode(err, constants.ErrCodeInvalidCredential) {
			return false, nil
		}
		return false, err
	}
	unlocked.Wipe()
	return true, nil
}

// Len returns the number of stored entries, expired ones not yet swept included.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// Close wipes every entry.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.DeleteExpired()
	for k := range c.store.Items() {
		c.store.Delete(k)
	}
}

// live returns the entry if present and not expired by the cache clock,
// evicting it otherwise. Callers hold c.mu.
func (c *Cache) live(fpr models.Fingerprint) (*item, bool) {
	v, found := c.store.Get(string(fpr))
	if !found {
		return nil, false
	}
	it, ok := v.(*item)
	if !ok {
		return nil, false
	}
	if !c.now().Before(it.entry.ExpiresAt) {
		c.store.Delete(string(fpr))
		return nil, false
	}
	return it, true
}
