package unlock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/turtacn/keyvault/internal/application/secretcache"
	"github.com/turtacn/keyvault/internal/application/unlock"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/service/mocks"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
)

// answer is what a gatedPrompter returns for one prompt.
type answer struct {
	password []byte
	err      error
}

// gatedPrompter blocks every prompt until the test answers it, so tests can
// observe which prompts are open at any moment.
type gatedPrompter struct {
	mu      sync.Mutex
	open    int
	maxOpen int
	seen    []models.PromptRequest
	prompts chan models.PromptRequest
	answers chan answer
}

func newGatedPrompter() *gatedPrompter {
	return &gatedPrompter{
		prompts: make(chan models.PromptRequest, 16),
		answers: make(chan answer),
	}
}

func (p *gatedPrompter) PromptPassword(ctx context.Context, req models.PromptRequest) ([]byte, error) {
	p.mu.Lock()
	p.open++
	if p.open > p.maxOpen {
		p.maxOpen = p.open
	}
	p.seen = append(p.seen, req)
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.open--
		p.mu.Unlock()
	}()

	p.prompts <- req
	select {
	case a := <-p.answers:
		return a.password, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *gatedPrompter) expectPrompt(t *testing.T) models.PromptRequest {
	t.Helper()
	select {
	case req := <-p.prompts:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("expected a prompt")
		return models.PromptRequest{}
	}
}

func (p *gatedPrompter) expectNoPrompt(t *testing.T) {
	t.Helper()
	select {
	case req := <-p.prompts:
		t.Fatalf("unexpected prompt for %s", req.Fingerprint)
	case <-time.After(50 * time.Millisecond):
	}
}

func (p *gatedPrompter) answer(password string) {
	p.answers <- answer{password: []byte(password)}
}

func (p *gatedPrompter) cancel() {
	p.answers <- answer{err: errors.ErrUserCancelled()}
}

func (p *gatedPrompter) maxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxOpen
}

func privateKey(fpr string) *models.KeyRecord {
	return &models.KeyRecord{
		KeyringID:      constants.MainKeyringID,
		Fingerprint:    models.Fingerprint(fpr),
		ArmoredPublic:  "pub",
		ArmoredPrivate: "priv",
		Users:          []models.KeyUser{{UserID: "Alice <alice@example.com>", Primary: true}},
	}
}

type result struct {
	res models.UnlockResult
	err error
}

func submit(c *unlock.Coordinator, ctx context.Context, key *models.KeyRecord, reason constants.ReasonCode) <-chan result {
	out := make(chan result, 1)
	go func() {
		res, err := c.RequestUnlock(ctx, models.UnlockRequest{
			KeyringID: key.KeyringID,
			Key:       key,
			Reason:    reason,
			Operation: "test",
		})
		out <- result{res, err}
	}()
	return out
}

func waitResult(t *testing.T, ch <-chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("request did not resolve")
		return result{}
	}
}

func waitPending(t *testing.T, c *unlock.Coordinator, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Pending() == n }, 2*time.Second, 5*time.Millisecond)
}

func setup(t *testing.T, opts ...unlock.Option) (*unlock.Coordinator, *gatedPrompter, *mocks.MockKeyCrypto, *secretcache.Cache) {
	cache := secretcache.New(time.Hour, secretcache.WithJanitorInterval(0))
	prompter := newGatedPrompter()
	unlocker := new(mocks.MockKeyCrypto)
	c := unlock.NewCoordinator(cache, prompter, unlocker, logger.NewNoopLogger(), opts...)
	t.Cleanup(func() {
		c.Close()
		cache.Close()
	})
	return c, prompter, unlocker, cache
}

func TestCoordinator_PromptsOnMissAndCaches(t *testing.T) {
	c, prompter, unlocker, cache := setup(t)
	key := privateKey("AAAA")
	handle := mocks.NewFakeUnlockedKey(key.Fingerprint)
	unlocker.On("AttemptUnlock", mock.Anything, key, []byte("secret")).Return(handle, nil).Once()

	done := submit(c, context.Background(), key, constants.ReasonRevoke)
	req := prompter.expectPrompt(t)
	assert.Equal(t, key.Fingerprint, req.Fingerprint)
	assert.Equal(t, constants.ReasonRevoke, req.Reason)
	assert.Equal(t, "Alice <alice@example.com>", req.UserID)
	assert.Equal(t, 1, req.Attempt)
	prompter.answer("secret")

	r := waitResult(t, done)
	require.NoError(t, r.err)
	require.NotNil(t, r.res.Key)
	assert.False(t, r.res.Cancelled)
	assert.False(t, r.res.FromCache)
	assert.NotSame(t, handle, r.res.Key, "caller gets a copy, the cache keeps the original")

	entry, ok := cache.Get(key.Fingerprint)
	require.True(t, ok)
	assert.Same(t, handle, entry.Key)
	unlocker.AssertExpectations(t)
}

func TestCoordinator_CacheHitSkipsPrompt(t *testing.T) {
	c, prompter, unlocker, cache := setup(t)
	key := privateKey("AAAA")
	cache.Put(key.Fingerprint, mocks.NewFakeUnlockedKey(key.Fingerprint), []byte("secret"))

	r := waitResult(t, submit(c, context.Background(), key, constants.ReasonSign))
	require.NoError(t, r.err)
	assert.True(t, r.res.FromCache)
	require.NotNil(t, r.res.Key)
	prompter.expectNoPrompt(t)
	unlocker.AssertNotCalled(t, "AttemptUnlock", mock.Anything, mock.Anything, mock.Anything)
}

func TestCoordinator_FIFOAndSinglePrompt(t *testing.T) {
	c, prompter, unlocker, _ := setup(t)
	keys := []*models.KeyRecord{privateKey("AAAA"), privateKey("BBBB"), privateKey("CCCC")}
	var results []<-chan result
	for _, k := range keys {
		unlocker.On("AttemptUnlock", mock.Anything, k, mock.Anything).
			Return(mocks.NewFakeUnlockedKey(k.Fingerprint), nil).Once()
		results = append(results, submit(c, context.Background(), k, constants.ReasonDecrypt))
		// Submission order is fixed by the time each request is queued.
		waitPending(t, c, len(results))
	}

	for i, k := range keys {
		req := prompter.expectPrompt(t)
		assert.Equal(t, k.Fingerprint, req.Fingerprint, "prompt %d out of order", i)
		prompter.expectNoPrompt(t)
		prompter.answer("pw")
		r := waitResult(t, results[i])
		require.NoError(t, r.err)
	}

	assert.Equal(t, 1, prompter.maxConcurrent())
	assert.Equal(t, 0, c.Pending())
}

func TestCoordinator_ConcurrentAddUserSerialized(t *testing.T) {
	c, prompter, unlocker, _ := setup(t)
	first, second := privateKey("AAAA"), privateKey("BBBB")
	unlocker.On("AttemptUnlock", mock.Anything, first, mock.Anything).Return(mocks.NewFakeUnlockedKey(first.Fingerprint), nil).Once()
	unlocker.On("AttemptUnlock", mock.Anything, second, mock.Anything).Return(mocks.NewFakeUnlockedKey(second.Fingerprint), nil).Once()

	r1 := submit(c, context.Background(), first, constants.ReasonAddUser)
	prompter.expectPrompt(t)
	r2 := submit(c, context.Background(), second, constants.ReasonAddUser)
	waitPending(t, c, 2)

	// The second prompt waits for the first to resolve.
	prompter.expectNoPrompt(t)
	prompter.answer("one")
	require.NoError(t, waitResult(t, r1).err)

	req := prompter.expectPrompt(t)
	assert.Equal(t, second.Fingerprint, req.Fingerprint)
	prompter.answer("two")
	require.NoError(t, waitResult(t, r2).err)
}

func TestCoordinator_CancelResolvesAndQueueContinues(t *testing.T) {
	c, prompter, unlocker, cache := setup(t)
	first, second := privateKey("AAAA"), privateKey("BBBB")
	unlocker.On("AttemptUnlock", mock.Anything, second, mock.Anything).Return(mocks.NewFakeUnlockedKey(second.Fingerprint), nil).Once()

	r1 := submit(c, context.Background(), first, constants.ReasonRevoke)
	prompter.expectPrompt(t)
	r2 := submit(c, context.Background(), second, constants.ReasonRevoke)
	waitPending(t, c, 2)

	prompter.cancel()
	got := waitResult(t, r1)
	require.NoError(t, got.err)
	assert.True(t, got.res.Cancelled)
	assert.Nil(t, got.res.Key)
	_, ok := cache.Get(first.Fingerprint)
	assert.False(t, ok)

	prompter.expectPrompt(t)
	prompter.answer("pw")
	got = waitResult(t, r2)
	require.NoError(t, got.err)
	assert.NotNil(t, got.res.Key)
}

func TestCoordinator_WrongPasswordReprompts(t *testing.T) {
	c, prompter, unlocker, _ := setup(t, unlock.WithMaxAttempts(3))
	key := privateKey("AAAA")
	unlocker.On("AttemptUnlock", mock.Anything, key, []byte("wrong")).Return(nil, errors.ErrInvalidCredential("AAAA")).Once()
	unlocker.On("AttemptUnlock", mock.Anything, key, []byte("right")).Return(mocks.NewFakeUnlockedKey(key.Fingerprint), nil).Once()

	done := submit(c, context.Background(), key, constants.ReasonSetExpiry)
	req := prompter.expectPrompt(t)
	assert.Equal(t, 1, req.Attempt)
	assert.Empty(t, req.LastError)
	prompter.answer("wrong")

	req = prompter.expectPrompt(t)
	assert.Equal(t, 2, req.Attempt)
	assert.Equal(t, string(constants.ErrCodeInvalidCredential), req.LastError)
	prompter.answer("right")

	r := waitResult(t, done)
	require.NoError(t, r.err)
	assert.NotNil(t, r.res.Key)
}

func TestCoordinator_AttemptsExhausted(t *testing.T) {
	c, prompter, unlocker, cache := setup(t, unlock.WithMaxAttempts(2))
	key := privateKey("AAAA")
	unlocker.On("AttemptUnlock", mock.Anything, key, mock.Anything).Return(nil, errors.ErrInvalidCredential("AAAA")).Times(2)

	done := submit(c, context.Background(), key, constants.ReasonRevoke)
	prompter.expectPrompt(t)
	prompter.answer("a")
	prompter.expectPrompt(t)
	prompter.answer("b")

	r := waitResult(t, done)
	assert.True(t, errors.HasCode(r.err, constants.ErrCodeInvalidCredential))
	assert.Equal(t, 0, cache.Len())
	unlocker.AssertExpectations(t)
}

func TestCoordinator_QueuedCallerContextCancelled(t *testing.T) {
	c, prompter, unlocker, _ := setup(t)
	first, second, third := privateKey("AAAA"), privateKey("BBBB"), privateKey("CCCC")
	unlocker.On("AttemptUnlock", mock.Anything, mock.Anything, mock.Anything).Return(mocks.NewFakeUnlockedKey("X"), nil)

	r1 := submit(c, context.Background(), first, constants.ReasonSign)
	prompter.expectPrompt(t)

	ctx, cancel := context.WithCancel(context.Background())
	r2 := submit(c, ctx, second, constants.ReasonSign)
	r3 := submit(c, context.Background(), third, constants.ReasonSign)
	waitPending(t, c, 3)

	cancel()
	got := waitResult(t, r2)
	assert.ErrorIs(t, got.err, context.Canceled)
	waitPending(t, c, 2)

	prompter.answer("one")
	require.NoError(t, waitResult(t, r1).err)

	req := prompter.expectPrompt(t)
	assert.Equal(t, third.Fingerprint, req.Fingerprint)
	prompter.answer("three")
	require.NoError(t, waitResult(t, r3).err)
}

func TestCoordinator_RejectsPublicKey(t *testing.T) {
	c, _, _, _ := setup(t)
	_, err := c.RequestUnlock(context.Background(), models.UnlockRequest{
		Key: &models.KeyRecord{Fingerprint: "AAAA", ArmoredPublic: "pub"},
	})
	assert.True(t, errors.HasCode(err, constants.ErrCodeInvalidRequest))
}

func TestCoordinator_CloseFailsQueued(t *testing.T) {
	cache := secretcache.New(time.Hour, secretcache.WithJanitorInterval(0))
	defer cache.Close()
	prompter := newGatedPrompter()
	c := unlock.NewCoordinator(cache, prompter, new(mocks.MockKeyCrypto), logger.NewNoopLogger())

	r1 := submit(c, context.Background(), privateKey("AAAA"), constants.ReasonSign)
	prompter.expectPrompt(t)
	r2 := submit(c, context.Background(), privateKey("BBBB"), constants.ReasonSign)
	waitPending(t, c, 2)

	c.Close()

	assert.Error(t, waitResult(t, r1).err)
	assert.True(t, errors.HasCode(waitResult(t, r2).err, constants.ErrCodeInternal))

	_, err := c.RequestUnlock(context.Background(), models.UnlockRequest{Key: privateKey("CCCC")})
	assert.Error(t, err)
}
