// Package unlock serializes interactive password prompts for private keys.
// Package unlock 串行化私钥的交互式密码请求。
package unlock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/turtacn/keyvault/internal/application/secretcache"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

// Prompt results reported to the Recorder.
const (
	PromptUnlocked  = "unlocked"
	PromptInvalid   = "invalid"
	PromptCancelled = "cancelled"
	PromptAbandoned = "abandoned"
	PromptFailed    = "error"
)

// Recorder receives queue and prompt metrics. *monitoring.Metrics satisfies it.
type Recorder interface {
	SetQueueDepth(depth int)
	RecordPrompt(result string)
}

type noopRecorder struct{}

func (noopRecorder) SetQueueDepth(int)   {}
func (noopRecorder) RecordPrompt(string) {}

type pending struct {
	ctx       context.Context
	req       models.UnlockRequest
	result    chan delivery
	abandoned bool
}

type delivery struct {
	res models.UnlockResult
	err error
}

// Coordinator owns the process-wide unlock queue. Requests are served in
// submission order by a single worker, so at most one prompt is visible at a time.
// Coordinator 持有进程级的解锁队列，请求按提交顺序由单个 worker 处理。
type Coordinator struct {
	cache    *secretcache.Cache
	prompter service.PasswordPrompter
	unlocker service.Unlocker
	logger   logger.Logger
	recorder Recorder

	maxAttempts int
	now         func() time.Time

	mu           sync.Mutex
	cond         *sync.Cond
	queue        []*pending
	active       *pending
	activeCancel context.CancelFunc
	closed       bool
	wg           sync.WaitGroup
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithMaxAttempts bounds the prompts shown for one request when the password is wrong.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRecorder reports queue depth and prompt outcomes.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// NewCoordinator creates a coordinator and starts its worker.
// NewCoordinator 创建协调器并启动 worker。
func NewCoordinator(cache *secretcache.Cache, prompter service.PasswordPrompter, unlocker service.Unlocker, log logger.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		cache:       cache,
		prompter:    prompter,
		unlocker:    unlocker,
		logger:      log.WithComponent("UnlockCoordinator"),
		recorder:    noopRecorder{},
		maxAttempts: constants.DefaultUnlockMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.cond = sync.NewCond(&c.mu)

	c.wg.Add(1)
	go c.run()
	return c
}

// RequestUnlock enqueues req and blocks until it is served. A dismissed prompt
// yields UnlockResult{Cancelled: true} with a nil error. The returned key is
// owned by the caller, who must Wipe it.
// RequestUnlock 将请求入队并阻塞直到处理完成。返回的密钥归调用方所有，用完需 Wipe。
func (c *Coordinator) RequestUnlock(ctx context.Context, req models.UnlockRequest) (models.UnlockResult, error) {
	if req.Key == nil || !req.Key.HasPrivateKey() {
		return models.UnlockResult{}, errors.ErrInvalidRequest("unlock requires a key with private material")
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	p := &pending{ctx: ctx, req: req, result: make(chan delivery, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.UnlockResult{}, errors.ErrInternal("unlock coordinator is closed")
	}
	c.queue = append(c.queue, p)
	c.recorder.SetQueueDepth(c.depthLocked())
	c.cond.Signal()
	c.mu.Unlock()

	c.logger.Debug(ctx, "unlock request queued",
		logger.String("request_id", req.ID),
		logger.String("fingerprint", utils.MaskFingerprint(string(req.Key.Fingerprint))),
		logger.String("reason", string(req.Reason)))

	select {
	case d := <-p.result:
		return d.res, d.err
	case <-ctx.Done():
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	p.abandoned = true
	c.removeLocked(p)
	// The worker may have finished just before the caller gave up.
	select {
	case d := <-p.result:
		return d.res, d.err
	default:
	}
	return models.UnlockResult{}, ctx.Err()
}

// Pending returns the number of queued requests, the one being served included.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depthLocked()
}

// Close stops the worker. Queued requests fail and an open prompt is aborted.
// Close 停止 worker，排队中的请求失败，正在显示的提示被中止。
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	queued := c.queue
	c.queue = nil
	if c.activeCancel != nil {
		c.activeCancel()
	}
	c.cond.Broadcast()
	c.mu.Unlock()

	for _, p := range queued {
		c.deliver(p, models.UnlockResult{}, errors.ErrInternal("unlock coordinator is closed"))
	}
	c.wg.Wait()
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	for {
		p, ctx, cancel := c.next()
		if p == nil {
			return
		}
		res, err := c.serve(ctx, p)
		cancel()
		c.deliver(p, res, err)

		c.mu.Lock()
		c.active = nil
		c.activeCancel = nil
		c.recorder.SetQueueDepth(c.depthLocked())
		c.mu.Unlock()
	}
}

// next blocks until a request is available and marks it active.
func (c *Coordinator) next() (*pending, context.Context, context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) == 0 && !c.closed {
		c.cond.Wait()
	}
	if c.closed {
		return nil, nil, nil
	}
	p := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	ctx, cancel := context.WithCancel(p.ctx)
	c.active = p
	c.activeCancel = cancel
	return p, ctx, cancel
}

func (c *Coordinator) serve(ctx context.Context, p *pending) (models.UnlockResult, error) {
	if err := ctx.Err(); err != nil {
		return models.UnlockResult{}, err
	}

	key := p.req.Key
	if clone, ok := c.cache.CloneKey(key.Fingerprint); ok {
		return models.UnlockResult{Key: clone, FromCache: true}, nil
	}

	var userID string
	if u := key.PrimaryUser(); u != nil {
		userID = u.UserID
	}

	var lastError string
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		password, err := c.prompter.PromptPassword(ctx, models.PromptRequest{
			ID:          p.req.ID,
			KeyringID:   p.req.KeyringID,
			Fingerprint: key.Fingerprint,
			UserID:      userID,
			Reason:      p.req.Reason,
			Operation:   p.req.Operation,
			Attempt:     attempt,
			LastError:   lastError,
			CreatedAt:   c.now(),
		})
		if err != nil {
			switch {
			case errors.HasCode(err, constants.ErrCodeUserCancelled):
				c.recorder.RecordPrompt(PromptCancelled)
				c.logger.Info(ctx, "unlock cancelled by user", logger.String("fingerprint", utils.MaskFingerprint(string(key.Fingerprint))))
				return models.UnlockResult{Cancelled: true}, nil
			case ctx.Err() != nil:
				c.recorder.RecordPrompt(PromptAbandoned)
				return models.UnlockResult{}, ctx.Err()
			default:
				c.recorder.RecordPrompt(PromptFailed)
				return models.UnlockResult{}, err
			}
		}

		unlocked, err := c.unlocker.AttemptUnlock(ctx, key, password)
		if err != nil {
			wipeBytes(password)
			if errors.HasCode(err, constants.ErrCodeInvalidCredential) {
				c.recorder.RecordPrompt(PromptInvalid)
				c.logger.Warn(ctx, "wrong password",
					logger.String("fingerprint", utils.MaskFingerprint(string(key.Fingerprint))),
					logger.Int("attempt", attempt))
				lastError = string(constants.ErrCodeInvalidCredential)
				continue
			}
			c.recorder.RecordPrompt(PromptFailed)
			return models.UnlockResult{}, err
		}

		clone, err := unlocked.Clone()
		if err != nil {
			unlocked.Wipe()
			wipeBytes(password)
			return models.UnlockResult{}, errors.WrapError(err, constants.ErrCodeInternal, "failed to copy unlocked key")
		}
		c.cache.Put(key.Fingerprint, unlocked, password)
		wipeBytes(password)
		c.recorder.RecordPrompt(PromptUnlocked)
		return models.UnlockResult{Key: clone}, nil
	}

	return models.UnlockResult{}, errors.ErrInvalidCredential(string(key.Fingerprint))
}

// deliver hands the result to the waiting caller, or wipes it when the caller is gone.
func (c *Coordinator) deliver(p *pending, res models.UnlockResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.abandoned {
		if res.Key != nil {
			res.Key.Wipe()
		}
		return
	}
	p.result <- delivery{res: res, err: err}
}

func (c *Coordinator) removeLocked(p *pending) {
	for i, q := range c.queue {
		if q == p {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.recorder.SetQueueDepth(c.depthLocked())
			return
		}
	}
}

func (c *Coordinator) depthLocked() int {
	n := len(c.queue)
	if c.active != nil {
		n++
	}
	return n
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
