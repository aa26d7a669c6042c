// Package prompt implements the password dialog surfaces: a broker whose
// prompts are answered over HTTP, and a terminal prompter for the CLI.
package prompt

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

var _ service.PasswordPrompter = (*Broker)(nil)

type answer struct {
	password []byte
	cancel   bool
}

type pendingPrompt struct {
	req    models.PromptRequest
	answer chan answer
}

// Broker parks PromptPassword calls until a client answers or cancels them
// through Answer and Cancel. An unanswered prompt is dismissed after the
// configured timeout.
type Broker struct {
	mu        sync.Mutex
	pending   map[string]*pendingPrompt
	timeout   time.Duration
	onPending func(models.PromptRequest)
	logger    logger.Logger
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithTimeout sets how long a prompt waits for an answer. Zero waits forever.
func WithTimeout(d time.Duration) BrokerOption {
	return func(b *Broker) {
		b.timeout = d
	}
}

// WithOnPending registers a hook called whenever a prompt opens.
func WithOnPending(fn func(models.PromptRequest)) BrokerOption {
	return func(b *Broker) {
		b.onPending = fn
	}
}

// NewBroker creates a Broker.
func NewBroker(log logger.Logger, opts ...BrokerOption) *Broker {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	b := &Broker{
		pending: make(map[string]*pendingPrompt),
		logger:  log.WithComponent("PromptBroker"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PromptPassword blocks until the prompt identified by req.ID is answered.
// Cancel and timeout both return errors.ErrUserCancelled.
func (b *Broker) PromptPassword(ctx context.Context, req models.PromptRequest) ([]byte, error) {
	if req.ID == "" {
		return nil, errors.ErrInvalidRequest("prompt id is required")
	}
	p := &pendingPrompt{req: req, answer: make(chan answer, 1)}

	b.mu.Lock()
	if _, exists := b.pending[req.ID]; exists {
		b.mu.Unlock()
		return nil, errors.ErrInvalidRequest("prompt " + req.ID + " is already open")
	}
	b.pending[req.ID] = p
	b.mu.Unlock()
	defer b.remove(p)

	b.logger.Info(ctx, "Password prompt opened",
		logger.String("prompt_id", req.ID),
		logger.String("fingerprint", utils.MaskFingerprint(string(req.Fingerprint))),
		logger.String("reason", string(req.Reason)),
		logger.Int("attempt", req.Attempt),
	)
	if b.onPending != nil {
		b.onPending(req)
	}

	var expired <-chan time.Time
	if b.timeout > 0 {
		timer := time.NewTimer(b.timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case a := <-p.answer:
		if a.cancel {
			return nil, errors.ErrUserCancelled()
		}
		return a.password, nil
	case <-expired:
		b.logger.Warn(ctx, "Password prompt timed out", logger.String("prompt_id", req.ID))
		return nil, errors.ErrUserCancelled()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending lists open prompts, oldest first.
func (b *Broker) Pending() []models.PromptRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.PromptRequest, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.req)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Answer supplies the password for an open prompt. The broker keeps its own
// copy; the caller may wipe password afterwards.
func (b *Broker) Answer(id string, password []byte) error {
	if len(password) == 0 {
		return errors.ErrInvalidRequest("password is required")
	}
	pw := make([]byte, len(password))
	copy(pw, password)
	return b.resolve(id, answer{password: pw})
}

// Cancel dismisses an open prompt.
func (b *Broker) Cancel(id string) error {
	return b.resolve(id, answer{cancel: true})
}

// resolve delivers a under the lock so remove never misses an answer that
// was sent after the waiter gave up.
func (b *Broker) resolve(id string, a answer) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pending[id]
	if !ok {
		wipe(a.password)
		return errors.ErrPromptNotFound(id)
	}
	delete(b.pending, id)
	p.answer <- a
	return nil
}

// remove closes the prompt and wipes an answer nobody received.
func (b *Broker) remove(p *pendingPrompt) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pending[p.req.ID] == p {
		delete(b.pending, p.req.ID)
	}
	select {
	case a := <-p.answer:
		wipe(a.password)
	default:
	}
}

func wipe(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}
