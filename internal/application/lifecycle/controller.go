// Package lifecycle orchestrates user-initiated key mutations: it acquires the
// key, obtains the unlocked private key through the unlock queue when needed,
// applies the change, keeps the secret cache coherent and tells observers to
// refresh.
// Package lifecycle 编排用户发起的密钥变更操作。
package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/turtacn/keyvault/internal/application/secretcache"
	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/repository"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/internal/infrastructure/monitoring"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

// UnlockQueue obtains unlocked private keys. *unlock.Coordinator implements it.
// UnlockQueue 获取已解锁的私钥，由 *unlock.Coordinator 实现。
type UnlockQueue interface {
	RequestUnlock(ctx context.Context, req models.UnlockRequest) (models.UnlockResult, error)
}

// SyncReconciler reads and changes key server sync state. *syncstate.Reconciler implements it.
// SyncReconciler 读取和修改密钥服务器同步状态。
type SyncReconciler interface {
	GetStatus(ctx context.Context, keyringID string, fpr models.Fingerprint) (models.SyncStatus, error)
	SetStatus(ctx context.Context, keyringID string, fpr models.Fingerprint, wantSync bool) (*models.KeyServerResult, error)
}

// Dependencies wires a Controller.
type Dependencies struct {
	Keys     repository.KeyringStore
	Active   repository.ActiveKeyringStore
	Crypto   service.KeyCrypto
	Cache    *secretcache.Cache
	Unlock   UnlockQueue
	Sync     SyncReconciler
	Notifier service.ChangeNotifier
	// Audit is optional; every finished operation is recorded when set.
	Audit   service.AuditService
	Tracing *monitoring.TracingManager
	Metrics *monitoring.Metrics
	Logger  logger.Logger
	// Source names this process in keys-changed events.
	Source string
	Now    func() time.Time
}

// Controller runs key lifecycle operations.
// Controller 执行密钥生命周期操作。
type Controller struct {
	keys     repository.KeyringStore
	active   repository.ActiveKeyringStore
	crypto   service.KeyCrypto
	cache    *secretcache.Cache
	unlock   UnlockQueue
	sync     SyncReconciler
	notifier service.ChangeNotifier
	audit    service.AuditService
	tracing  *monitoring.TracingManager
	metrics  *monitoring.Metrics
	logger   logger.Logger
	source   string
	now      func() time.Time
}

// NewController creates a Controller.
// NewController 创建控制器实例。
func NewController(deps Dependencies) *Controller {
	c := &Controller{
		keys:     deps.Keys,
		active:   deps.Active,
		crypto:   deps.Crypto,
		cache:    deps.Cache,
		unlock:   deps.Unlock,
		sync:     deps.Sync,
		notifier: deps.Notifier,
		audit:    deps.Audit,
		tracing:  deps.Tracing,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		source:   deps.Source,
		now:      deps.Now,
	}
	if c.tracing == nil {
		c.tracing = monitoring.NewNoopTracingManager()
	}
	if c.logger == nil {
		c.logger = logger.NewNoopLogger()
	}
	c.logger = c.logger.WithComponent("KeyLifecycleController")
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// run tracks one operation through its phases for logging, tracing and metrics.
type run struct {
	c         *Controller
	name      string
	keyringID string
	fpr       models.Fingerprint
	phase     Phase
	started   time.Time
	span      trace.Span
}

func (c *Controller) begin(ctx context.Context, name, keyringID string, fpr models.Fingerprint) (context.Context, *run) {
	ctx, span := c.tracing.StartSpan(ctx, "lifecycle."+name,
		attribute.String("keyring_id", keyringID),
		attribute.String("fingerprint", string(fpr)),
	)
	return ctx, &run{
		c:         c,
		name:      name,
		keyringID: keyringID,
		fpr:       fpr,
		phase:     PhaseIdle,
		started:   c.now(),
		span:      span,
	}
}

func (r *run) enter(ctx context.Context, p Phase) {
	r.phase = p
	r.c.tracing.AddEvent(ctx, p.String())
	r.c.logger.Debug(ctx, "operation phase",
		logger.String("operation", r.name),
		logger.String("fingerprint", utils.MaskFingerprint(string(r.fpr))),
		logger.String("phase", p.String()))
}

func (r *run) end(ctx context.Context, p Phase, err error) (Outcome, error) {
	from := r.phase
	r.phase = p
	r.c.metrics.RecordKeyOperation(r.name, p.String(), r.c.now().Sub(r.started))
	r.c.tracing.EndSpan(r.span, err)
	r.c.record(ctx, r, p, err)

	switch p {
	case PhaseFailed:
		r.c.logger.Error(ctx, "key operation failed", err,
			logger.String("operation", r.name),
			logger.String("keyring_id", r.keyringID),
			logger.String("fingerprint", utils.MaskFingerprint(string(r.fpr))),
			logger.String("failed_in", from.String()))
		return Outcome{}, err
	case PhaseCancelledByUser:
		r.c.logger.Info(ctx, "key operation cancelled by user",
			logger.String("operation", r.name),
			logger.String("fingerprint", utils.MaskFingerprint(string(r.fpr))))
	default:
		r.c.logger.Info(ctx, "key operation succeeded",
			logger.String("operation", r.name),
			logger.String("keyring_id", r.keyringID),
			logger.String("fingerprint", utils.MaskFingerprint(string(r.fpr))))
	}
	return Outcome{
		Operation:   r.name,
		KeyringID:   r.keyringID,
		Fingerprint: r.fpr,
		Phase:       p,
		Status:      p.String(),
	}, nil
}

func (r *run) fail(ctx context.Context, err error) (Outcome, error) {
	return r.end(ctx, PhaseFailed, err)
}

// mutation applies a change with the unlocked private key.
type mutation func(ctx context.Context, key *models.KeyRecord, unlocked models.UnlockedKey) error

// withUnlockedKey is the pipeline shared by every prompted mutation:
// acquire, unlock through the queue, mutate, invalidate, broadcast.
// check runs against the acquired key before any prompt is shown.
func (c *Controller) withUnlockedKey(ctx context.Context, name, keyringID string, fpr models.Fingerprint,
	reason constants.ReasonCode, check func(*models.KeyRecord) error, mutate mutation) (Outcome, error) {
	ctx, r := c.begin(ctx, name, keyringID, fpr)

	// 1. Acquire the private key
	r.enter(ctx, PhaseAcquiringKey)
	key, err := c.privateKey(ctx, keyringID, fpr)
	if err != nil {
		return r.fail(ctx, err)
	}
	if check != nil {
		if err := check(key); err != nil {
			return r.fail(ctx, err)
		}
	}

	// 2. Wait for the unlock queue
	r.enter(ctx, PhaseAwaitingUnlock)
	res, err := c.unlock.RequestUnlock(ctx, models.UnlockRequest{
		KeyringID: keyringID,
		Key:       key,
		Reason:    reason,
		Operation: name,
	})
	if err != nil {
		return r.fail(ctx, err)
	}
	if res.Cancelled {
		return r.end(ctx, PhaseCancelledByUser, nil)
	}
	defer res.Key.Wipe()

	// 3. Apply the change
	r.enter(ctx, PhaseMutating)
	if err := mutate(ctx, key, res.Key); err != nil {
		return r.fail(ctx, err)
	}

	// 4. Drop the cached secret and tell observers
	c.cache.Invalidate(fpr)
	c.broadcast(ctx, keyringID, fpr, name)
	return r.end(ctx, PhaseSucceeded, nil)
}

// withoutUnlock is the pipeline for mutations that need no password.
func (c *Controller) withoutUnlock(ctx context.Context, name, keyringID string, fpr models.Fingerprint,
	acquire func(ctx context.Context) (*models.KeyRecord, error), mutate func(ctx context.Context, key *models.KeyRecord) error) (Outcome, error) {
	ctx, r := c.begin(ctx, name, keyringID, fpr)

	r.enter(ctx, PhaseAcquiringKey)
	key, err := acquire(ctx)
	if err != nil {
		return r.fail(ctx, err)
	}

	r.enter(ctx, PhaseMutating)
	if err := mutate(ctx, key); err != nil {
		return r.fail(ctx, err)
	}

	c.cache.Invalidate(fpr)
	c.broadcast(ctx, keyringID, fpr, name)
	return r.end(ctx, PhaseSucceeded, nil)
}

func (c *Controller) privateKey(ctx context.Context, keyringID string, fpr models.Fingerprint) (*models.KeyRecord, error) {
	key, err := c.keys.GetKey(ctx, keyringID, fpr)
	if err != nil {
		return nil, err
	}
	if !key.HasPrivateKey() {
		return nil, errors.ErrInvalidRequest("key " + string(fpr) + " has no private key")
	}
	return key, nil
}

// record writes the audit event of a finished operation. Audit failures are
// logged and never change the outcome.
func (c *Controller) record(ctx context.Context, r *run, p Phase, opErr error) {
	if c.audit == nil {
		return
	}
	event := models.AuditEvent{
		EventID:     uuid.New().String(),
		KeyringID:   r.keyringID,
		Fingerprint: r.fpr,
		Operation:   r.name,
		Status:      p.String(),
		Source:      c.source,
		OccurredAt:  c.now(),
	}
	if opErr != nil {
		event.ErrorCode = string(constants.ErrCodeInternal)
		if kvErr, ok := errors.AsKVError(opErr); ok {
			event.ErrorCode = string(kvErr.Code())
		}
	}
	if err := c.audit.LogEvent(ctx, event); err != nil {
		c.logger.Warn(ctx, "failed to record audit event",
			logger.Err(err),
			logger.String("operation", r.name),
			logger.String("event_id", event.EventID))
	}
}

func (c *Controller) broadcast(ctx context.Context, keyringID string, fpr models.Fingerprint, operation string) {
	if c.notifier == nil {
		return
	}
	c.notifier.NotifyKeysChanged(ctx, models.KeysChangedEvent{
		EventID:     uuid.New().String(),
		KeyringID:   keyringID,
		Fingerprint: fpr,
		Operation:   operation,
		Source:      c.source,
		OccurredAt:  c.now(),
	})
}
