// Package syncstate reconciles the user's key server publication intent with
// what the key server actually serves.
package syncstate

import (
	"context"
	"fmt"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/repository"
	"github.com/turtacn/keyvault/internal/domain/service"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

// Key server operations named in results and errors.
const (
	OperationUpload = "upload"
	OperationRemove = "remove"
	OperationLookup = "lookup"
)

// RemovalIdentityResolver picks the identity a removal request is filed under.
type RemovalIdentityResolver func(key *models.KeyRecord) (string, error)

// NewRemovalIdentityResolver returns the resolver for mode. The key server
// only honours removal by email at the moment, which is why email is the default.
func NewRemovalIdentityResolver(mode constants.RemovalIdentity, inspector service.KeyInspector) (RemovalIdentityResolver, error) {
	switch mode {
	case "", constants.RemovalByEmail:
		return func(key *models.KeyRecord) (string, error) {
			return inspector.PrimaryUserEmail(key)
		}, nil
	case constants.RemovalByKeyID:
		return func(key *models.KeyRecord) (string, error) {
			return "0x" + key.Fingerprint.KeyID(), nil
		}, nil
	default:
		return nil, errors.ErrInvalidRequest(fmt.Sprintf("unknown removal identity %q", mode))
	}
}

// Reconciler derives SyncStatus values and applies sync changes.
type Reconciler struct {
	intents   repository.SyncIntentRepository
	keys      repository.KeyringStore
	inspector service.KeyInspector
	server    service.KeyServer
	resolve   RemovalIdentityResolver
	logger    logger.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(
	intents repository.SyncIntentRepository,
	keys repository.KeyringStore,
	inspector service.KeyInspector,
	server service.KeyServer,
	resolve RemovalIdentityResolver,
	log logger.Logger,
) *Reconciler {
	return &Reconciler{
		intents:   intents,
		keys:      keys,
		inspector: inspector,
		server:    server,
		resolve:   resolve,
		logger:    log.WithComponent("SyncStateReconciler"),
	}
}

// GetStatus reads the local intent and the remote state and combines them.
// The first query for a key without an intent record seeds one; no other
// path of GetStatus writes.
func (r *Reconciler) GetStatus(ctx context.Context, keyringID string, fpr models.Fingerprint) (models.SyncStatus, error) {
	key, err := r.keys.GetKey(ctx, keyringID, fpr)
	if err != nil {
		return models.SyncStatusDesynced, err
	}

	intent, found, err := r.intents.Get(ctx, fpr)
	if err != nil {
		return models.SyncStatusDesynced, err
	}

	exists, err := r.server.Exists(ctx, fpr)
	if err != nil {
		return models.SyncStatusDesynced, remoteError(OperationLookup, err)
	}

	if !found {
		seed, status := models.SeedSyncStatus(exists, key.HasPrivateKey())
		if err := r.intents.Set(ctx, fpr, seed); err != nil {
			return models.SyncStatusDesynced, err
		}
		r.logger.Info(ctx, "sync intent seeded",
			logger.String("fingerprint", utils.MaskFingerprint(string(fpr))),
			logger.Bool("intent", seed),
			logger.Bool("remote_exists", exists))
		return status, nil
	}

	return models.DeriveSyncStatus(intent, exists), nil
}

// SetStatus uploads the public key (wantSync) or files a removal request, and
// records wantSync as the new intent. The intent is recorded even when the
// key server call fails, in which case a remote_unavailable error is returned;
// the next GetStatus then reports the pending state.
func (r *Reconciler) SetStatus(ctx context.Context, keyringID string, fpr models.Fingerprint, wantSync bool) (*models.KeyServerResult, error) {
	key, err := r.keys.GetKey(ctx, keyringID, fpr)
	if err != nil {
		return nil, err
	}

	op := OperationRemove
	var remoteErr error
	if wantSync {
		op = OperationUpload
		armored, err := r.inspector.ArmorPublic(key)
		if err != nil {
			return nil, err
		}
		remoteErr = r.server.Upload(ctx, armored)
	} else {
		identity, err := r.resolve(key)
		if err != nil {
			return nil, err
		}
		remoteErr = r.server.Remove(ctx, identity)
	}

	if err := r.intents.Set(ctx, fpr, wantSync); err != nil {
		if remoteErr != nil {
			return nil, remoteError(op, remoteErr)
		}
		return nil, err
	}

	if remoteErr != nil {
		r.logger.Warn(ctx, "key server request failed, intent recorded",
			logger.String("fingerprint", utils.MaskFingerprint(string(fpr))),
			logger.String("operation", op),
			logger.Err(remoteErr))
		return nil, remoteError(op, remoteErr)
	}

	r.logger.Info(ctx, "key server sync changed",
		logger.String("fingerprint", utils.MaskFingerprint(string(fpr))),
		logger.String("operation", op))
	return &models.KeyServerResult{Operation: op, Sync: wantSync}, nil
}

func remoteError(op string, err error) error {
	if errors.HasCode(err, constants.ErrCodeRemoteUnavailable) {
		return err
	}
	return errors.ErrRemoteUnavailable(op, err)
}
