package redis

import (
	"context"
	stderrors "errors"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/keyvault/internal/domain/models"
	"github.com/turtacn/keyvault/internal/domain/repository"
	"github.com/turtacn/keyvault/pkg/errors"
	"github.com/turtacn/keyvault/pkg/logger"
	"github.com/turtacn/keyvault/pkg/utils"
)

var _ repository.SyncIntentRepository = (*SyncIntentStore)(nil)

// SyncIntentStore keeps one "1"/"0" string per fingerprint under
// <prefix>:sync:<fingerprint>. Intents never expire.
type SyncIntentStore struct {
	client redis.UniversalClient
	prefix string
	logger logger.Logger
}

// NewSyncIntentStore creates a SyncIntentStore.
func NewSyncIntentStore(client redis.UniversalClient, prefix string, log logger.Logger) *SyncIntentStore {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &SyncIntentStore{client: client, prefix: prefix, logger: log.WithComponent("SyncIntentStore")}
}

func (s *SyncIntentStore) key(fpr models.Fingerprint) string {
	return prefixed(s.prefix, "sync", string(fpr))
}

// Get returns the stored intent; found is false when no record exists.
func (s *SyncIntentStore) Get(ctx context.Context, fpr models.Fingerprint) (bool, bool, error) {
	val, err := s.client.Get(ctx, s.key(fpr)).Result()
	if stderrors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		s.logger.Error(ctx, "Failed to read sync intent", err, logger.String("fingerprint", utils.MaskFingerprint(string(fpr))))
		return false, false, errors.ErrStorageFailure("get sync intent", err)
	}
	return val == "1", true, nil
}

// Set stores the intent.
func (s *SyncIntentStore) Set(ctx context.Context, fpr models.Fingerprint, intent bool) error {
	val := "0"
	if intent {
		val = "1"
	}
	if err := s.client.Set(ctx, s.key(fpr), val, 0).Err(); err != nil {
		s.logger.Error(ctx, "Failed to write sync intent", err, logger.String("fingerprint", utils.MaskFingerprint(string(fpr))))
		return errors.ErrStorageFailure("set sync intent", err)
	}
	return nil
}

// Delete removes the intent record.
func (s *SyncIntentStore) Delete(ctx context.Context, fpr models.Fingerprint) error {
	if err := s.client.Del(ctx, s.key(fpr)).Err(); err != nil {
		return errors.ErrStorageFailure("delete sync intent", err)
	}
	return nil
}
