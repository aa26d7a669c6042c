package redis

import (
	"context"
	stderrors "errors"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/keyvault/internal/domain/repository"
	"github.com/turtacn/keyvault/pkg/constants"
	"github.com/turtacn/keyvault/pkg/errors"
)

var _ repository.ActiveKeyringStore = (*ActiveKeyringStore)(nil)

// ActiveKeyringStore keeps the active keyring id under <prefix>:active_keyring.
type ActiveKeyringStore struct {
	client redis.UniversalClient
	key    string
}

// NewActiveKeyringStore creates an ActiveKeyringStore.
func NewActiveKeyringStore(client redis.UniversalClient, prefix string) *ActiveKeyringStore {
	return &ActiveKeyringStore{client: client, key: prefixed(prefix, "active_keyring")}
}

// GetActive returns the main keyring id when nothing was set.
func (s *ActiveKeyringStore) GetActive(ctx context.Context) (string, error) {
	id, err := s.client.Get(ctx, s.key).Result()
	if stderrors.Is(err, redis.Nil) || (err == nil && id == "") {
		return constants.MainKeyringID, nil
	}
	if err != nil {
		return "", errors.ErrStorageFailure("get active keyring", err)
	}
	return id, nil
}

// SetActive stores keyringID as the active keyring.
func (s *ActiveKeyringStore) SetActive(ctx context.Context, keyringID string) error {
	if err := s.client.Set(ctx, s.key, keyringID, 0).Err(); err != nil {
		return errors.ErrStorageFailure("set active keyring", err)
	}
	return nil
}
