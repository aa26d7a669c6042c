package repository

import (
	"context"

	"github.com/turtacn/keyvault/internal/domain/models"
)

// SyncIntentRepository stores whether the user wants a key published on the key server.
type SyncIntentRepository interface {
	// Get returns the stored intent; found is false when no record exists.
	Get(ctx context.Context, fpr models.Fingerprint) (intent bool, found bool, err error)

	Set(ctx context.Context, fpr models.Fingerprint, intent bool) error

	Delete(ctx context.Context, fpr models.Fingerprint) error
}

// ActiveKeyringStore persists the keyring the UI currently works on.
type ActiveKeyringStore interface {
	// GetActive returns the main keyring id when nothing was set.
	GetActive(ctx context.Context) (string, error)

	SetActive(ctx context.Context, keyringID string) error
}
