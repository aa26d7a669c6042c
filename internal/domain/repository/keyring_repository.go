package repository

import (
	"context"

	"github.com/turtacn/keyvault/internal/domain/models"
)

// KeyringStore persists keyrings and their keys.
// Implementations translate driver errors into errors.ErrStorageFailure and
// missing rows into errors.ErrKeyNotFound / errors.ErrKeyringNotFound.
type KeyringStore interface {
	// GetKey loads a key with its users.
	GetKey(ctx context.Context, keyringID string, fpr models.Fingerprint) (*models.KeyRecord, error)

	// ListKeys returns every key of the keyring ordered by fingerprint.
	ListKeys(ctx context.Context, keyringID string) ([]*models.KeyRecord, error)

	// SaveKey inserts a key or merges it into the stored record. Stored private
	// material, revocation state and users absent from key are kept.
	SaveKey(ctx context.Context, key *models.KeyRecord) error

	// RemoveKey deletes a key. keyType must match the stored key's type.
	RemoveKey(ctx context.Context, keyringID string, fpr models.Fingerprint, keyType models.KeyType) error

	// AddUser stores a new user id together with the re-signed material.
	AddUser(ctx context.Context, keyringID string, fpr models.Fingerprint, user *models.KeyUser, material *models.KeyMaterial) error

	// RemoveUser deletes a user id and replaces the public material.
	RemoveUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string, armoredPublic string) error

	// RevokeUser flags a user id as revoked and stores the re-signed material.
	RevokeUser(ctx context.Context, keyringID string, fpr models.Fingerprint, userID string, material *models.KeyMaterial) error

	// RevokeKey flags the key as revoked at material.RevokedAt and stores the re-signed material.
	RevokeKey(ctx context.Context, keyringID string, fpr models.Fingerprint, material *models.KeyMaterial) error

	// SetExpiry replaces the material and the expiry of the key.
	SetExpiry(ctx context.Context, keyringID string, fpr models.Fingerprint, material *models.KeyMaterial) error

	// SetPassword replaces the private material with material protected by a new password.
	SetPassword(ctx context.Context, keyringID string, fpr models.Fingerprint, material *models.KeyMaterial) error

	CreateKeyring(ctx context.Context, keyringID string) (*models.Keyring, error)
	GetKeyring(ctx context.Context, keyringID string) (*models.Keyring, error)
	ListKeyrings(ctx context.Context) ([]*models.Keyring, error)
	SetDefaultKey(ctx context.Context, keyringID string, fpr models.Fingerprint) error

	// DeleteKeyring removes the keyring and all of its keys.
	DeleteKeyring(ctx context.Context, keyringID string) error
}
