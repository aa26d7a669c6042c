package dto

import (
	"time"

	"github.com/turtacn/keyvault/internal/domain/models"
)

// GenerateKeyRequest creates a new key pair in a keyring.
type GenerateKeyRequest struct {
	Users     []models.UserID `json:"users" validate:"required,min=1,dive"`
	Password  string          `json:"password" validate:"required"`
	BitLength int             `json:"bit_length,omitempty" validate:"omitempty,oneof=2048 3072 4096"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
}

// Params converts the request; the caller owns the returned password bytes.
func (r *GenerateKeyRequest) Params() models.GenerateParams {
	return models.GenerateParams{
		Users:     r.Users,
		Password:  []byte(r.Password),
		BitLength: r.BitLength,
		ExpiresAt: r.ExpiresAt,
	}
}

// ImportKeysRequest carries one armored block.
type ImportKeysRequest struct {
	Armored string `json:"armored" validate:"required"`
}

// AddUserRequest adds a user id to a key.
type AddUserRequest struct {
	User models.UserID `json:"user"`
}

// SetExpiryRequest changes the expiration date. A null expires_at removes it.
type SetExpiryRequest struct {
	ExpiresAt *time.Time `json:"expires_at"`
}

// SetPasswordRequest changes the key password.
type SetPasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

// ValidatePasswordRequest checks a candidate password.
type ValidatePasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// ValidatePasswordResponse reports whether the candidate unlocks the key.
type ValidatePasswordResponse struct {
	Valid bool `json:"valid"`
}

// SetSyncStatusRequest sets the key server intent.
type SetSyncStatusRequest struct {
	Sync *bool `json:"sync" validate:"required"`
}

// CreateKeyringRequest creates an empty keyring.
type CreateKeyringRequest struct {
	ID string `json:"id" validate:"required,max=255"`
}

// SetActiveKeyringRequest switches the active keyring.
type SetActiveKeyringRequest struct {
	KeyringID string `json:"keyring_id" validate:"required"`
}

// ActiveKeyringResponse names the active keyring.
type ActiveKeyringResponse struct {
	KeyringID string `json:"keyring_id"`
}

// SetDefaultKeyRequest marks a key as the keyring's default.
type SetDefaultKeyRequest struct {
	Fingerprint string `json:"fingerprint" validate:"required"`
}

// AnswerPromptRequest answers an open password prompt.
type AnswerPromptRequest struct {
	Password string `json:"password" validate:"required"`
}
