package models

import (
	"time"

	"github.com/turtacn/keyvault/pkg/constants"
)

// UnlockRequest asks the coordinator for the decrypted private key of Key.
type UnlockRequest struct {
	ID        string
	KeyringID string
	Key       *KeyRecord
	Reason    constants.ReasonCode
	// Operation names the lifecycle operation that needs the key.
	Operation string
}

// UnlockResult is the outcome of an unlock request. Exactly one of Key or
// Cancelled is set on a nil error.
type UnlockResult struct {
	Key       UnlockedKey
	Cancelled bool
	// FromCache is true when no prompt was shown.
	FromCache bool
}

// PromptRequest is handed to the interactive prompt surface.
type PromptRequest struct {
	ID          string               `json:"id"`
	KeyringID   string               `json:"keyring_id"`
	Fingerprint Fingerprint          `json:"fingerprint"`
	UserID      string               `json:"user_id,omitempty"`
	Reason      constants.ReasonCode `json:"reason"`
	Operation   string               `json:"operation"`
	// Attempt starts at 1 and grows after each wrong password.
	Attempt   int       `json:"attempt"`
	LastError string    `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
