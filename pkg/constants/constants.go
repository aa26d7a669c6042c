// Package constants defines system-wide constants for the keyvault service.
// This package provides type-safe constant definitions used across all modules.
package constants

import "time"

// ================================================================================
// Error Code Constants
// ================================================================================

// ErrorCode is the machine-readable code carried by every structured error.
type ErrorCode string

const (
	// ErrCodeUserCancelled indicates the user dismissed a password prompt.
	ErrCodeUserCancelled ErrorCode = "user_cancelled"

	// ErrCodeInvalidCredential indicates a password failed to decrypt a key.
	ErrCodeInvalidCredential ErrorCode = "invalid_credential"

	// ErrCodeRemoteUnavailable indicates the key server could not be reached or rejected a request.
	ErrCodeRemoteUnavailable ErrorCode = "remote_unavailable"

	// ErrCodeInvariantViolation indicates a forbidden operation such as deleting the main keyring.
	ErrCodeInvariantViolation ErrorCode = "invariant_violation"

	// ErrCodeStorageFailure indicates the keyring or intent store failed.
	ErrCodeStorageFailure ErrorCode = "storage_failure"

	// ErrCodeNotFound indicates the key or keyring does not exist.
	ErrCodeNotFound ErrorCode = "not_found"

	// ErrCodeInvalidRequest indicates malformed input.
	ErrCodeInvalidRequest ErrorCode = "invalid_request"

	// ErrCodeRateLimited indicates too many password attempts from one client.
	ErrCodeRateLimited ErrorCode = "rate_limited"

	// ErrCodeDuplicateRequest indicates an Idempotency-Key that was already used.
	ErrCodeDuplicateRequest ErrorCode = "duplicate_request"

	// ErrCodeInternal indicates an unexpected condition.
	ErrCodeInternal ErrorCode = "internal_error"
)

// ================================================================================
// Keyring Constants
// ================================================================================

const (
	// MainKeyringID identifies the keyring that can never be deleted.
	MainKeyringID = "localhost|#|mvelo"

	// KeyringAttrDefaultKey is the keyring attribute naming the default signing key.
	KeyringAttrDefaultKey = "default_key"
)

// ================================================================================
// Password Dialog Reason Codes
// ================================================================================

// ReasonCode tells the prompt surface why a password is being requested.
type ReasonCode string

const (
	ReasonRevoke      ReasonCode = "PWD_DIALOG_REASON_REVOKE"
	ReasonRevokeUser  ReasonCode = "PWD_DIALOG_REASON_REVOKE_USER"
	ReasonAddUser     ReasonCode = "PWD_DIALOG_REASON_ADD_USER"
	ReasonSetExpiry   ReasonCode = "PWD_DIALOG_REASON_SET_EXDATE"
	ReasonSetPassword ReasonCode = "PWD_DIALOG_REASON_SET_PWD"
	ReasonDecrypt     ReasonCode = "PWD_DIALOG_REASON_DECRYPT"
	ReasonSign        ReasonCode = "PWD_DIALOG_REASON_SIGN"
)

// ================================================================================
// Key Server Constants
// ================================================================================

// RemovalIdentity selects which identity of a key is sent in a key server removal request.
type RemovalIdentity string

const (
	// RemovalByEmail removes using the primary user's email address.
	RemovalByEmail RemovalIdentity = "email"

	// RemovalByKeyID removes using the long key id.
	RemovalByKeyID RemovalIdentity = "key_id"
)

// ================================================================================
// Timing Defaults
// ================================================================================

const (
	// DefaultSecretTTL bounds how long a decrypted key stays cached.
	DefaultSecretTTL = 10 * time.Minute

	// DefaultJanitorInterval is how often expired cache entries are swept.
	DefaultJanitorInterval = 30 * time.Second

	// DefaultUnlockMaxAttempts is the number of password attempts per unlock request.
	DefaultUnlockMaxAttempts = 3

	// DefaultPromptTimeout bounds how long a pending prompt waits for an answer.
	DefaultPromptTimeout = 5 * time.Minute

	// DefaultKeyServerTimeout is the per-request HTTP timeout for the key server client.
	DefaultKeyServerTimeout = 15 * time.Second

	// DefaultPasswordAttempts is how many password submissions one client may make per window.
	DefaultPasswordAttempts = 10

	// DefaultPasswordWindow is the refill window for password submissions.
	DefaultPasswordWindow = time.Minute

	// DefaultIdempotencyTTL is how long an Idempotency-Key is remembered.
	DefaultIdempotencyTTL = 24 * time.Hour
)

// ================================================================================
// Log Level Constants
// ================================================================================

// LogLevel represents the logging verbosity level
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ================================================================================
// Context Keys
// ================================================================================

// ContextKey is the type for values stored in a request context.
type ContextKey string

const (
	// ContextKeyRequestID carries the per-request correlation id.
	ContextKeyRequestID ContextKey = "request_id"

	// ContextKeyKeyringID carries the keyring targeted by the request.
	ContextKeyKeyringID ContextKey = "keyring_id"

	// ContextKeyOperation carries the lifecycle operation name.
	ContextKeyOperation ContextKey = "operation"
)

// ================================================================================
// HTTP Header Constants
// ================================================================================

const (
	// HeaderRequestID is the request correlation header.
	HeaderRequestID = "X-Request-ID"

	// HeaderIdempotencyKey lets clients retry key creation safely.
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderRetryAfter tells a rate limited client when to retry.
	HeaderRetryAfter = "Retry-After"
)

//Personal.AI order the ending
