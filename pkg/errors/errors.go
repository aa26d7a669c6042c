// Package errors defines custom error types and error handling utilities for the keyvault service.
// Every error surfaced by the core carries a stable code from the key custody taxonomy
// and the HTTP status used when it crosses the API boundary.
package errors

import (
	stderrors "errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/turtacn/keyvault/pkg/constants"
)

// ================================================================================
// Base Error Interface
// ================================================================================

// KVError represents a structured error with additional metadata
type KVError interface {
	error

	// Code returns the taxonomy code
	Code() constants.ErrorCode

	// HTTPStatus returns the HTTP status code
	HTTPStatus() int

	// Description returns a human-readable description
	Description() string

	// Unwrap returns the underlying error for error chain support
	Unwrap() error

	// WithCause returns a copy with the cause attached
	WithCause(cause error) KVError

	// WithMetadata returns a copy with the metadata entry added
	WithMetadata(key string, value interface{}) KVError

	// Metadata returns all metadata
	Metadata() map[string]interface{}
}

// ================================================================================
// Base Error Implementation
// ================================================================================

type baseError struct {
	code        constants.ErrorCode
	httpStatus  int
	description string
	message     string
	cause       error
	metadata    map[string]interface{}
}

func (e *baseError) Error() string {
	msg := e.message
	if msg == "" {
		msg = e.description
	}
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *baseError) Code() constants.ErrorCode { return e.code }

func (e *baseError) HTTPStatus() int { return e.httpStatus }

func (e *baseError) Description() string { return e.description }

func (e *baseError) Unwrap() error { return e.cause }

// Is reports code equality so that errors.Is(err, ErrCancelled) matches any
// user_cancelled error regardless of message or metadata.
func (e *baseError) Is(target error) bool {
	t, ok := target.(*baseError)
	if !ok {
		return false
	}
	return t.code == e.code
}

func (e *baseError) WithCause(cause error) KVError {
	c := e.clone()
	c.cause = cause
	return c
}

func (e *baseError) WithMetadata(key string, value interface{}) KVError {
	c := e.clone()
	c.metadata[key] = value
	return c
}

func (e *baseError) Metadata() map[string]interface{} {
	return e.metadata
}

func (e *baseError) clone() *baseError {
	c := *e
	c.metadata = make(map[string]interface{}, len(e.metadata)+1)
	for k, v := range e.metadata {
		c.metadata[k] = v
	}
	return &c
}

// ================================================================================
// Error Constructor
// ================================================================================

// NewError creates a new KVError with the specified parameters
func NewError(code constants.ErrorCode, httpStatus int, description string, message string) KVError {
	return &baseError{
		code:        code,
		httpStatus:  httpStatus,
		description: description,
		message:     message,
		metadata:    make(map[string]interface{}),
	}
}

// ================================================================================
// Sentinels
// ================================================================================

// Sentinels are comparison targets for errors.Is. Use the constructors below
// to build errors that are returned to callers.
var (
	ErrCancelled          = NewError(constants.ErrCodeUserCancelled, http.StatusConflict, "user cancelled", "")
	ErrBadCredential      = NewError(constants.ErrCodeInvalidCredential, http.StatusForbidden, "invalid credential", "")
	ErrRemote             = NewError(constants.ErrCodeRemoteUnavailable, http.StatusBadGateway, "remote unavailable", "")
	ErrInvariant          = NewError(constants.ErrCodeInvariantViolation, http.StatusUnprocessableEntity, "invariant violation", "")
	ErrStorage            = NewError(constants.ErrCodeStorageFailure, http.StatusInternalServerError, "storage failure", "")
	ErrNotFound           = NewError(constants.ErrCodeNotFound, http.StatusNotFound, "not found", "")
	ErrInvalidRequestCode = NewError(constants.ErrCodeInvalidRequest, http.StatusBadRequest, "invalid request", "")
)

// ================================================================================
// Predefined Error Constructors
// ================================================================================

// ErrUserCancelled creates a user_cancelled error
func ErrUserCancelled() KVError {
	return NewError(
		constants.ErrCodeUserCancelled,
		http.StatusConflict,
		"The user dismissed the password prompt.",
		"unlock cancelled by user",
	)
}

// ErrInvalidCredential creates an invalid_credential error for the given key
func ErrInvalidCredential(fingerprint string) KVError {
	return NewError(
		constants.ErrCodeInvalidCredential,
		http.StatusForbidden,
		"The supplied password does not decrypt the private key.",
		"wrong password",
	).WithMetadata("fingerprint", fingerprint)
}

// ErrRemoteUnavailable creates a remote_unavailable error for a key server operation
func ErrRemoteUnavailable(operation string, cause error) KVError {
	return NewError(
		constants.ErrCodeRemoteUnavailable,
		http.StatusBadGateway,
		"The key server is unreachable or rejected the request.",
		fmt.Sprintf("key server %s failed", operation),
	).WithCause(cause).WithMetadata("operation", operation)
}

// ErrInvariantViolation creates an invariant_violation error
func ErrInvariantViolation(message string) KVError {
	return NewError(
		constants.ErrCodeInvariantViolation,
		http.StatusUnprocessableEntity,
		"The operation would break a keyring invariant.",
		message,
	)
}

// ErrStorageFailure creates a storage_failure error
func ErrStorageFailure(operation string, cause error) KVError {
	return NewError(
		constants.ErrCodeStorageFailure,
		http.StatusInternalServerError,
		"The keyring storage failed to complete the operation.",
		fmt.Sprintf("storage %s failed", operation),
	).WithCause(cause).WithMetadata("operation", operation)
}

// ErrKeyNotFound creates a not_found error for a key
func ErrKeyNotFound(fingerprint string) KVError {
	return NewError(
		constants.ErrCodeNotFound,
		http.StatusNotFound,
		"The requested key does not exist in the keyring.",
		fmt.Sprintf("key %s not found", fingerprint),
	).WithMetadata("fingerprint", fingerprint)
}

// ErrKeyringNotFound creates a not_found error for a keyring
func ErrKeyringNotFound(keyringID string) KVError {
	return NewError(
		constants.ErrCodeNotFound,
		http.StatusNotFound,
		"The requested keyring does not exist.",
		fmt.Sprintf("keyring %s not found", keyringID),
	).WithMetadata("keyring_id", keyringID)
}

// ErrUserNotFound creates a not_found error for a user id on a key
func ErrUserNotFound(fingerprint string, userID string) KVError {
	return NewError(
		constants.ErrCodeNotFound,
		http.StatusNotFound,
		"The requested user id does not exist on the key.",
		fmt.Sprintf("user %s not found on key %s", userID, fingerprint),
	).WithMetadata("fingerprint", fingerprint)
}

// ErrPromptNotFound creates a not_found error for a password prompt that is not open
func ErrPromptNotFound(promptID string) KVError {
	return NewError(
		constants.ErrCodeNotFound,
		http.StatusNotFound,
		"No password prompt with this id is waiting for an answer.",
		fmt.Sprintf("prompt %s not found", promptID),
	).WithMetadata("prompt_id", promptID)
}

// ErrRateLimited creates a rate_limited error
func ErrRateLimited(retryAfter time.Duration) KVError {
	return NewError(
		constants.ErrCodeRateLimited,
		http.StatusTooManyRequests,
		"Too many password attempts. Wait before trying again.",
		"rate limit exceeded",
	).WithMetadata("retry_after_seconds", int(math.Ceil(retryAfter.Seconds())))
}

// ErrDuplicateRequest creates a duplicate_request error for a reused Idempotency-Key
func ErrDuplicateRequest(key string) KVError {
	return NewError(
		constants.ErrCodeDuplicateRequest,
		http.StatusConflict,
		"This request has already been processed.",
		"idempotency key already used",
	).WithMetadata("idempotency_key", key)
}

// ErrInvalidRequest creates an invalid_request error
func ErrInvalidRequest(message string) KVError {
	return NewError(
		constants.ErrCodeInvalidRequest,
		http.StatusBadRequest,
		"The request is missing a required parameter or includes an invalid parameter value.",
		message,
	)
}

// ErrInternal creates an internal_error error
func ErrInternal(message string) KVError {
	return NewError(
		constants.ErrCodeInternal,
		http.StatusInternalServerError,
		"The service encountered an unexpected condition.",
		message,
	)
}

// ================================================================================
// Helpers
// ================================================================================

// IsKVError reports whether err is or wraps a KVError
func IsKVError(err error) bool {
	_, ok := AsKVError(err)
	return ok
}

// AsKVError finds the first KVError in err's chain
func AsKVError(err error) (KVError, bool) {
	var kvErr KVError
	if stderrors.As(err, &kvErr) {
		return kvErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains a KVError with the given code
func HasCode(err error, code constants.ErrorCode) bool {
	kvErr, ok := AsKVError(err)
	return ok && kvErr.Code() == code
}

// WrapError wraps an error with a code; KVErrors already in the chain are returned unchanged
func WrapError(err error, code constants.ErrorCode, message string) KVError {
	if err == nil {
		return nil
	}
	if kvErr, ok := AsKVError(err); ok {
		return kvErr
	}
	return NewError(code, http.StatusInternalServerError, message, message).WithCause(err)
}

//Personal.AI order the ending
