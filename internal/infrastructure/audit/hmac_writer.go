package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/turtacn/keyvault/internal/domain/models"
)

// SignAuditEvent calculates the HMAC-SHA256 signature of an audit event. The
// Signature field itself is excluded.
func SignAuditEvent(event models.AuditEvent, secretKey string) (string, error) {
	event.ID = 0
	event.Signature = ""
	// Store round trips drop the monotonic clock and may change the location.
	event.OccurredAt = event.OccurredAt.UTC().Round(0)

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	h := hmac.New(sha256.New, []byte(secretKey))
	h.Write(eventBytes)
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}

// VerifyAuditEvent reports whether event carries a valid signature for secretKey.
func VerifyAuditEvent(event models.AuditEvent, secretKey string) bool {
	if event.Signature == "" {
		return false
	}
	want, err := SignAuditEvent(event, secretKey)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(want), []byte(event.Signature))
}
