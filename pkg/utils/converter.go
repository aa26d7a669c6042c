// Package utils provides small helpers shared by the keyvault packages.
// This file contains formatting and masking utilities.
package utils

import (
	"strings"
	"time"
)

// ================================================================================
// Data Masking
// ================================================================================

// MaskEmail masks email address (e.g., "test@example.com" -> "t**t@example.com")
func MaskEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***"
	}

	localPart := parts[0]
	domain := parts[1]

	if len(localPart) <= 2 {
		return strings.Repeat("*", len(localPart)) + "@" + domain
	}

	masked := string(localPart[0]) + strings.Repeat("*", len(localPart)-2) + string(localPart[len(localPart)-1])
	return masked + "@" + domain
}

// MaskFingerprint keeps the long key id of a fingerprint and masks the rest.
func MaskFingerprint(fpr string) string {
	if len(fpr) <= 16 {
		return fpr
	}
	return strings.Repeat("*", len(fpr)-16) + fpr[len(fpr)-16:]
}

// ================================================================================
// Naming
// ================================================================================

// ToSnakeCase converts a Go field name to snake_case for validation messages.
func ToSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			result.WriteRune('_')
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}

// ================================================================================
// Time
// ================================================================================

// ParseOptionalTime parses an RFC 3339 timestamp. An empty string yields nil.
func ParseOptionalTime(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

//Personal.AI order the ending
