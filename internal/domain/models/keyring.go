package models

import "time"

// Keyring groups keys under an identity, e.g. one per mail provider.
type Keyring struct {
	ID         string    `gorm:"primaryKey;size:255" json:"id"`
	DefaultKey string    `gorm:"size:64" json:"default_key,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ArmoredExport selects what GetArmoredKeys returns.
type ArmoredExport string

const (
	ExportPublic  ArmoredExport = "pub"
	ExportPrivate ArmoredExport = "priv"
	ExportAll     ArmoredExport = "all"
)

// ArmoredKey is one exported key.
type ArmoredKey struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	ArmoredPub  string      `json:"armored_public,omitempty"`
	ArmoredPriv string      `json:"armored_private,omitempty"`
}

// KeyDetails is a key as shown to the user.
type KeyDetails struct {
	*KeyRecord
	Type    KeyType   `json:"type"`
	Status  KeyStatus `json:"status"`
	Default bool      `json:"default"`
}

// NewKeyDetails derives the user-facing view of key at now.
func NewKeyDetails(key *KeyRecord, defaultKey Fingerprint, now time.Time) *KeyDetails {
	return &KeyDetails{
		KeyRecord: key,
		Type:      key.Type(),
		Status:    key.Status(now),
		Default:   defaultKey != "" && key.Fingerprint == defaultKey,
	}
}
