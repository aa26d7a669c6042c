package models

import (
	"strings"
	"time"
)

// Fingerprint is the canonical upper-case hex fingerprint of an OpenPGP primary key.
// It is the primary key across every key-indexed map and table.
type Fingerprint string

// NormalizeFingerprint strips whitespace and a 0x prefix and upper-cases the rest.
func NormalizeFingerprint(s string) Fingerprint {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.ReplaceAll(s, " ", "")
	return Fingerprint(strings.ToUpper(s))
}

func (f Fingerprint) String() string { return string(f) }

// KeyID returns the long (16 hex digit) key id derived from a v4 fingerprint.
func (f Fingerprint) KeyID() string {
	if len(f) < 16 {
		return string(f)
	}
	return string(f[len(f)-16:])
}

// KeyType selects which part of a key an operation addresses.
type KeyType string

const (
	KeyTypePublic  KeyType = "public"
	KeyTypePrivate KeyType = "private"
)

// KeyStatus is the validity of a key as shown to the user.
type KeyStatus int

const (
	KeyStatusInvalid KeyStatus = 0
	KeyStatusExpired KeyStatus = 1
	KeyStatusRevoked KeyStatus = 2
	KeyStatusValid   KeyStatus = 3
)

func (s KeyStatus) String() string {
	switch s {
	case KeyStatusValid:
		return "valid"
	case KeyStatusRevoked:
		return "revoked"
	case KeyStatusExpired:
		return "expired"
	default:
		return "invalid"
	}
}

// KeyRecord is a persisted keyring entry.
// KeyRecord 是持久化的密钥环条目。
type KeyRecord struct {
	// KeyringID and Fingerprint form the composite primary key.
	KeyringID   string      `gorm:"primaryKey;size:255" json:"keyring_id"`
	Fingerprint Fingerprint `gorm:"primaryKey;size:64" json:"fingerprint"`
	KeyID       string      `gorm:"size:16;index" json:"key_id"`
	Algorithm   string      `gorm:"size:32" json:"algorithm"`
	BitLength   int         `json:"bit_length"`
	// ArmoredPublic holds the transferable public key.
	ArmoredPublic string `gorm:"type:text" json:"-"`
	// ArmoredPrivate holds the password-protected private material, empty for public keys.
	ArmoredPrivate string     `gorm:"type:text" json:"-"`
	Revoked        bool       `json:"revoked"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	KeyCreatedAt   time.Time  `json:"key_created_at"`
	Users          []KeyUser  `gorm:"foreignKey:KeyringID,Fingerprint;references:KeyringID,Fingerprint;constraint:OnDelete:CASCADE" json:"users"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// HasPrivateKey reports whether the record carries private material.
func (k *KeyRecord) HasPrivateKey() bool {
	return k != nil && k.ArmoredPrivate != ""
}

// Type returns private for key pairs and public otherwise.
func (k *KeyRecord) Type() KeyType {
	if k.HasPrivateKey() {
		return KeyTypePrivate
	}
	return KeyTypePublic
}

// Status derives the validity of the key at now.
func (k *KeyRecord) Status(now time.Time) KeyStatus {
	switch {
	case k == nil || k.ArmoredPublic == "":
		return KeyStatusInvalid
	case k.Revoked:
		return KeyStatusRevoked
	case k.ExpiresAt != nil && !now.Before(*k.ExpiresAt):
		return KeyStatusExpired
	default:
		return KeyStatusValid
	}
}

// PrimaryUser returns the user flagged primary, or the first user.
func (k *KeyRecord) PrimaryUser() *KeyUser {
	if k == nil || len(k.Users) == 0 {
		return nil
	}
	for i := range k.Users {
		if k.Users[i].Primary {
			return &k.Users[i]
		}
	}
	return &k.Users[0]
}

// FindUser returns the user with the given user id string.
func (k *KeyRecord) FindUser(userID string) *KeyUser {
	for i := range k.Users {
		if k.Users[i].UserID == userID {
			return &k.Users[i]
		}
	}
	return nil
}

// KeyUser is one user id bound to a key.
type KeyUser struct {
	ID          uint        `gorm:"primaryKey;autoIncrement" json:"-"`
	KeyringID   string      `gorm:"size:255;index:idx_key_user" json:"-"`
	Fingerprint Fingerprint `gorm:"size:64;index:idx_key_user" json:"-"`
	// UserID is the full OpenPGP user id, "Name <email>".
	UserID    string    `gorm:"size:512" json:"user_id"`
	Name      string    `gorm:"size:255" json:"name"`
	Email     string    `gorm:"size:255" json:"email"`
	Primary   bool      `json:"primary"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// UserID is the input for adding a user id to a key.
type UserID struct {
	Name    string `json:"name" validate:"required,max=255"`
	Email   string `json:"email" validate:"required,email"`
	Comment string `json:"comment,omitempty" validate:"max=255"`
}

// String formats the user id the way OpenPGP stores it: "Name (Comment) <email>".
func (u UserID) String() string {
	var b strings.Builder
	b.WriteString(u.Name)
	if u.Comment != "" {
		b.WriteString(" (")
		b.WriteString(u.Comment)
		b.WriteString(")")
	}
	if u.Email != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		b.WriteString("<")
		b.WriteString(u.Email)
		b.WriteString(">")
	}
	return b.String()
}

// KeyMaterial is re-serialized key material produced by an edit.
// RevokedAt is set once the material carries a key revocation.
type KeyMaterial struct {
	ArmoredPublic  string
	ArmoredPrivate string
	ExpiresAt      *time.Time
	RevokedAt      *time.Time
}

// GenerateParams describes a key to generate.
type GenerateParams struct {
	Users     []UserID   `json:"users" validate:"required,min=1,dive"`
	Password  []byte     `json:"-"`
	BitLength int        `json:"bit_length" validate:"omitempty,oneof=1024 2048 3072 4096"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// UnlockedKey is a decrypted private key handle. Implementations hold secret
// material and must release it in Wipe. Whoever holds a handle owns it;
// Clone hands out an independent copy and fails once the handle is wiped.
type UnlockedKey interface {
	Fingerprint() Fingerprint
	Clone() (UnlockedKey, error)
	Wipe()
}
