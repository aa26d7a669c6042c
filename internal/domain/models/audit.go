package models

import "time"

// AuditEvent records the terminal outcome of one key lifecycle operation.
// Signature is an HMAC over the other fields when an audit secret is configured.
// AuditEvent 记录一次密钥生命周期操作的最终结果。
type AuditEvent struct {
	ID          uint        `gorm:"primaryKey" json:"-"`
	EventID     string      `gorm:"size:36;uniqueIndex" json:"event_id"`
	KeyringID   string      `gorm:"size:255;index:idx_audit_keyring_time" json:"keyring_id"`
	Fingerprint Fingerprint `gorm:"size:64" json:"fingerprint,omitempty"`
	Operation   string      `gorm:"size:64" json:"operation"`
	Status      string      `gorm:"size:32" json:"status"`
	ErrorCode   string      `gorm:"size:64" json:"error_code,omitempty"`
	Source      string      `gorm:"size:128" json:"source"`
	OccurredAt  time.Time   `gorm:"index:idx_audit_keyring_time" json:"occurred_at"`
	Signature   string      `gorm:"size:64" json:"signature,omitempty"`
}

// TableName pins the table name.
func (AuditEvent) TableName() string { return "audit_events" }
