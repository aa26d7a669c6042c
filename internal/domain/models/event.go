package models

import "time"

// KeysChangedEvent tells observers to re-fetch keyring state. It carries no
// authoritative key data.
type KeysChangedEvent struct {
	EventID     string      `json:"event_id"`
	KeyringID   string      `json:"keyring_id"`
	Fingerprint Fingerprint `json:"fingerprint,omitempty"`
	Operation   string      `json:"operation"`
	// Source identifies the process that emitted the event.
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}
