package models

import "encoding/json"

// SyncStatus is the reconciled key server state of a key. It is a closed set
// of four values; sync is the local intent and confirmed reports that the
// server was last observed in the state the intent asks for.
type SyncStatus int

const (
	// SyncStatusDesynced {confirmed:true, sync:false}: not wanted and not on the server.
	SyncStatusDesynced SyncStatus = iota
	// SyncStatusSynced {confirmed:true, sync:true}: wanted and on the server.
	SyncStatusSynced
	// SyncStatusUploadPending {confirmed:false, sync:true}: wanted but not yet observed on the server.
	SyncStatusUploadPending
	// SyncStatusRemovalPending {confirmed:false, sync:false}: removal requested but still on the server.
	SyncStatusRemovalPending
)

// Confirmed reports that the observed server state matches the local intent.
func (s SyncStatus) Confirmed() bool {
	return s == SyncStatusSynced || s == SyncStatusDesynced
}

// Sync reports the local intent: whether the user wants the key published.
func (s SyncStatus) Sync() bool {
	return s == SyncStatusSynced || s == SyncStatusUploadPending
}

func (s SyncStatus) String() string {
	switch s {
	case SyncStatusSynced:
		return "synced"
	case SyncStatusUploadPending:
		return "upload_pending"
	case SyncStatusRemovalPending:
		return "removal_pending"
	default:
		return "desynced"
	}
}

// MarshalJSON renders the status as {"confirmed":..,"sync":..}.
func (s SyncStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Confirmed bool `json:"confirmed"`
		Sync      bool `json:"sync"`
	}{s.Confirmed(), s.Sync()})
}

// DeriveSyncStatus applies the reconciliation table for a present intent.
//
//	intent=true,  remote=true  -> Synced
//	intent=true,  remote=false -> UploadPending
//	intent=false, remote=true  -> RemovalPending
//	intent=false, remote=false -> Desynced
func DeriveSyncStatus(intent bool, remoteExists bool) SyncStatus {
	switch {
	case intent && remoteExists:
		return SyncStatusSynced
	case intent:
		return SyncStatusUploadPending
	case remoteExists:
		return SyncStatusRemovalPending
	default:
		return SyncStatusDesynced
	}
}

// SeedSyncStatus decides the intent written on the first query for a key
// without a record, and the status reported for that query. Only a published
// key the user owns is seeded as synced; everything else starts desynced.
func SeedSyncStatus(remoteExists bool, hasPrivateKey bool) (intent bool, status SyncStatus) {
	if remoteExists && hasPrivateKey {
		return true, SyncStatusSynced
	}
	return false, SyncStatusDesynced
}

// KeyServerResult is returned by SetStatus after the remote call.
type KeyServerResult struct {
	Operation string `json:"operation"`
	Sync      bool   `json:"sync"`
	Message   string `json:"message,omitempty"`
}
