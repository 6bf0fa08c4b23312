package enums

import "fmt"

// SyncEventKind labels asynchronous cart persistence outcomes surfaced to the UI layer.
type SyncEventKind string

const (
	SyncEventHydrateFailed    SyncEventKind = "hydrate_failed"
	SyncEventPersistFailed    SyncEventKind = "persist_failed"
	SyncEventSeedFailed       SyncEventKind = "seed_failed"
	SyncEventAuthorityChanged SyncEventKind = "authority_changed"
)

var validSyncEventKinds = []SyncEventKind{
	SyncEventHydrateFailed,
	SyncEventPersistFailed,
	SyncEventSeedFailed,
	SyncEventAuthorityChanged,
}

// String implements fmt.Stringer.
func (s SyncEventKind) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SyncEventKind.
func (s SyncEventKind) IsValid() bool {
	for _, candidate := range validSyncEventKinds {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSyncEventKind converts raw input into a SyncEventKind.
func ParseSyncEventKind(value string) (SyncEventKind, error) {
	for _, candidate := range validSyncEventKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid sync event kind %q", value)
}
