package entity

import "time"

// Change captures a single field written during a reconciliation attempt.
type Change struct {
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// Record is one immutable audit row describing a reconciliation attempt.
// Identity fields are snapshots of the entity at attempt time; Direction is
// the path actually taken, which for bidirectional entities may differ from
// the entity's nominal direction.
type Record struct {
	ID         string            `json:"id"`
	EntityID   string            `json:"entity_id"`
	EntityType string            `json:"entity_type"`
	ExternalID string            `json:"external_id,omitempty"`
	InternalID string            `json:"internal_id,omitempty"`
	Direction  Path              `json:"direction,omitempty"`
	SyncTime   time.Time         `json:"sync_time"`
	Status     Status            `json:"status"`
	SyncError  string            `json:"sync_error,omitempty"`
	Changes    map[string]Change `json:"changes,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Diff returns the field-level changes between two snapshots of the same
// entity. Only fields the engine owns are compared; payload changes are
// reported as opaque before/after strings.
func Diff(before, after *Entity) map[string]Change {
	changes := make(map[string]Change)
	if before.ExternalID != after.ExternalID {
		changes["external_id"] = Change{From: before.ExternalID, To: after.ExternalID}
	}
	if before.InternalID != after.InternalID {
		changes["internal_id"] = Change{From: before.InternalID, To: after.InternalID}
	}
	if string(before.Payload) != string(after.Payload) {
		changes["payload"] = Change{From: string(before.Payload), To: string(after.Payload)}
	}
	if len(changes) == 0 {
		return nil
	}
	return changes
}
