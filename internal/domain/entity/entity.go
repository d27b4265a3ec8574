// Package entity defines the synchronization domain model: entities tracked
// on both sides of an integration boundary, the audit records of
// reconciliation attempts, and the direction resolution policy.
package entity

import (
	"encoding/json"
	"time"
)

// Direction declares which side of the integration is the source of truth
// for an entity. It is fixed at creation.
type Direction string

const (
	DirectionToExternal    Direction = "to_external"
	DirectionFromExternal  Direction = "from_external"
	DirectionBidirectional Direction = "bidirectional"
)

// Valid reports whether d is one of the known directions.
func (d Direction) Valid() bool {
	switch d {
	case DirectionToExternal, DirectionFromExternal, DirectionBidirectional:
		return true
	}
	return false
}

// Status represents where an entity is in the reconciliation state machine.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusConflict   Status = "conflict"
)

// Terminal reports whether s is a terminal outcome of a reconciliation attempt.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusConflict:
		return true
	}
	return false
}

// Entity is one synchronizable object. The engine owns the identity, status
// and versioning fields; the Payload is opaque type-specific state owned by
// the registered reconciler for EntityType.
type Entity struct {
	ID           string            `json:"id"`
	EntityType   string            `json:"entity_type"`
	ExternalID   string            `json:"external_id,omitempty"`
	InternalID   string            `json:"internal_id,omitempty"`
	Direction    Direction         `json:"direction"`
	Status       Status            `json:"status"`
	LastSyncTime *time.Time        `json:"last_sync_time,omitempty"`
	SyncError    string            `json:"sync_error,omitempty"`
	Version      int               `json:"version"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Payload      json.RawMessage   `json:"payload,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// HasIdentity reports whether the entity is addressable on at least one side.
func (e *Entity) HasIdentity() bool {
	return e.ExternalID != "" || e.InternalID != ""
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	c := *e
	if e.LastSyncTime != nil {
		t := *e.LastSyncTime
		c.LastSyncTime = &t
	}
	if e.Metadata != nil {
		c.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			c.Metadata[k] = v
		}
	}
	if e.Payload != nil {
		c.Payload = make(json.RawMessage, len(e.Payload))
		copy(c.Payload, e.Payload)
	}
	return &c
}

// CreateRequest holds the fields needed to register a new entity.
type CreateRequest struct {
	EntityType string            `json:"entity_type"`
	ExternalID string            `json:"external_id,omitempty"`
	InternalID string            `json:"internal_id,omitempty"`
	Direction  Direction         `json:"direction"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

// Validate checks that the request can produce a usable entity.
func (r *CreateRequest) Validate() error {
	if r.EntityType == "" {
		return ErrMissingType
	}
	if !r.Direction.Valid() {
		return ErrBadDirection
	}
	return nil
}
