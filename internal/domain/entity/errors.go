package entity

import "errors"

// ErrMissingType indicates a create request without an entity type.
var ErrMissingType = errors.New("entity_type is required")

// ErrBadDirection indicates an unknown sync direction.
var ErrBadDirection = errors.New("invalid sync direction")
