package entity

import (
	"errors"
	"fmt"
	"time"
)

// Path is a concrete reconciliation direction chosen for one attempt.
type Path string

const (
	PathPushToExternal   Path = "push_to_external"
	PathPullFromExternal Path = "pull_from_external"
)

// ErrUnresolvable is returned when an entity has no identity on either side,
// so no reconciliation path can be chosen.
var ErrUnresolvable = errors.New("unresolvable entity: no identity on either side")

// Resolver decides which reconciliation path to take for an entity.
// Implementations must be pure: no I/O, no mutation of the entity.
type Resolver func(e *Entity) (Path, error)

// Resolve is the baseline resolver. ToExternal and FromExternal entities
// always take their nominal path. Bidirectional entities take the path toward
// the side that is missing the object; when both sides hold the object, the
// external system is treated as authoritative and the entity is pulled.
//
// The external-wins tie-break means a conflicting internal edit is
// overwritten on pull. Deployments that cannot accept that should install
// LastWriterWins (or their own Resolver) instead.
func Resolve(e *Entity) (Path, error) {
	if !e.HasIdentity() {
		return "", ErrUnresolvable
	}

	switch e.Direction {
	case DirectionToExternal:
		return PathPushToExternal, nil
	case DirectionFromExternal:
		return PathPullFromExternal, nil
	case DirectionBidirectional:
		switch {
		case e.ExternalID != "" && e.InternalID == "":
			return PathPullFromExternal, nil
		case e.InternalID != "" && e.ExternalID == "":
			return PathPushToExternal, nil
		default:
			return PathPullFromExternal, nil
		}
	default:
		return "", fmt.Errorf("unknown direction %q", e.Direction)
	}
}

// Metadata keys read by LastWriterWins. Ingestion adapters are responsible
// for keeping them current (RFC 3339).
const (
	MetaExternalModified = "external_modified_at"
	MetaInternalModified = "internal_modified_at"
)

// LastWriterWins returns a resolver that breaks bidirectional ties by
// comparing modification timestamps carried in entity metadata. The side
// modified most recently wins. When either timestamp is missing or
// unparseable it falls back to the baseline external-wins rule.
func LastWriterWins() Resolver {
	return func(e *Entity) (Path, error) {
		path, err := Resolve(e)
		if err != nil {
			return "", err
		}
		if e.Direction != DirectionBidirectional || e.ExternalID == "" || e.InternalID == "" {
			return path, nil
		}

		ext, extErr := time.Parse(time.RFC3339, e.Metadata[MetaExternalModified])
		internal, intErr := time.Parse(time.RFC3339, e.Metadata[MetaInternalModified])
		if extErr != nil || intErr != nil {
			return path, nil
		}
		if internal.After(ext) {
			return PathPushToExternal, nil
		}
		return PathPullFromExternal, nil
	}
}
