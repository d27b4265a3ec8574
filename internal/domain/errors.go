// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the two sides of an integration hold diverged state
// that the active policy refused to overwrite. The worker maps it to the
// conflict terminal status rather than failed.
var ErrConflict = errors.New("conflict: both sides modified")
