package ports

import "errors"

// ErrNotFound is returned by stores when no row matches.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a conditional update lost against a
// concurrent writer (e.g. marking progress synced after a newer edit).
var ErrConflict = errors.New("conflict")
