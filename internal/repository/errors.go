// Package repository defines the persistence layer of the development
// backend and the sentinel errors handlers translate into HTTP statuses.
package repository

import "errors"

// ErrNotFound is returned when a row does not exist.  Handlers translate it
// into 404 (or 401 for credentials and refresh tokens).
var ErrNotFound = errors.New("not found")

// ErrAlreadyRegistered is returned when a student already has a present
// record for a session, or a credential id was already consumed.  Handlers
// translate it into 409.
var ErrAlreadyRegistered = errors.New("attendance already registered")
