// SPDX-License-Identifier: MIT

package store

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConstraint is returned when a write violates a schema constraint.
	ErrConstraint = errors.New("store: constraint violation")

	// ErrUnavailable is returned when the database cannot be opened or
	// a migration fails.
	ErrUnavailable = errors.New("store: storage unavailable")
)

// NotFoundError identifies the missing row.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("store: %s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func notFound(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}
