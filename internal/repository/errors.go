// Package repository holds the SQL repositories. Sentinel errors let the
// layers above tell expected outcomes apart from storage failures without
// knowing which database is underneath.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when an insert or pre-check collides with the
// unique email constraint.
var ErrEmailExists = errors.New("email already exists")
