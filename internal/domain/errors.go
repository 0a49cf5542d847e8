// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates the operation conflicts with the entity's current state.
var ErrConflict = errors.New("conflict")

// ErrValidation indicates the request payload failed domain validation.
var ErrValidation = errors.New("validation failed")
