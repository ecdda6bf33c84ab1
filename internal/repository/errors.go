// Package repository contains data access logic separated from HTTP
// handlers. Sentinel errors defined here let handlers map storage outcomes
// to HTTP codes without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when a row does not exist. For refresh tokens an
// expired row is reported as not found too: expired is functionally deleted
// even while physical deletion lags behind the sweep.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a registration or update collides with an
// existing email. Handlers translate it into HTTP 409.
var ErrEmailExists = errors.New("email already exists")

// ErrConflict signals a state conflict such as registering twice for one
// event or registering for a full one. Handlers translate it into 409.
var ErrConflict = errors.New("conflict")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers translate it into 403.
var ErrForbidden = errors.New("forbidden")
