// Package repository persists accounts, refresh sessions, telegram
// links, kiosks and attendance over database/sql. Sentinel errors let
// handlers map failure modes to HTTP codes without string matching.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on an
// app scope it does not own. Handlers translate it to HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrDuplicateUsername is returned when a create or upsert would take
// a username already owned by a different account.
var ErrDuplicateUsername = errors.New("username already taken")

// ErrAmbiguousIdentity is returned by the provisioning upsert when the
// entity id and the roster id resolve to two different existing
// accounts. The caller must reconcile, we never silently pick one.
var ErrAmbiguousIdentity = errors.New("entity id and roster id match different accounts")

// ErrLinkTaken is returned when a telegram id is already linked to a
// different account. The existing link is left untouched.
var ErrLinkTaken = errors.New("telegram id already linked to another account")
