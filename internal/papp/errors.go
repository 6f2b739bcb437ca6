// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package papp

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Error codes reported by the loader.
const (
	CodeAlreadyConstructed = "PAPP_ALREADY_CONSTRUCTED"
	CodeUnknownRuntime     = "PAPP_UNKNOWN_RUNTIME"
	CodeEntryLoadFailed    = "PAPP_ENTRY_LOAD_FAILED"
	CodeStartFailed        = "PAPP_START_FAILED"
	CodeStopFailed         = "PAPP_STOP_FAILED"
	CodeHookTimeout        = "PAPP_HOOK_TIMEOUT"
	CodeHookCancelled      = "PAPP_HOOK_CANCELLED"
	CodeNamespaceViolation = "PAPP_NAMESPACE_VIOLATION"
	CodeCommitFailed       = "PAPP_COMMIT_FAILED"
	CodeAPIClosed          = "PAPP_API_CLOSED"
	CodeNotLoaded          = "PAPP_NOT_LOADED"
)

// Sentinel errors for programmatic error checking. Errors returned by the
// loader wrap one of these, so errors.Is keeps working when a runtime or
// papp attached a more specific oops code of its own.
var (
	// ErrAlreadyConstructed is returned when a platform is claimed twice.
	ErrAlreadyConstructed = errors.New("platform already has a loader")
	// ErrUnknownRuntime is returned when no runtime serves a papp's runtime kind.
	ErrUnknownRuntime = errors.New("unknown papp runtime")
	// ErrEntryLoad is returned when the entry object cannot be constructed.
	ErrEntryLoad = errors.New("papp entry load failed")
	// ErrStartFailed is returned when the start hook fails.
	ErrStartFailed = errors.New("papp start failed")
	// ErrStopFailed is returned when the stop hook fails.
	ErrStopFailed = errors.New("papp stop failed")
	// ErrHookTimeout is returned when a hook does not finish in time.
	ErrHookTimeout = errors.New("papp hook timed out")
	// ErrHookCancelled is returned when the caller's context ends while a hook runs.
	ErrHookCancelled = errors.New("papp hook cancelled")
	// ErrNamespaceViolation is returned when a registration escapes the papp's namespace.
	ErrNamespaceViolation = errors.New("papp namespace violation")
	// ErrCommitFailed is returned when staged registrations collide with live ones.
	ErrCommitFailed = errors.New("papp commit failed")
	// ErrAPIClosed is returned when a papp registers after it was unloaded.
	ErrAPIClosed = errors.New("platform api closed")
	// ErrNotLoaded is returned when operating on a papp that isn't loaded.
	ErrNotLoaded = errors.New("papp not loaded")
)

// wrapKind wraps err so that both errors.Is(kind) and the original chain
// hold, tagging it with code when err carries none.
func wrapKind(code string, kind error, name string, err error) error {
	return oops.Code(code).In("papp").With("papp", name).Wrap(fmt.Errorf("%w: %w", kind, err))
}
