// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package listing

import "errors"

// Error kinds. Every error returned by the service wraps exactly one of these.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrValidationFailed   = errors.New("validation failed")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrNotFound           = errors.New("property not found")
	ErrConflict           = errors.New("property was modified concurrently")
	ErrStorageUnavailable = errors.New("media storage unavailable")
)

// Error codes attached to wrapped kinds.
const (
	CodeAccessDenied      = "PROPERTY_ACCESS_DENIED"
	CodeValidationFailed  = "PROPERTY_VALIDATION_FAILED"
	CodeInvalidTransition = "PROPERTY_INVALID_TRANSITION"
	CodeNotFound          = "PROPERTY_NOT_FOUND"
	CodeVersionConflict   = "PROPERTY_VERSION_CONFLICT"
	CodeMediaUpload       = "MEDIA_UPLOAD_FAILED"
	CodeMediaDelete       = "MEDIA_DELETE_FAILED"
)

// Kind names the error kind of err for metrics and transport mapping.
// Returns "ok" for nil and "internal" for errors that wrap no known kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}
