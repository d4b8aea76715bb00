// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rentloop Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rentloop/rentloop/internal/listing"
	"github.com/rentloop/rentloop/pkg/errutil"
)

// Response codes outside the listing error kinds.
const (
	codeUnauthenticated = "unauthenticated"
	codeInvalidRequest  = "invalid_request"
	codeTooLarge        = "payload_too_large"
	codeInternal        = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type kindMapping struct {
	status  int
	message string
}

var kinds = map[string]kindMapping{
	"unauthorized":        {http.StatusForbidden, "not authorized to perform this action"},
	"validation_failed":   {http.StatusBadRequest, "request failed validation"},
	"invalid_transition":  {http.StatusConflict, "operation not allowed in the current state"},
	"not_found":           {http.StatusNotFound, "property not found"},
	"conflict":            {http.StatusConflict, "property was modified concurrently, reload and retry"},
	"storage_unavailable": {http.StatusBadGateway, "media storage is unavailable"},
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errcheck // client went away
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// writeError maps a service error to its status and public message.
// Internal errors are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	kind := listing.Kind(err)
	m, ok := kinds[kind]
	if !ok {
		errutil.LogErrorContext(r.Context(), logger, "request failed", err, "path", r.URL.Path)
		writeErrorCode(w, http.StatusInternalServerError, codeInternal, "internal server error")
		return
	}

	// An anonymous caller denied access is asked to authenticate.
	if kind == "unauthorized" && actorFrom(r).IsAnonymous() {
		writeErrorCode(w, http.StatusUnauthorized, codeUnauthenticated, "authentication required")
		return
	}

	msg := m.message
	var verr *listing.ValidationError
	if errors.As(err, &verr) {
		msg = verr.Error()
	}
	if m.status >= http.StatusInternalServerError {
		errutil.LogErrorContext(r.Context(), logger, "upstream failure", err, "path", r.URL.Path)
	}
	writeErrorCode(w, m.status, kind, msg)
}
