package api

import (
	"errors"
	"net/http"

	"rollbook/cmd/identity"
	"rollbook/cmd/internal/auth"
	"rollbook/cmd/internal/device"
	"rollbook/cmd/internal/editflow"
	"rollbook/cmd/internal/roster"
)

// respondError maps domain errors onto the HTTP taxonomy. Unexpected errors
// become a generic 500; the detail goes to the log only, never the client.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrAuthRequired) || identity.IsNotActive(err):
		writeError(w, http.StatusUnauthorized, "auth_required", "sign in to continue")

	case errors.Is(err, auth.ErrWrongRole):
		writeError(w, http.StatusForbidden, "wrong_role", "this portal belongs to a different role")

	case errors.Is(err, device.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not the owner of this device")

	case errors.Is(err, roster.ErrFieldNotAllowed):
		writeError(w, http.StatusForbidden, "field_not_allowed", "no permission grant covers this field")

	case errors.Is(err, editflow.ErrFieldNotRequestable):
		writeError(w, http.StatusBadRequest, "field_not_requestable", "this field cannot be edited via request")

	case identity.IsInvalidInput(err) ||
		errors.Is(err, device.ErrInvalidInput) ||
		errors.Is(err, roster.ErrInvalidInput) ||
		errors.Is(err, editflow.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())

	case errors.Is(err, editflow.ErrNotPending):
		writeError(w, http.StatusConflict, "not_pending", "request already settled")

	case identity.IsConflict(err) || errors.Is(err, roster.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "a conflicting record already exists")

	case identity.IsNotFound(err) ||
		errors.Is(err, device.ErrNotFound) ||
		errors.Is(err, roster.ErrNotFound) ||
		errors.Is(err, editflow.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "no such record")

	default:
		h.log.Error("api.internal", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
