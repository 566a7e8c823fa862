package api

import (
	"context"
	"errors"
	"net/http"

	"adboard/cmd/identity"
)

// StatusClientClosedRequest is written when the client cancels before a
// response is ready. It never reaches the client; it keeps the request out of
// the success counts in logs and metrics.
const StatusClientClosedRequest = 499

// writeServiceError maps a service error to its HTTP response.
// Only kinds are exposed to the client: causes stay in the server log.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "incorrect username or password")
	case errors.Is(err, identity.ErrUnauthenticated):
		writeUnauthorized(w)
	case errors.Is(err, identity.ErrForbiddenRole):
		writeError(w, http.StatusForbidden, "forbidden_role", "creating admin users is not allowed via public registration")
	case errors.Is(err, identity.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not enough permissions")
	case errors.Is(err, identity.ErrDuplicateUsername):
		writeError(w, http.StatusConflict, "username_taken", "username already registered")
	case errors.Is(err, identity.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", invalidInputMessage(err))
	case errors.Is(err, identity.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", notFoundMessage(err))
	case errors.Is(err, context.Canceled):
		h.log.InfoContext(r.Context(), "http.request.canceled", "request_id", RequestIDFrom(r.Context()))
		w.WriteHeader(StatusClientClosedRequest)
	default:
		h.log.ErrorContext(r.Context(), "http.request.failed",
			"request_id", RequestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer`)
	writeError(w, http.StatusUnauthorized, "unauthorized", "could not validate credentials")
}

// invalidInputMessage returns the message of the innermost invalid-input OpError.
// Those messages are written by the services and never carry stored data.
func invalidInputMessage(err error) string {
	var oe identity.OpError
	if errors.As(err, &oe) && errors.Is(oe.Kind, identity.ErrInvalidInput) && oe.Msg != "" && oe.Err == nil {
		return oe.Msg
	}
	return "invalid input"
}

func notFoundMessage(err error) string {
	var nf identity.NotFoundError
	if errors.As(err, &nf) {
		switch nf.Resource {
		case "user":
			return "user not found"
		case "advertisement":
			return "advertisement not found"
		}
	}
	return "not found"
}
