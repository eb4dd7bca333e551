package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"sandyq.org/internal/obs"
	"sandyq.org/internal/vault"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// decodeJSON parses the request body into v, rejecting unknown fields, and
// writes the error response itself: 413 when the body limit cut the read
// short, 400 for everything else.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return false
	}
	return true
}

// vaultStatus maps engine failures to status codes. Each failure kind has
// exactly one code so clients can rely on the distinction.
func vaultStatus(err error) (int, string) {
	switch {
	case errors.Is(err, vault.ErrSessionExpired):
		return http.StatusUnauthorized, "session_expired"
	case errors.Is(err, vault.ErrWrongCredentials):
		return http.StatusUnauthorized, "wrong_credentials"
	case errors.Is(err, vault.ErrBanned):
		return http.StatusForbidden, "banned"
	case errors.Is(err, vault.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, vault.ErrUserNotFound),
		errors.Is(err, vault.ErrCategoryNotFound),
		errors.Is(err, vault.ErrSecretNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, vault.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, vault.ErrCategoryInUse):
		return http.StatusConflict, "category_in_use"
	case errors.Is(err, vault.ErrInvalidValue):
		return http.StatusUnprocessableEntity, "invalid_value"
	case errors.Is(err, vault.ErrNotImplemented):
		return http.StatusNotImplemented, "not_implemented"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// respondVaultError writes the mapped status and counts the refusal.
func respondVaultError(w http.ResponseWriter, err error) {
	code, kind := vaultStatus(err)
	if code < http.StatusInternalServerError {
		obs.ObserveCheckFailure(kind)
		writeError(w, code, err.Error())
		return
	}
	// Do not leak storage details to clients.
	writeError(w, code, "internal error")
}
