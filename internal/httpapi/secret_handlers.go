package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sandyq.org/internal/vault"
)

func secretKeyParam(r *http.Request) (vault.SecretKey, error) {
	raw := chi.URLParam(r, "key")
	key, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || key <= 0 {
		return 0, fmt.Errorf("invalid secret key %q", raw)
	}
	return vault.SecretKey(key), nil
}

func (a *API) handleCreateSecret(w http.ResponseWriter, r *http.Request) {
	var in vault.SecretInput
	if !decodeJSON(w, r, &in) {
		return
	}
	sec, err := a.secrets.Create(r.Context(), callerFrom(r.Context()), in)
	if err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "secret.create",
		zap.Int64("key", int64(sec.Key)), zap.String("name", sec.Name))
	w.Header().Set("Location", fmt.Sprintf("/v1/secrets/%d", sec.Key))
	writeJSON(w, http.StatusCreated, sec)
}

func (a *API) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	headers, err := a.secrets.List(r.Context(), callerFrom(r.Context()))
	if err != nil {
		respondVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, headers)
}

func (a *API) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	key, err := secretKeyParam(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	sec, err := a.secrets.Get(r.Context(), callerFrom(r.Context()), key)
	if err != nil {
		respondVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sec)
}

func (a *API) handleUpdateSecret(w http.ResponseWriter, r *http.Request) {
	key, err := secretKeyParam(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	var in vault.SecretInput
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := a.secrets.Update(r.Context(), callerFrom(r.Context()), key, in); err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "secret.update", zap.Int64("key", int64(key)))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	key, err := secretKeyParam(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := a.secrets.Delete(r.Context(), callerFrom(r.Context()), key); err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "secret.delete", zap.Int64("key", int64(key)))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSearchSecrets(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if _, err := a.secrets.Search(r.Context(), callerFrom(r.Context()), query); err != nil {
		respondVaultError(w, err)
		return
	}
	// Unreachable until search ships.
	writeJSON(w, http.StatusOK, []vault.SecretHeader{})
}
