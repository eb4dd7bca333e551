package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sandyq.org/internal/vault"
)

type createUserRequest struct {
	Login       string `json:"login"`
	AccessLevel string `json:"access_level"`
	Password    string `json:"password"`
}

type changeAccessLevelRequest struct {
	AccessLevel string `json:"access_level"`
}

type renameUserRequest struct {
	Login string `json:"login"`
}

type passwordResetResponse struct {
	Password string `json:"password"`
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	level, ok := vault.ParseAccessLevel(req.AccessLevel)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown access level %q", req.AccessLevel))
		return
	}
	user, err := a.users.Create(r.Context(), callerFrom(r.Context()), req.Login, level, req.Password)
	if err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "user.create", zap.String("login", user.Login))
	w.Header().Set("Location", fmt.Sprintf("/v1/users/%s", user.Login))
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.users.List(r.Context(), callerFrom(r.Context()))
	if err != nil {
		respondVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")
	user, err := a.users.FindByLogin(r.Context(), callerFrom(r.Context()), login)
	if err != nil {
		respondVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleChangeAccessLevel(w http.ResponseWriter, r *http.Request) {
	var req changeAccessLevelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	level, ok := vault.ParseAccessLevel(req.AccessLevel)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown access level %q", req.AccessLevel))
		return
	}
	login := chi.URLParam(r, "login")
	if err := a.users.ChangeAccessLevel(r.Context(), callerFrom(r.Context()), login, level); err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "user.access_level_change",
		zap.String("login", login), zap.String("level", level.String()))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleRenameUser(w http.ResponseWriter, r *http.Request) {
	var req renameUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	oldLogin := chi.URLParam(r, "login")
	if err := a.users.Rename(r.Context(), callerFrom(r.Context()), oldLogin, req.Login); err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "user.rename",
		zap.String("from", oldLogin), zap.String("to", req.Login))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	login := chi.URLParam(r, "login")
	password, err := a.users.ResetPassword(r.Context(), callerFrom(r.Context()), login)
	if err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "user.password_reset", zap.String("login", login))
	// The generated password is returned once and never stored in clear.
	writeJSON(w, http.StatusOK, passwordResetResponse{Password: password})
}
