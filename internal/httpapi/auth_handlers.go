package httpapi

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	key, err := a.users.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		respondVaultError(w, err)
		return
	}
	token, expiresAt, err := a.sessions.Issue(key)
	if err != nil {
		a.logger.Error("issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	_ = a.audit.Event(r.Context(), "auth.login", zap.String("login", req.Login))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.users.ChangePassword(r.Context(), callerFrom(r.Context()), req.Password); err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "user.password_change")
	w.WriteHeader(http.StatusNoContent)
}
