package httpapi

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type categoryRequest struct {
	Name string `json:"name"`
}

func (a *API) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cat, err := a.categories.Create(r.Context(), callerFrom(r.Context()), req.Name)
	if err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "category.create", zap.String("name", cat.Name))
	w.Header().Set("Location", fmt.Sprintf("/v1/categories/%s", cat.Name))
	writeJSON(w, http.StatusCreated, cat)
}

func (a *API) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := a.categories.List(r.Context(), callerFrom(r.Context()))
	if err != nil {
		respondVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

func (a *API) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cat, err := a.categories.FindByName(r.Context(), callerFrom(r.Context()), name)
	if err != nil {
		respondVaultError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cat)
}

func (a *API) handleRenameCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	oldName := chi.URLParam(r, "name")
	if err := a.categories.Rename(r.Context(), callerFrom(r.Context()), oldName, req.Name); err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "category.rename",
		zap.String("from", oldName), zap.String("to", req.Name))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.categories.Delete(r.Context(), callerFrom(r.Context()), name); err != nil {
		respondVaultError(w, err)
		return
	}
	_ = a.audit.Event(r.Context(), "category.delete", zap.String("name", name))
	w.WriteHeader(http.StatusNoContent)
}
