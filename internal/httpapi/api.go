// Package httpapi exposes the vault over REST. Every failure kind of the
// engine maps to exactly one status code; see vaultStatus.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"sandyq.org/internal/audit"
	"sandyq.org/internal/obs"
	"sandyq.org/internal/session"
	"sandyq.org/internal/vault"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Limits carries the transport throttling knobs.
type Limits struct {
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
}

// API is the HTTP layer over the vault services.
type API struct {
	router     chi.Router
	users      *vault.UserService
	categories *vault.CategoryService
	secrets    *vault.SecretService
	sessions   *session.Manager
	audit      *audit.Log
	logger     *zap.Logger
	readyProbe ReadyProbe
	version    string
}

// New wires the routes and middleware chain.
func New(
	users *vault.UserService,
	categories *vault.CategoryService,
	secrets *vault.SecretService,
	sessions *session.Manager,
	auditLog *audit.Log,
	logger *zap.Logger,
	rp ReadyProbe,
	version string,
	limits Limits,
) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLog == nil {
		auditLog = audit.NewLog(nil)
	}
	a := &API{
		users:      users,
		categories: categories,
		secrets:    secrets,
		sessions:   sessions,
		audit:      auditLog,
		logger:     logger,
		readyProbe: rp,
		version:    version,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(CORS)
	if limits.MaxBodyBytes > 0 {
		r.Use(MaxBodyBytes(limits.MaxBodyBytes))
	}
	if limits.RequestsPerSecond > 0 {
		r.Use(RateLimit(limits.RequestsPerSecond, limits.Burst))
	}
	r.Use(RequestLogging(logger))

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReady)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/info", a.handleInfo)

		// Credential guessing gets a much smaller bucket than the rest of
		// the API.
		if limits.RequestsPerSecond > 0 {
			r.With(RateLimit(loginRatePerSecond, loginRateBurst)).
				Post("/auth/login", a.handleLogin)
		} else {
			r.Post("/auth/login", a.handleLogin)
		}

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)

			r.Put("/me/password", a.handleChangePassword)

			r.Route("/users", func(r chi.Router) {
				r.Get("/", a.handleListUsers)
				r.Post("/", a.handleCreateUser)
				r.Get("/{login}", a.handleGetUser)
				r.Put("/{login}/access-level", a.handleChangeAccessLevel)
				r.Put("/{login}/login", a.handleRenameUser)
				r.Post("/{login}/password-reset", a.handleResetPassword)
			})

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", a.handleListCategories)
				r.Post("/", a.handleCreateCategory)
				r.Get("/{name}", a.handleGetCategory)
				r.Put("/{name}", a.handleRenameCategory)
				r.Delete("/{name}", a.handleDeleteCategory)
			})

			r.Route("/secrets", func(r chi.Router) {
				r.Get("/", a.handleListSecrets)
				r.Post("/", a.handleCreateSecret)
				r.Get("/search", a.handleSearchSecrets)
				r.Get("/{key}", a.handleGetSecret)
				r.Put("/{key}", a.handleUpdateSecret)
				r.Delete("/{key}", a.handleDeleteSecret)
			})
		})
	})

	a.router = r
	return a
}

// Handler returns the instrumented root handler.
func (a *API) Handler() http.Handler {
	return obs.Instrument(a.router)
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "sandyq-api",
		"version": a.version,
	})
}

func (a *API) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "sandyq-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}
