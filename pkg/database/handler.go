package database

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DuckOriDuck/whaleray/internal/auth"
	"github.com/DuckOriDuck/whaleray/internal/httpserver"
)

// Handler serves the per-user database HTTP surface (spec §6).
type Handler struct {
	controller *Controller
}

// NewHandler creates a Handler.
func NewHandler(controller *Controller) *Handler {
	return &Handler{controller: controller}
}

// Mount registers routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/db/createdb", h.handleCreate)
	r.Get("/db", h.handleGet)
	r.Delete("/db", h.handleDelete)
	r.Post("/db/reset-password", h.handleResetPassword)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	d, password, err := h.controller.Create(r.Context(), identity.UserID.String())
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			httpserver.RespondError(w, http.StatusConflict, "already_exists", "database already provisioned")
			return
		}
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "creating database")
		return
	}

	httpserver.Respond(w, http.StatusAccepted, CreateResponse{
		DatabaseID: d.DatabaseID,
		Username:   d.Username,
		Password:   password,
		DBState:    d.DBState,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	d, err := h.controller.Get(r.Context(), identity.UserID.String())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "no database provisioned")
			return
		}
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "fetching database")
		return
	}

	httpserver.Respond(w, http.StatusOK, d)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	if err := h.controller.Delete(r.Context(), identity.UserID.String()); err != nil {
		if errors.Is(err, ErrNotFound) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "no database provisioned")
			return
		}
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "deleting database")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleResetPassword is carried forward unimplemented; the original
// implementation stubs it the same way (SPEC_FULL.md §6).
func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	httpserver.RespondError(w, http.StatusNotImplemented, "not_implemented", "password reset is not supported")
}
