package deployment

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DuckOriDuck/whaleray/internal/auth"
	"github.com/DuckOriDuck/whaleray/internal/httpserver"
)

// Handler serves the deployment HTTP surface (spec §6).
type Handler struct {
	store  *Store
	intake *Intake
}

// NewHandler creates a Handler.
func NewHandler(store *Store, intake *Intake) *Handler {
	return &Handler{store: store, intake: intake}
}

// Mount registers routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/deployments", h.handleCreate)
	r.Get("/deployments", h.handleList)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	d, err := h.intake.Create(r.Context(), identity.UserID.String(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInputInvalid):
			httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		case errors.Is(err, ErrInstallationNotFound):
			httpserver.RespondError(w, http.StatusNotFound, "not_found", err.Error())
		default:
			httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "creating deployment")
		}
		return
	}

	httpserver.Respond(w, http.StatusAccepted, CreateResponse{DeploymentID: d.DeploymentID, Status: d.Status})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	limit, err := httpserver.ParseLimit(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	// Orphan-swept on the way out (spec §6, §4.8) — ListByUser applies the
	// sweep before returning.
	deployments, err := h.store.ListByUser(r.Context(), identity.UserID.String(), limit)
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "listing deployments")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"deployments": deployments})
}
