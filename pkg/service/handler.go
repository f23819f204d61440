package service

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DuckOriDuck/whaleray/internal/auth"
	"github.com/DuckOriDuck/whaleray/internal/httpserver"
)

// DeploymentSummary is the minimal per-deployment projection the per-service
// history read helper needs. Defined here (rather than importing
// pkg/deployment) to avoid an import cycle — pkg/deployment already depends
// on pkg/service for service-row mutation during Intake and supersession.
type DeploymentSummary struct {
	DeploymentID string    `json:"deploymentId"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HistoryFunc fetches the most recent deployments for a service, most
// recent first. internal/app supplies this backed by
// pkg/deployment.Store.ListByService.
type HistoryFunc func(ctx context.Context, serviceID string, limit int) ([]DeploymentSummary, error)

// Handler serves the read-only service listing endpoints (spec §6,
// Read Helpers).
type Handler struct {
	store   *Store
	history HistoryFunc
}

// NewHandler creates a Handler.
func NewHandler(store *Store, history HistoryFunc) *Handler {
	return &Handler{store: store, history: history}
}

// Mount registers routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/services", h.handleList)
	r.Get("/services/{id}", h.handleGet)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing identity")
		return
	}

	services, err := h.store.ListByUser(r.Context(), identity.UserID.String())
	if err != nil {
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "listing services")
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"services": services})
}

type serviceWithHistory struct {
	Service
	RecentDeployments []DeploymentSummary `json:"recentDeployments"`
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	svc, err := h.store.Get(r.Context(), id)
	if err != nil {
		httpserver.RespondError(w, http.StatusNotFound, "not_found", "service not found")
		return
	}

	resp := serviceWithHistory{Service: *svc}
	if h.history != nil {
		history, err := h.history(r.Context(), id, 10)
		if err == nil {
			resp.RecentDeployments = history
		}
	}

	httpserver.Respond(w, http.StatusOK, resp)
}
