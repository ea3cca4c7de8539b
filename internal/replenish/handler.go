package replenish

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nexport-erp/nexport-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for material requests.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers replenishment routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/replenish/requests", h.handleListRequests)
	r.Post("/replenish/scan", h.handleScan)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	requests, err := h.service.ListOpenRequests(r.Context(), limit)
	if err != nil {
		h.logger.Error("list material requests failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (h *Handler) handleScan(w http.ResponseWriter, r *http.Request) {
	created, err := h.service.Scan(r.Context())
	if err != nil {
		h.logger.Error("replenish scan failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"created": created})
}
