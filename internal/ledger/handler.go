package ledger

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexport-erp/nexport-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for manual ledger adjustments.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items/{name}", h.handleGetItem)
	r.Post("/stock/adjust", h.handleAdjustStock)
	r.Post("/costs/adjust", h.handleAdjustCost)
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.service.repo.GetItem(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

type adjustStockRequest struct {
	Item          string  `json:"item" validate:"required"`
	PhysicalDelta float64 `json:"physical_delta"`
	DeclaredDelta float64 `json:"declared_delta"`
	Ref           string  `json:"ref"`
}

func (h *Handler) handleAdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	levels, err := h.service.UpdateStock(r.Context(), UpdateStockInput{
		Item:          req.Item,
		PhysicalDelta: req.PhysicalDelta,
		DeclaredDelta: req.DeclaredDelta,
		Ref:           req.Ref,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"stock_physical": levels.Physical,
		"stock_declared": levels.Declared,
	})
}

type adjustCostRequest struct {
	Item          string  `json:"item" validate:"required"`
	LandedDelta   float64 `json:"landed_delta"`
	DeclaredDelta float64 `json:"declared_delta"`
	Source        string  `json:"source"`
	RecordHistory bool    `json:"record_history"`
}

func (h *Handler) handleAdjustCost(w http.ResponseWriter, r *http.Request) {
	var req adjustCostRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	costs, err := h.service.UpdateCost(r.Context(), UpdateCostInput{
		Item:          req.Item,
		LandedDelta:   req.LandedDelta,
		DeclaredDelta: req.DeclaredDelta,
		RecordHistory: req.RecordHistory,
		Source:        req.Source,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"cost_landed":   costs.Landed,
		"cost_declared": costs.Declared,
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNegativeStock):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
