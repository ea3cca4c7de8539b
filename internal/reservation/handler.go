package reservation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexport-erp/nexport-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock availability and reservations.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers reservation routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock/{item}/available", h.handleAvailable)
	r.Post("/reservations", h.handleReserve)
	r.Post("/reservations/{id}/release", h.handleRelease)
	r.Post("/reservations/{id}/cancel", h.handleCancel)
}

func (h *Handler) handleAvailable(w http.ResponseWriter, r *http.Request) {
	item := chi.URLParam(r, "item")
	availability, err := h.service.AvailableStock(r.Context(), item)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, availability)
}

type reserveRequest struct {
	Item       string  `json:"item" validate:"required"`
	SalesOrder string  `json:"sales_order" validate:"required"`
	Qty        float64 `json:"qty" validate:"required,gt=0"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Reserve(r.Context(), req.Item, req.SalesOrder, req.Qty)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Release)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Cancel)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id int64) (ReleaseResult, error)) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid reservation id")
		return
	}
	result, err := fn(r.Context(), id)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	default:
		h.logger.Error("reservation request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
