package receiving

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nexport-erp/nexport-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for receipt processing.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers receiving routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts/{shipmentID}/process", h.handleProcess)
}

func (h *Handler) handleProcess(w http.ResponseWriter, r *http.Request) {
	shipmentID := chi.URLParam(r, "shipmentID")
	if shipmentID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "shipment id required")
		return
	}

	result, err := h.service.ProcessReceipt(r.Context(), shipmentID)
	if err != nil {
		h.respondErr(w, shipmentID, err)
		return
	}
	// Replaying an already-processed shipment is a success, not a conflict;
	// the body carries already_existed so callers can tell the two apart.
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondErr(w http.ResponseWriter, shipmentID string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrReceiptFailed):
		httpx.Problem(w, http.StatusInternalServerError, "Receipt Failed", err.Error())
	default:
		h.logger.Error("process receipt failed",
			slog.String("shipment", shipmentID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
