package customs

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexport-erp/nexport-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for customs gap resolution.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers customs routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/customs/resolve", h.handleResolve)
	r.Get("/customs/gaps", h.handleListGaps)
}

type resolveRequest struct {
	CustomsName    string  `json:"customs_name" validate:"required"`
	Qty            float64 `json:"qty" validate:"required,gt=0"`
	DeclarationRef string  `json:"declaration_ref" validate:"required"`
}

func (h *Handler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.ResolveGaps(r.Context(), req.CustomsName, req.Qty, req.DeclarationRef)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("gap resolution failed",
			slog.String("customs_name", req.CustomsName),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleListGaps(w http.ResponseWriter, r *http.Request) {
	customsName := r.URL.Query().Get("customs_name")
	if customsName == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "customs_name required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	gaps, err := h.service.ListOpenGaps(r.Context(), customsName, limit)
	if err != nil {
		h.logger.Error("list gaps failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"gaps": gaps})
}
