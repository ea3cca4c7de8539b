package settlement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/nexport-erp/nexport-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for payment scheduling and recording.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers settlement routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/invoices/{id}/schedule", h.handleGenerateSchedule)
	r.Get("/invoices/{id}/installments", h.handleListInstallments)
	r.Post("/invoices/{id}/revalue", h.handleRevalue)
	r.Post("/payments", h.handleRecordPayment)
}

func (h *Handler) handleGenerateSchedule(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "id")
	schedule, err := h.service.GenerateSchedule(r.Context(), invoiceID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"installments": schedule})
}

func (h *Handler) handleListInstallments(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "id")
	schedule, err := h.service.repo.ListInstallments(r.Context(), invoiceID)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"installments": schedule})
}

type recordPaymentRequest struct {
	Invoice             string  `json:"invoice" validate:"required"`
	Installment         int     `json:"installment" validate:"required,min=1"`
	PaymentDate         string  `json:"payment_date" validate:"required"`
	AmountPaid          float64 `json:"amount_paid" validate:"required,gt=0"`
	ExchangeRate        float64 `json:"exchange_rate" validate:"required,gt=0"`
	RemittanceReference string  `json:"remittance_reference" validate:"required"`
	BankReference       string  `json:"bank_reference"`
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	paymentDate, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "payment_date must be YYYY-MM-DD")
		return
	}

	exec, err := h.service.RecordPayment(r.Context(), RecordPaymentInput{
		Invoice:             req.Invoice,
		Installment:         req.Installment,
		PaymentDate:         paymentDate,
		AmountPaid:          req.AmountPaid,
		ExchangeRate:        req.ExchangeRate,
		RemittanceReference: req.RemittanceReference,
		BankReference:       req.BankReference,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}

	// Phase 2 runs only after the payment record is durable. Its failure
	// is logged inside the service and never surfaces here.
	h.service.TriggerRevaluation(r.Context(), exec.Invoice, exec.ID)

	httpx.JSON(w, http.StatusCreated, exec)
}

type revalueRequest struct {
	ExecutionID int64 `json:"execution_id" validate:"required,min=1"`
}

func (h *Handler) handleRevalue(w http.ResponseWriter, r *http.Request) {
	invoiceID := chi.URLParam(r, "id")
	var req revalueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	h.service.TriggerRevaluation(r.Context(), invoiceID, req.ExecutionID)
	httpx.JSON(w, http.StatusAccepted, map[string]any{
		"invoice":      invoiceID,
		"execution_id": strconv.FormatInt(req.ExecutionID, 10),
	})
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrUnknownTerms):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInstallmentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicatePayment):
		httpx.Problem(w, http.StatusConflict, "Duplicate Payment", err.Error())
	default:
		h.logger.Error("settlement request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
