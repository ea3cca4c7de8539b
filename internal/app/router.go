package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/nexport-erp/nexport-erp/internal/audit"
	"github.com/nexport-erp/nexport-erp/internal/customs"
	"github.com/nexport-erp/nexport-erp/internal/ledger"
	"github.com/nexport-erp/nexport-erp/internal/observability"
	"github.com/nexport-erp/nexport-erp/internal/receiving"
	"github.com/nexport-erp/nexport-erp/internal/replenish"
	"github.com/nexport-erp/nexport-erp/internal/reservation"
	"github.com/nexport-erp/nexport-erp/internal/settlement"
	"github.com/nexport-erp/nexport-erp/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	LedgerHandler      *ledger.Handler
	CustomsHandler     *customs.Handler
	ReceivingHandler   *receiving.Handler
	ReservationHandler *reservation.Handler
	SettlementHandler  *settlement.Handler
	ReplenishHandler   *replenish.Handler
	AuditHandler       *audit.Handler
	JobHandler         *jobs.Handler

	Metrics *observability.Metrics
}

// NewRouter constructs the chi.Router with NexPort defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.LedgerHandler != nil {
		params.LedgerHandler.MountRoutes(r)
	}
	if params.CustomsHandler != nil {
		params.CustomsHandler.MountRoutes(r)
	}
	if params.ReceivingHandler != nil {
		params.ReceivingHandler.MountRoutes(r)
	}
	if params.ReservationHandler != nil {
		params.ReservationHandler.MountRoutes(r)
	}
	if params.SettlementHandler != nil {
		params.SettlementHandler.MountRoutes(r)
	}
	if params.ReplenishHandler != nil {
		params.ReplenishHandler.MountRoutes(r)
	}
	if params.AuditHandler != nil {
		params.AuditHandler.MountRoutes(r)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
