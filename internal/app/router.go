package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bizledger/bizledger/internal/costing"
	"github.com/bizledger/bizledger/internal/invoicing"
	"github.com/bizledger/bizledger/internal/ledger"
	"github.com/bizledger/bizledger/internal/observability"
	"github.com/bizledger/bizledger/internal/pos"
	"github.com/bizledger/bizledger/internal/recon"
	"github.com/bizledger/bizledger/internal/reports"
	"github.com/bizledger/bizledger/internal/sequence"
	"github.com/bizledger/bizledger/internal/tax"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	LedgerHandler    *ledger.Handler
	TaxHandler       *tax.Handler
	CostingHandler   *costing.Handler
	ReconHandler     *recon.Handler
	SequenceHandler  *sequence.Handler
	ReportsHandler   *reports.Handler
	InvoicingHandler *invoicing.Handler
	POSHandler       *pos.Handler
}

// NewRouter constructs the chi.Router with BizLedger defaults. Every business
// route lives under /api/v1 and requires an organization scope header.
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

	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RequireOrg)

		if params.LedgerHandler != nil {
			params.LedgerHandler.MountRoutes(r)
		}
		if params.TaxHandler != nil {
			r.Route("/tax", params.TaxHandler.MountRoutes)
		}
		if params.CostingHandler != nil {
			r.Route("/stock", params.CostingHandler.MountRoutes)
		}
		if params.ReconHandler != nil {
			r.Route("/recon", params.ReconHandler.MountRoutes)
		}
		if params.SequenceHandler != nil {
			r.Route("/sequences", params.SequenceHandler.MountRoutes)
		}
		if params.ReportsHandler != nil {
			r.Route("/reports", params.ReportsHandler.MountRoutes)
		}
		if params.InvoicingHandler != nil {
			r.Route("/invoices", params.InvoicingHandler.MountRoutes)
		}
		if params.POSHandler != nil {
			r.Route("/pos", params.POSHandler.MountRoutes)
		}
	})

	return r
}
