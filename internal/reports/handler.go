package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bizledger/bizledger/internal/platform/httpx"
	"github.com/bizledger/bizledger/internal/shared"
)

// Handler wires the read-only report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/cashflow", h.cashflow)
	r.Get("/overview", h.overview)
}

func dateParam(r *http.Request, name string, fallback time.Time) time.Time {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return fallback
	}
	return t
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	asOf := dateParam(r, "as_of", time.Now().UTC())

	tb, err := h.service.TrialBalance(r.Context(), orgID, asOf)
	if err != nil {
		h.logger.Error("trial balance failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) cashflow(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	now := time.Now().UTC()
	from := dateParam(r, "from", now.AddDate(0, -1, 0))
	to := dateParam(r, "to", now)

	summary, err := h.service.CashflowSummary(r.Context(), orgID, from, to)
	if err != nil {
		h.logger.Error("cashflow summary failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) overview(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	now := time.Now().UTC()
	from := dateParam(r, "from", now.AddDate(0, -1, 0))
	to := dateParam(r, "to", now)

	overview, err := h.service.Overview(r.Context(), orgID, from, to)
	if err != nil {
		h.logger.Error("overview failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, overview)
}
