package recon

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bizledger/bizledger/internal/platform/httpx"
	"github.com/bizledger/bizledger/internal/shared"
)

// Handler wires HTTP endpoints for subledger reconciliation.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/counterparties/{id}/recompute", h.recompute)
	r.Post("/reconcile", h.reconcile)
	r.Get("/reconcile/{kind}", h.reconcileControl)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownTxnKind):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("recon request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) recompute(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	counterpartyID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "counterparty id must be numeric")
		return
	}

	result, err := h.service.RecomputeBalance(r.Context(), orgID, counterpartyID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type reconcileRequest struct {
	ControlAccountCode string  `json:"controlAccountCode" validate:"required,max=32"`
	SubledgerTotal     float64 `json:"subledgerTotal"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	var req reconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Reconcile(r.Context(), orgID, req.ControlAccountCode, req.SubledgerTotal)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) reconcileControl(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	kind := CounterpartyKind(chi.URLParam(r, "kind"))
	if kind != CounterpartyCustomer && kind != CounterpartySupplier {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "kind must be CUSTOMER or SUPPLIER")
		return
	}
	control := r.URL.Query().Get("control")
	if control == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "control query parameter required")
		return
	}

	result, err := h.service.ReconcileControl(r.Context(), orgID, kind, control)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
