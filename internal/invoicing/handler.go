package invoicing

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bizledger/bizledger/internal/costing"
	"github.com/bizledger/bizledger/internal/ledger"
	"github.com/bizledger/bizledger/internal/platform/httpx"
	"github.com/bizledger/bizledger/internal/shared"
)

// Handler wires HTTP endpoints for invoices.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	idempotency *shared.IdempotencyStore
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, idempotency *shared.IdempotencyStore) *Handler {
	return &Handler{logger: logger, service: service, idempotency: idempotency, validator: validator.New()}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.issue)
	r.Get("/{id}", h.get)
	r.Post("/{id}/void", h.void)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrNotIssued):
		httpx.Problem(w, http.StatusConflict, "Invalid State Transition", err.Error())
	case errors.Is(err, costing.ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ledger.ErrUnbalanced):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unbalanced Entry", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	case errors.Is(err, ErrNoLines), errors.Is(err, ErrInvalidLine), errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("invoicing request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

type issueLineRequest struct {
	Description string  `json:"description" validate:"required,max=255"`
	ProductID   *int64  `json:"productId"`
	Quantity    float64 `json:"quantity" validate:"gt=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
	TaxRate     float64 `json:"taxRate" validate:"gte=0"`
}

type issueRequest struct {
	CustomerID int64              `json:"customerId" validate:"required"`
	Date       time.Time          `json:"date"`
	Lines      []issueLineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	var req issueRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	// Retried submissions with the same key get a conflict instead of a
	// second invoice.
	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		if err := h.idempotency.CheckAndInsert(r.Context(), idemKey, "invoicing"); err != nil {
			h.respondError(w, err)
			return
		}
	}

	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{
			Description: line.Description,
			ProductID:   line.ProductID,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TaxRate:     line.TaxRate,
		})
	}
	inv, err := h.service.IssueInvoice(r.Context(), IssueInput{
		OrgID:      orgID,
		CustomerID: req.CustomerID,
		Date:       req.Date,
		Lines:      lines,
	})
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			_ = h.idempotency.Delete(r.Context(), idemKey)
		}
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, inv)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be a uuid")
		return
	}
	inv, err := h.service.GetInvoice(r.Context(), orgID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	invoices, err := h.service.ListInvoices(r.Context(), orgID, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoices)
}

func (h *Handler) void(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "invoice id must be a uuid")
		return
	}
	inv, err := h.service.VoidInvoice(r.Context(), orgID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, inv)
}
