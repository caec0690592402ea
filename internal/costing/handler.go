package costing

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bizledger/bizledger/internal/platform/httpx"
	"github.com/bizledger/bizledger/internal/shared"
)

// Handler wires HTTP endpoints for stock lots and consumption.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receive", h.receive)
	r.Post("/consume", h.consume)
	r.Post("/restore", h.restore)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost), errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrLotNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyRestored):
		httpx.Problem(w, http.StatusConflict, "Already Restored", err.Error())
	default:
		h.logger.Error("costing request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

type receiveRequest struct {
	ProductID int64     `json:"productId" validate:"required"`
	Source    string    `json:"source" validate:"required,oneof=PURCHASE ADJUSTMENT OPENING RETURN"`
	LotDate   time.Time `json:"lotDate"`
	UnitCost  float64   `json:"unitCost" validate:"gte=0"`
	Quantity  float64   `json:"quantity" validate:"gt=0"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	lot, err := h.service.Receive(r.Context(), ReceiveInput{
		OrgID:     orgID,
		ProductID: req.ProductID,
		Source:    LotSource(req.Source),
		LotDate:   req.LotDate,
		UnitCost:  req.UnitCost,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, lot)
}

type consumeRequest struct {
	ProductID int64     `json:"productId" validate:"required"`
	Quantity  float64   `json:"quantity" validate:"gt=0"`
	AsOf      time.Time `json:"asOf"`
	RefKind   string    `json:"refKind" validate:"required,max=32"`
	RefID     uuid.UUID `json:"refId" validate:"required"`
}

func (h *Handler) consume(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	var req consumeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	result, err := h.service.Consume(r.Context(), ConsumeInput{
		OrgID:     orgID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
		AsOf:      req.AsOf,
		RefKind:   req.RefKind,
		RefID:     req.RefID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type restoreRequest struct {
	RefKind string `json:"refKind" validate:"required,max=32"`
	RefID   string `json:"refId" validate:"required,uuid"`
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Restore(r.Context(), req.RefKind, req.RefID); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
