package pos

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/bizledger/bizledger/internal/platform/httpx"
	"github.com/bizledger/bizledger/internal/shared"
)

// Handler wires HTTP endpoints for register sessions.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers POS routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sessions", h.open)
	r.Get("/sessions/{id}", h.get)
	r.Post("/sessions/{id}/sales", h.recordSale)
	r.Post("/sessions/{id}/close", h.close)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrSessionAlreadyOpen), errors.Is(err, ErrSessionNotOpen):
		httpx.Problem(w, http.StatusConflict, "Invalid State Transition", err.Error())
	case errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("pos request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "session id must be a uuid")
		return uuid.Nil, false
	}
	return id, true
}

type openRequest struct {
	RegisterID   int64   `json:"registerId" validate:"required"`
	CashierID    int64   `json:"cashierId"`
	OpeningFloat float64 `json:"openingFloat" validate:"gte=0"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	session, err := h.service.OpenSession(r.Context(), OpenInput{
		OrgID:        orgID,
		RegisterID:   req.RegisterID,
		CashierID:    req.CashierID,
		OpeningFloat: req.OpeningFloat,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, session)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	session, err := h.service.GetSession(r.Context(), orgID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

type saleRequest struct {
	Amount float64 `json:"amount" validate:"gt=0"`
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req saleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	session, err := h.service.RecordCashSale(r.Context(), orgID, id, req.Amount)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}

type closeRequest struct {
	CountedCash float64 `json:"countedCash" validate:"gte=0"`
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	session, err := h.service.CloseSession(r.Context(), orgID, id, req.CountedCash)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, session)
}
