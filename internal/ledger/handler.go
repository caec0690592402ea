package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bizledger/bizledger/internal/platform/httpx"
	"github.com/bizledger/bizledger/internal/shared"
)

// Handler wires HTTP endpoints for the chart of accounts and journal.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Post("/", h.createAccount)
		r.Put("/{id}", h.updateAccount)
		r.Delete("/{id}", h.deleteAccount)
		r.Post("/{id}/activate", h.setActive(true))
		r.Post("/{id}/deactivate", h.setActive(false))
		r.Get("/{id}/balance", h.accountBalance)
	})
	r.Route("/entries", func(r chi.Router) {
		r.Post("/", h.createEntry)
		r.Get("/{id}", h.getEntry)
		r.Put("/{id}", h.updateDraft)
		r.Delete("/{id}", h.deleteDraft)
		r.Post("/{id}/post", h.postEntry)
		r.Post("/{id}/void", h.voidEntry)
	})
}

type accountRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=255"`
	Type     string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	SubType  string `json:"subType" validate:"max=64"`
	ParentID *int64 `json:"parentId"`
}

type lineRequest struct {
	AccountID   int64   `json:"accountId" validate:"required"`
	Debit       float64 `json:"debit" validate:"gte=0"`
	Credit      float64 `json:"credit" validate:"gte=0"`
	Description string  `json:"description" validate:"max=255"`
}

type entryRequest struct {
	Date        time.Time     `json:"date"`
	Description string        `json:"description" validate:"max=255"`
	Status      string        `json:"status" validate:"omitempty,oneof=DRAFT POSTED"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

func (h *Handler) orgID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
	}
	return orgID, ok
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// respondError maps ledger sentinels onto problem responses so every
// rejected mutation names the invariant that failed.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrEntryNotFound), errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode), errors.Is(err, ErrAccountInUse):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNotDraft), errors.Is(err, ErrNotPosted), errors.Is(err, ErrAlreadyVoid):
		httpx.Problem(w, http.StatusConflict, "Invalid State Transition", err.Error())
	case errors.Is(err, ErrUnbalanced):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unbalanced Entry", err.Error())
	case errors.Is(err, ErrLineBothSides), errors.Is(err, ErrLineNegative), errors.Is(err, ErrNoLines),
		errors.Is(err, ErrAccountTypeMismatch), errors.Is(err, ErrAccountCycle),
		errors.Is(err, ErrSystemAccount), errors.Is(err, ErrAccountInactive),
		errors.Is(err, shared.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("ledger request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	accounts, err := h.service.ListAccounts(r.Context(), orgID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accounts)
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	account, err := h.service.CreateAccount(r.Context(), AccountInput{
		OrgID:    orgID,
		Code:     req.Code,
		Name:     req.Name,
		Type:     AccountType(req.Type),
		SubType:  req.SubType,
		ParentID: req.ParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	account, err := h.service.UpdateAccount(r.Context(), orgID, id, AccountInput{
		OrgID:    orgID,
		Code:     req.Code,
		Name:     req.Name,
		Type:     AccountType(req.Type),
		SubType:  req.SubType,
		ParentID: req.ParentID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	if err := h.service.DeleteAccount(r.Context(), orgID, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, ok := h.orgID(w, r)
		if !ok {
			return
		}
		id, err := pathID(r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
			return
		}
		if err := h.service.SetAccountActive(r.Context(), orgID, id, active); err != nil {
			h.respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "account id must be numeric")
		return
	}
	balance, err := h.service.AccountBalance(r.Context(), orgID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accountId": id, "balance": balance})
}

func (req entryRequest) toInput(orgID int64) EntryInput {
	status := EntryStatus(req.Status)
	if status == "" {
		status = EntryStatusDraft
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Debit,
			Credit:      line.Credit,
			Description: line.Description,
		})
	}
	return EntryInput{
		OrgID:       orgID,
		Date:        req.Date,
		Description: req.Description,
		Status:      status,
		Lines:       lines,
	}
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entry, err := h.service.CreateEntry(r.Context(), req.toInput(orgID))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) getEntry(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	entry, err := h.service.GetEntry(r.Context(), orgID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) updateDraft(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := req.toInput(orgID)
	entry, err := h.service.UpdateDraftEntry(r.Context(), orgID, id, input.Date, input.Description, input.Lines)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) deleteDraft(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	if err := h.service.DeleteDraftEntry(r.Context(), orgID, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) postEntry(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	entry, err := h.service.PostEntry(r.Context(), orgID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) voidEntry(w http.ResponseWriter, r *http.Request) {
	orgID, ok := h.orgID(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "entry id must be numeric")
		return
	}
	reversal, err := h.service.VoidEntry(r.Context(), orgID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, reversal)
}
