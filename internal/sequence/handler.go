package sequence

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bizledger/bizledger/internal/platform/db"
	"github.com/bizledger/bizledger/internal/platform/httpx"
	"github.com/bizledger/bizledger/internal/shared"
)

// Handler allocates document numbers for callers that manage their own
// records. Document services allocate inline instead; this endpoint burns a
// number per call by design of the counter.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	pool      *pgxpool.Pool
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, pool *pgxpool.Pool) *Handler {
	return &Handler{logger: logger, service: service, pool: pool, validator: validator.New()}
}

// MountRoutes registers sequence routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/next", h.next)
}

var knownSeries = map[string]Series{
	"INVOICE": SeriesInvoice,
	"JOURNAL": SeriesJournal,
	"EXPENSE": SeriesExpense,
	"POS":     SeriesPOS,
}

type nextRequest struct {
	Series string `json:"series" validate:"required,oneof=INVOICE JOURNAL EXPENSE POS"`
}

func (h *Handler) next(w http.ResponseWriter, r *http.Request) {
	orgID, ok := shared.OrgFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "organization scope required")
		return
	}
	var req nextRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var number string
	err := db.WithTx(r.Context(), h.pool, func(tx pgx.Tx) error {
		var err error
		number, err = h.service.Next(r.Context(), NewTxStore(tx), orgID, knownSeries[req.Series])
		return err
	})
	if err != nil {
		if errors.Is(err, shared.ErrConflict) {
			httpx.Problem(w, http.StatusConflict, "Allocation Conflict", err.Error())
			return
		}
		h.logger.Error("sequence allocation failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"number": number})
}
