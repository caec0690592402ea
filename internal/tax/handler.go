package tax

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/bizledger/bizledger/internal/platform/httpx"
)

// Handler exposes the computation engine to callers that need a tax quote
// without issuing a document.
type Handler struct {
	logger    *slog.Logger
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{logger: logger, validator: validator.New()}
}

// MountRoutes registers tax routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/compute", h.compute)
}

type computeRequest struct {
	Profile struct {
		RegistrationID string `json:"registrationId"`
		Region         string `json:"region" validate:"required"`
		SchemeEnabled  bool   `json:"schemeEnabled"`
	} `json:"profile" validate:"required"`
	Counterparty struct {
		RegistrationID string `json:"registrationId"`
		Region         string `json:"region"`
	} `json:"counterparty"`
	Lines []struct {
		TaxableAmount float64 `json:"taxableAmount"`
		Rate          float64 `json:"rate"`
	} `json:"lines" validate:"required,min=1"`
}

type lineTaxResponse struct {
	TaxableAmount float64 `json:"taxableAmount"`
	Rate          float64 `json:"rate"`
	Central       float64 `json:"central"`
	State         float64 `json:"state"`
	Integrated    float64 `json:"integrated"`
	Total         float64 `json:"total"`
}

type computeResponse struct {
	Lines           []lineTaxResponse `json:"lines"`
	TotalCentral    float64           `json:"totalCentral"`
	TotalState      float64           `json:"totalState"`
	TotalIntegrated float64           `json:"totalIntegrated"`
	TotalTax        float64           `json:"totalTax"`
	PlaceOfSupply   string            `json:"placeOfSupply"`
	InterState      bool              `json:"interState"`
}

func (h *Handler) compute(w http.ResponseWriter, r *http.Request) {
	var req computeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	lines := make([]LineInput, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, LineInput{
			TaxableAmount: decimal.NewFromFloat(line.TaxableAmount),
			Rate:          decimal.NewFromFloat(line.Rate),
		})
	}
	doc, err := Compute(
		Profile{
			RegistrationID: req.Profile.RegistrationID,
			Region:         req.Profile.Region,
			SchemeEnabled:  req.Profile.SchemeEnabled,
		},
		lines,
		Counterparty{
			RegistrationID: req.Counterparty.RegistrationID,
			Region:         req.Counterparty.Region,
		},
	)
	if err != nil {
		if errors.Is(err, ErrNegativeAmount) || errors.Is(err, ErrNegativeRate) {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
		h.logger.Error("tax compute failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	resp := computeResponse{
		TotalCentral:    f(doc.TotalCentral),
		TotalState:      f(doc.TotalState),
		TotalIntegrated: f(doc.TotalIntegrated),
		TotalTax:        f(doc.TotalTax),
		PlaceOfSupply:   doc.PlaceOfSupply,
		InterState:      doc.InterState,
	}
	for _, line := range doc.Lines {
		resp.Lines = append(resp.Lines, lineTaxResponse{
			TaxableAmount: f(line.TaxableAmount),
			Rate:          f(line.Rate),
			Central:       f(line.Central),
			State:         f(line.State),
			Integrated:    f(line.Integrated),
			Total:         f(line.Total),
		})
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func f(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
