// Package handlers exposes performance bucket series over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/niveshlabs/folio/internal/domain"
	"github.com/niveshlabs/folio/internal/modules/performance"
	"github.com/niveshlabs/folio/internal/modules/valuation"
)

// Handler handles performance HTTP requests
type Handler struct {
	engine *performance.Engine
	valuer *valuation.Service
	log    zerolog.Logger
}

// NewHandler creates a new performance handler
func NewHandler(engine *performance.Engine, valuer *valuation.Service, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		valuer: valuer,
		log:    log.With().Str("handler", "performance").Logger(),
	}
}

// RegisterRoutes registers performance routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios/{portfolioID}/performance", h.HandleGetPerformance)
}

// HandleGetPerformance returns the bucket series for ?period=daily|monthly|yearly
// (default daily), plus summary statistics over the series.
func (h *Handler) HandleGetPerformance(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	period := performance.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = performance.PeriodDaily
	}
	if !period.Valid() {
		h.writeError(w, http.StatusBadRequest, "period must be daily, monthly or yearly")
		return
	}

	// Interpolated mode needs current prices; the valuation also supplies
	// the purchase-date anchors.
	v, err := h.valuer.ValuePortfolio(r.Context(), portfolioID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	series := make([]performance.HoldingSeries, 0, len(v.Holdings))
	for _, hv := range v.Holdings {
		series = append(series, performance.HoldingSeries{
			Quantity:     hv.Quantity,
			AvgCost:      hv.AvgCost,
			CurrentPrice: hv.CurrentPrice,
			PurchaseDate: hv.PurchaseDate,
		})
	}

	buckets, err := h.engine.Compute(portfolioID, series, period)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"period":  period,
		"buckets": buckets,
		"summary": performance.Summarize(buckets, period),
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
