// Package handlers provides HTTP handlers for holdings and transactions.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/niveshlabs/folio/internal/domain"
	"github.com/niveshlabs/folio/internal/modules/portfolio"
	"github.com/niveshlabs/folio/internal/modules/valuation"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	holdings     *portfolio.HoldingRepository
	transactions *portfolio.TransactionRepository
	valuer       *valuation.Service
	log          zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(
	holdings *portfolio.HoldingRepository,
	transactions *portfolio.TransactionRepository,
	valuer *valuation.Service,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		holdings:     holdings,
		transactions: transactions,
		valuer:       valuer,
		log:          log.With().Str("handler", "portfolio").Logger(),
	}
}

// HandleListHoldings returns all holdings of a portfolio.
func (h *Handler) HandleListHoldings(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	holdings, err := h.holdings.GetByPortfolio(portfolioID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if holdings == nil {
		holdings = []domain.Holding{}
	}
	h.writeJSON(w, http.StatusOK, holdings)
}

type holdingRequest struct {
	Symbol       string  `json:"symbol"`
	AssetType    string  `json:"asset_type"`
	Quantity     string  `json:"quantity"`
	AvgCost      string  `json:"avg_cost"`
	PurchaseDate *string `json:"purchase_date,omitempty"`
}

// HandleCreateHolding adds a holding to a portfolio.
func (h *Handler) HandleCreateHolding(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	var req holdingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	holding, err := req.toHolding(portfolioID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.holdings.Create(holding); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, holding)
}

func (req *holdingRequest) toHolding(portfolioID string) (*domain.Holding, error) {
	assetType := domain.AssetType(req.AssetType)
	if !assetType.Valid() {
		return nil, &domain.ValidationError{Field: "asset_type", Reason: "unknown asset type " + req.AssetType}
	}
	if req.Symbol == "" {
		return nil, &domain.ValidationError{Field: "symbol", Reason: "must not be empty"}
	}

	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil || quantity.IsNegative() {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be a non-negative decimal"}
	}
	avgCost, err := decimal.NewFromString(req.AvgCost)
	if err != nil || avgCost.IsNegative() {
		return nil, &domain.ValidationError{Field: "avg_cost", Reason: "must be a non-negative decimal"}
	}

	holding := &domain.Holding{
		PortfolioID: portfolioID,
		Symbol:      req.Symbol,
		AssetType:   assetType,
		Quantity:    quantity,
		AvgCost:     avgCost,
	}
	if req.PurchaseDate != nil {
		t, err := parseDate(*req.PurchaseDate)
		if err != nil {
			return nil, &domain.ValidationError{Field: "purchase_date", Reason: "must be YYYY-MM-DD or RFC3339"}
		}
		holding.PurchaseDate = &t
	}
	return holding, nil
}

// HandleDeleteHolding removes a holding.
func (h *Handler) HandleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	holdingID := chi.URLParam(r, "holdingID")

	if err := h.holdings.Delete(portfolioID, holdingID); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleUpdateManualPrice writes a manual price override for one holding.
// The price arrives as the manual_price query parameter.
func (h *Handler) HandleUpdateManualPrice(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")
	holdingID := chi.URLParam(r, "holdingID")

	raw := r.URL.Query().Get("manual_price")
	price, err := decimal.NewFromString(raw)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "manual_price must be a decimal")
		return
	}

	holding, err := h.valuer.UpdateManualNAV(portfolioID, holdingID, price)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, holding)
}

type transactionRequest struct {
	Symbol   string `json:"symbol"`
	Type     string `json:"type"`
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
	Date     string `json:"date"`
}

// HandleRecordTransaction appends a transaction to a portfolio.
func (h *Handler) HandleRecordTransaction(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	var req transactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	txType := domain.TransactionType(req.Type)
	if !txType.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown transaction type "+req.Type)
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil || quantity.IsNegative() {
		h.writeError(w, http.StatusBadRequest, "quantity must be a non-negative decimal")
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil || price.IsNegative() {
		h.writeError(w, http.StatusBadRequest, "price must be a non-negative decimal")
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD or RFC3339")
		return
	}

	tx := &domain.Transaction{
		PortfolioID: portfolioID,
		Symbol:      req.Symbol,
		Type:        txType,
		Quantity:    quantity,
		Price:       price,
		Date:        date,
	}
	if err := h.transactions.Record(tx); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, tx)
}

// HandleListTransactions returns a portfolio's transactions, newest first.
func (h *Handler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	txs, err := h.transactions.GetByPortfolio(portfolioID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		if limit < len(txs) {
			txs = txs[:limit]
		}
	}
	h.writeJSON(w, http.StatusOK, txs)
}

// writeDomainError maps the error taxonomy onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		notFound   *domain.NotFoundError
		validation *domain.ValidationError
	)
	switch {
	case errors.As(err, &notFound):
		h.writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
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

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
