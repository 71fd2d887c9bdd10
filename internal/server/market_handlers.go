package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/niveshlabs/folio/internal/clients/quotes"
	"github.com/niveshlabs/folio/internal/clients/stream"
	"github.com/niveshlabs/folio/internal/domain"
)

// MarketHandlers proxies quote lookups and exposes the feed state.
type MarketHandlers struct {
	quotes *quotes.Client
	stream *stream.Client
	log    zerolog.Logger
}

// NewMarketHandlers creates a new market handlers instance
func NewMarketHandlers(quoteClient *quotes.Client, streamClient *stream.Client, log zerolog.Logger) *MarketHandlers {
	return &MarketHandlers{
		quotes: quoteClient,
		stream: streamClient,
		log:    log.With().Str("handler", "market").Logger(),
	}
}

// RegisterRoutes registers market routes
func (h *MarketHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/market", func(r chi.Router) {
		r.Get("/quote/{symbol}", h.HandleGetQuote)
		r.Get("/stream/status", h.HandleStreamStatus)
		r.Post("/stream/symbols", h.HandleSetSymbols)
	})
}

// HandleGetQuote fetches one current quote.
func (h *MarketHandlers) HandleGetQuote(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	result, err := h.quotes.FetchMany(r.Context(), []string{symbol})
	if err != nil {
		var authErr *domain.AuthError
		if errors.As(err, &authErr) {
			h.writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	quote, ok := result[symbol]
	if !ok {
		h.writeError(w, http.StatusNotFound, "no quote available for "+symbol)
		return
	}
	h.writeJSON(w, http.StatusOK, quote)
}

// HandleStreamStatus reports the last known feed connectivity, so clients can
// flag stale or estimated prices.
func (h *MarketHandlers) HandleStreamStatus(w http.ResponseWriter, r *http.Request) {
	status := h.stream.Status()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected": h.stream.IsConnected(),
		"feed":      status,
	})
}

type setSymbolsRequest struct {
	Symbols []string `json:"symbols"`
}

// HandleSetSymbols replaces the feed subscription set.
func (h *MarketHandlers) HandleSetSymbols(w http.ResponseWriter, r *http.Request) {
	var req setSymbolsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.stream.SetSymbols(req.Symbols)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "subscribed",
		"symbols": req.Symbols,
	})
}

func (h *MarketHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *MarketHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
