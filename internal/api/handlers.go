package api

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// StatusResponse is the /api/v1/status payload.
type StatusResponse struct {
	Wallet        string           `json:"wallet"`
	NativeBalance string           `json:"native_balance,omitempty"`
	IndexerCursor uint64           `json:"indexer_cursor"`
	Accounts      int64            `json:"accounts"`
	Tasks         map[string]int64 `json:"tasks"`
	PriceAge      string           `json:"price_age,omitempty"`
	PriceAssets   int              `json:"price_assets"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, map[string]string{"error": message})
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "liquidator-bot",
	})
}

// handleStatus handles GET /api/v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	resp := StatusResponse{
		Wallet: s.wallet.ToRaw(),
		Tasks:  map[string]int64{},
	}

	cursor, err := s.cursor.Cursor(ctx)
	if err != nil {
		s.log.Warn("status: reading cursor failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "reading indexer cursor failed")
		return
	}
	resp.IndexerCursor = cursor

	accounts, err := s.accounts.Count(ctx)
	if err != nil {
		s.log.Warn("status: counting accounts failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "counting accounts failed")
		return
	}
	resp.Accounts = accounts

	counts, err := s.tasks.CountByState(ctx)
	if err != nil {
		s.log.Warn("status: counting tasks failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "counting tasks failed")
		return
	}
	for state, n := range counts {
		resp.Tasks[string(state)] = n
	}

	// Balance and prices are advisory, their failure does not fail the
	// status call.
	if balance, err := s.balances.Native(ctx); err == nil {
		resp.NativeBalance = balance.String()
	}
	if snapshot, err := s.prices.Current(); err == nil {
		resp.PriceAge = snapshot.Age(time.Now()).Round(time.Second).String()
		resp.PriceAssets = len(snapshot.Prices)
	}

	respondJSON(w, http.StatusOK, resp)
}
