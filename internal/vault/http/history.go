package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/brokerops/portalvault/internal/vault/service"
	"github.com/brokerops/portalvault/pkg/httpx"
)

// HistoryHandler serves GET /v1/tokens/history. History entries carry record
// metadata only; token values are deliberately omitted from this surface.
type HistoryHandler struct {
	TokenService *service.TokenService
}

type HistoryEntry struct {
	RecordID    string    `json:"record_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExtractedAt time.Time `json:"extracted_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type HistoryResponse struct {
	Tokens []HistoryEntry `json:"tokens"`
}

func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	tokens, err := h.TokenService.GetHistory(r.Context(), accountID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	entries := make([]HistoryEntry, 0, len(tokens))
	for _, tok := range tokens {
		entries = append(entries, HistoryEntry{
			RecordID:    tok.RecordID,
			ExpiresAt:   tok.ExpiresAt,
			ExtractedAt: tok.ExtractedAt,
			CreatedAt:   tok.CreatedAt,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, HistoryResponse{Tokens: entries})
}
