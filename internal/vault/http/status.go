package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
	"github.com/brokerops/portalvault/internal/vault/service"
	"github.com/brokerops/portalvault/pkg/httpx"
)

// StatusHandler serves GET /v1/tokens/status. It answers whether a usable
// token exists for the account without ever returning the token value.
type StatusHandler struct {
	TokenService *service.TokenService
}

type StatusResponse struct {
	HasValidToken bool       `json:"has_valid_token"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ExtractedAt   *time.Time `json:"extracted_at,omitempty"`
}

func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountIDParam(w, r)
	if !ok {
		return
	}

	status, err := h.TokenService.Status(r.Context(), accountID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, StatusResponse{
		HasValidToken: status.HasValidToken,
		ExpiresAt:     status.ExpiresAt,
		ExtractedAt:   status.ExtractedAt,
	})
}

// accountIDParam validates the account_id query parameter, rejecting
// malformed identifiers before any store work.
func accountIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	accountID := strings.TrimSpace(r.URL.Query().Get("account_id"))
	if !domain.ValidAccountID(accountID) {
		httpx.WriteError(w, http.StatusBadRequest,
			string(domain.KindValidation), "account_id is missing or malformed")
		return "", false
	}
	return accountID, true
}
