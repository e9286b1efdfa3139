package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/brokerops/portalvault/internal/vault/domain"
	"github.com/brokerops/portalvault/internal/vault/service"
	"github.com/brokerops/portalvault/pkg/httpx"
	"github.com/brokerops/portalvault/pkg/slogx"
)

// AcquireHandler serves POST /v1/tokens.
// Accepts application/x-www-form-urlencoded so credentials never appear in
// the URL and the rate limiter can key on the account field.
type AcquireHandler struct {
	AcquireService *service.AcquireService
	// Wait bounds how long the handler blocks on the acquisition future before
	// giving up with a timeout. The underlying attempt keeps running and, on
	// success, still persists its token.
	Wait time.Duration
}

// AcquireResponse is the success payload: the new record's identity and the
// token's validity window. The token value itself never crosses this surface;
// consumers read it from the store through their own channel.
type AcquireResponse struct {
	RecordID    string    `json:"record_id"`
	AccountID   string    `json:"account_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExtractedAt time.Time `json:"extracted_at"`
}

func (h *AcquireHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		httpx.WriteError(w, http.StatusBadRequest,
			string(domain.KindValidation), "content type must be application/x-www-form-urlencoded")
		return
	}

	if err := r.ParseForm(); err != nil {
		httpx.WriteError(w, http.StatusBadRequest,
			string(domain.KindValidation), "malformed form body")
		return
	}

	creds := domain.Credentials{
		AccountID: strings.TrimSpace(r.Form.Get("account_id")),
		Secret:    r.Form.Get("secret"),
		OTPCode:   strings.TrimSpace(r.Form.Get("otp_code")),
		OTPSecret: strings.TrimSpace(r.Form.Get("otp_secret")),
	}

	future, err := h.AcquireService.Acquire(creds)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, h.Wait)
	defer cancel()

	res := future.Await(waitCtx)
	if res.Err != nil {
		kind := domain.KindOf(res.Err)
		log.Warn("acquisition request failed",
			"account", domain.MaskAccountID(creds.AccountID),
			"kind", string(kind),
		)
		writeDomainError(w, res.Err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, AcquireResponse{
		RecordID:    res.RecordID.String(),
		AccountID:   res.Token.AccountID,
		ExpiresAt:   res.Token.ExpiresAt,
		ExtractedAt: res.Token.IssuedAt,
	})
}
