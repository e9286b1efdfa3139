package vaultsdk

import "time"

// AcquireRequest carries the credentials for one acquisition attempt. Exactly
// one of OTPCode/OTPSecret may be set; both empty is valid for accounts
// without a one-time-code challenge.
type AcquireRequest struct {
	AccountID string
	Secret    string
	OTPCode   string
	OTPSecret string
}

// AcquireResponse is the success payload of POST /v1/tokens: the stored
// record's identity and validity window. The token value itself is not part
// of the HTTP surface.
type AcquireResponse struct {
	RecordID    string    `json:"record_id"`
	AccountID   string    `json:"account_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExtractedAt time.Time `json:"extracted_at"`
}

// StatusResponse is the payload of GET /v1/tokens/status. It never carries
// the token value.
type StatusResponse struct {
	HasValidToken bool       `json:"has_valid_token"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ExtractedAt   *time.Time `json:"extracted_at,omitempty"`
}

// HistoryEntry is one record in GET /v1/tokens/history; metadata only.
type HistoryEntry struct {
	RecordID    string    `json:"record_id"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExtractedAt time.Time `json:"extracted_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// HistoryResponse is the payload of GET /v1/tokens/history.
type HistoryResponse struct {
	Tokens []HistoryEntry `json:"tokens"`
}

// HealthResponse is the payload of the livez/readyz probes.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}
