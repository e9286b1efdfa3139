package http

import (
	"net/http"

	"github.com/brokerops/portalvault/internal/vault/domain"
	"github.com/brokerops/portalvault/pkg/httpx"
)

// statusForKind maps the error taxonomy onto HTTP status codes. The kind
// string itself is the machine-readable `error` field in the body.
func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindMFARequired, domain.KindLoginFailed:
		return http.StatusUnauthorized
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	case domain.KindNavigation:
		return http.StatusBadGateway
	case domain.KindProvisioning, domain.KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError emits the classified error. Only the sanitized message
// crosses the wire; wrapped causes stay in the logs.
func writeDomainError(w http.ResponseWriter, err error) {
	kind := domain.KindOf(err)
	httpx.WriteError(w, statusForKind(kind), string(kind), domain.SafeMessage(err))
}
