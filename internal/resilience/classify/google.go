package classify

import (
	"github.com/omnipost/publisher/internal/core/domain"
)

// ClassifyGoogle maps a Google Business Profile API failure to a canonical
// code. Google errors arrive as {"error": {"code", "status", "message"}}
// where status is an RPC status name like PERMISSION_DENIED.
func ClassifyGoogle(status int, body map[string]any) domain.ErrorCode {
	rpcStatus := nestedString(body, "error", "status")
	message := nestedString(body, "error", "message")

	switch rpcStatus {
	case "UNAUTHENTICATED":
		if containsAny(message, "expired") {
			return domain.ErrAuthExpired
		}
		return domain.ErrAuthInvalid
	case "PERMISSION_DENIED":
		if containsAny(message, "insufficient authentication scopes", "request had insufficient scopes") {
			return domain.ErrScopeMissing
		}
		return domain.ErrPermissionInsufficient
	case "RESOURCE_EXHAUSTED":
		return domain.ErrRateLimit
	case "NOT_FOUND":
		return domain.ErrResourceNotFound
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION":
		return domain.ErrInvalidPayload
	case "UNAVAILABLE":
		return domain.ErrPartnerUnavailable
	case "DEADLINE_EXCEEDED":
		return domain.ErrPartnerTimeout
	}

	if containsAny(message, "token has been expired or revoked") {
		return domain.ErrAuthRevoked
	}

	switch {
	case status == 400:
		return domain.ErrInvalidPayload
	case status == 401:
		return domain.ErrAuthInvalid
	case status == 403:
		return domain.ErrPermissionInsufficient
	case status == 404:
		return domain.ErrResourceNotFound
	case status == 429:
		return domain.ErrRateLimit
	case status >= 500 && status <= 503:
		return domain.ErrPartner5XX
	case status == 504:
		return domain.ErrPartnerTimeout
	case status > 504:
		return domain.ErrPartner5XX
	case status >= 400:
		return domain.ErrInvalidPayload
	default:
		return domain.ErrUnknown
	}
}
