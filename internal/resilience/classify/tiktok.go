package classify

import (
	"github.com/omnipost/publisher/internal/core/domain"
)

// ClassifyTikTok maps a TikTok open-API failure to a canonical code. TikTok
// wraps errors as {"error": {"code", "message"}} where code is a string; a
// non-"ok" code can arrive on an HTTP 200, so it must be checked first.
func ClassifyTikTok(status int, body map[string]any) domain.ErrorCode {
	code := nestedString(body, "error", "code")
	message := nestedString(body, "error", "message")

	if code != "" && code != "ok" {
		switch code {
		case "access_token_invalid", "40100":
			return domain.ErrAuthInvalid
		case "access_token_expired", "40101":
			return domain.ErrAuthExpired
		case "40102": // token revoked by user
			return domain.ErrAuthRevoked
		case "40002", "scope_not_authorized":
			return domain.ErrPermissionInsufficient
		case "scope_permission_missed":
			return domain.ErrScopeMissing
		case "spam_risk_too_many_posts", "rate_limit_exceeded":
			return domain.ErrRateLimit
		case "invalid_params", "40001":
			return domain.ErrInvalidPayload
		case "internal_error":
			return domain.ErrPartner5XX
		}
	}

	if containsAny(message, "token is expired") {
		return domain.ErrAuthExpired
	}
	if containsAny(message, "token is invalid") {
		return domain.ErrAuthInvalid
	}
	if containsAny(message, "permission", "scope") {
		return domain.ErrPermissionInsufficient
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
