package classify

import (
	"github.com/omnipost/publisher/internal/core/domain"
)

// ClassifyMeta maps a Meta Graph API failure to a canonical code. Graph
// errors arrive as {"error": {"type", "code", "error_subcode", "message",
// "is_transient"}} and frequently ride on a 200 response, so the vendor
// checks must run before the status ladder.
func ClassifyMeta(status int, body map[string]any) domain.ErrorCode {
	errType := nestedString(body, "error", "type")
	message := nestedString(body, "error", "message")
	code, hasCode := nestedNumber(body, "error", "code")
	subcode, _ := nestedNumber(body, "error", "error_subcode")

	if errType == "OAuthException" || (hasCode && code == 190) {
		switch subcode {
		case 463, 492: // expired, session invalidated by password change
			return domain.ErrAuthExpired
		case 458: // app not installed
			return domain.ErrAppDeauthorized
		case 460, 467: // password changed / token invalidated
			return domain.ErrAuthRevoked
		}
		if containsAny(message, "expired", "session has expired") {
			return domain.ErrAuthExpired
		}
		if containsAny(message, "not authorized", "has not authorized") {
			return domain.ErrAppDeauthorized
		}
		return domain.ErrAuthInvalid
	}

	if hasCode {
		switch {
		case code == 10 || (code >= 200 && code < 300):
			// Graph permission error family
			return domain.ErrPermissionInsufficient
		case code == 4 || code == 17 || code == 32 || code == 613:
			return domain.ErrRateLimit
		case code == 100:
			return domain.ErrInvalidPayload
		case code == 368: // temporarily blocked for policy violations
			return domain.ErrAppSuspended
		}
	}

	if containsAny(message, "missing permission", "requires the extended permission") {
		return domain.ErrScopeMissing
	}
	if containsAny(message, "app is suspended", "application has been deleted") {
		return domain.ErrAppSuspended
	}
	if containsAny(message, "rate limit", "too many calls") {
		return domain.ErrRateLimit
	}
	if transient, _ := nested(body, "error", "is_transient").(bool); transient {
		return domain.ErrPartnerUnavailable
	}

	// Fallback ladder, duplicated per platform so vendor checks stay first.
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
