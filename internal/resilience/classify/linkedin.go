package classify

import (
	"github.com/omnipost/publisher/internal/core/domain"
)

// ClassifyLinkedIn maps a LinkedIn REST failure to a canonical code.
// LinkedIn errors arrive as {"message", "serviceErrorCode", "status"}.
func ClassifyLinkedIn(status int, body map[string]any) domain.ErrorCode {
	message := nestedString(body, "message")
	svcCode, hasSvcCode := nestedNumber(body, "serviceErrorCode")

	if hasSvcCode {
		switch svcCode {
		case 65600: // invalid access token
			return domain.ErrAuthInvalid
		case 65601: // token revoked
			return domain.ErrAuthRevoked
		case 65602: // token expired
			return domain.ErrAuthExpired
		case 100: // ACCESS_DENIED
			return domain.ErrPermissionInsufficient
		}
	}

	if containsAny(message, "expired") {
		return domain.ErrAuthExpired
	}
	if containsAny(message, "revoked") {
		return domain.ErrAuthRevoked
	}
	if containsAny(message, "insufficient permissions", "access denied", "not authorized") {
		return domain.ErrPermissionInsufficient
	}
	if containsAny(message, "required permission", "missing scope") {
		return domain.ErrScopeMissing
	}
	if containsAny(message, "application is disabled", "app is restricted") {
		return domain.ErrAppSuspended
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
