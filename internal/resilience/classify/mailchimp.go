package classify

import (
	"github.com/omnipost/publisher/internal/core/domain"
)

// ClassifyMailchimp maps a Mailchimp marketing-API failure to a canonical
// code. Mailchimp uses problem-detail bodies: {"status", "title", "detail"}.
func ClassifyMailchimp(status int, body map[string]any) domain.ErrorCode {
	title := nestedString(body, "title")
	detail := nestedString(body, "detail")

	if containsAny(title, "api key invalid", "invalid token") {
		return domain.ErrAuthInvalid
	}
	if containsAny(title, "api key expired") || containsAny(detail, "token has expired") {
		return domain.ErrAuthExpired
	}
	if containsAny(title, "user disabled", "account disabled") {
		return domain.ErrAppSuspended
	}
	if containsAny(title, "forbidden") || containsAny(detail, "does not have access") {
		return domain.ErrPermissionInsufficient
	}
	if containsAny(title, "compliance") {
		return domain.ErrAppSuspended
	}
	if containsAny(title, "too many requests") {
		return domain.ErrRateLimit
	}
	if containsAny(title, "invalid resource", "schema describes") {
		return domain.ErrInvalidPayload
	}
	if containsAny(title, "resource not found") {
		return domain.ErrResourceNotFound
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
