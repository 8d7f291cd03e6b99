package domain

// ErrorCode is a canonical failure category. Every platform-specific error is
// mapped into one of these before any retry or pause decision is made.
type ErrorCode string

const (
	// Credential failures
	ErrAuthExpired            ErrorCode = "AUTH_EXPIRED"
	ErrAuthInvalid            ErrorCode = "AUTH_INVALID"
	ErrAuthRevoked            ErrorCode = "AUTH_REVOKED"
	ErrPermissionInsufficient ErrorCode = "PERMISSION_INSUFFICIENT"
	ErrPermissionChanged      ErrorCode = "PERMISSION_CHANGED"
	ErrScopeMissing           ErrorCode = "SCOPE_MISSING"

	// Platform-policy failures
	ErrAppDeauthorized ErrorCode = "APP_DEAUTHORIZED"
	ErrAppSuspended    ErrorCode = "APP_SUSPENDED"

	// Transient failures
	ErrRateLimit          ErrorCode = "RATE_LIMIT_429"
	ErrPartner5XX         ErrorCode = "PARTNER_5XX"
	ErrPartnerTimeout     ErrorCode = "PARTNER_TIMEOUT"
	ErrPartnerUnavailable ErrorCode = "PARTNER_UNAVAILABLE"

	// Client failures
	ErrInvalidPayload       ErrorCode = "INVALID_PAYLOAD"
	ErrResourceNotFound     ErrorCode = "RESOURCE_NOT_FOUND"
	ErrResourceDeleted      ErrorCode = "RESOURCE_DELETED"
	ErrUnsupportedOperation ErrorCode = "UNSUPPORTED_OPERATION"

	// Network failures
	ErrNetwork ErrorCode = "NETWORK_ERROR"
	ErrTimeout ErrorCode = "TIMEOUT"
	ErrTLS     ErrorCode = "TLS_ERROR"

	// Webhook failures
	ErrWebhookDelivery  ErrorCode = "WEBHOOK_DELIVERY_FAILED"
	ErrWebhookParse     ErrorCode = "WEBHOOK_PARSE_ERROR"
	ErrWebhookSignature ErrorCode = "WEBHOOK_SIGNATURE_INVALID"

	ErrUnknown  ErrorCode = "UNKNOWN"
	ErrInternal ErrorCode = "INTERNAL_ERROR"
)

// AllErrorCodes enumerates the closed set of canonical codes.
var AllErrorCodes = []ErrorCode{
	ErrAuthExpired, ErrAuthInvalid, ErrAuthRevoked,
	ErrPermissionInsufficient, ErrPermissionChanged, ErrScopeMissing,
	ErrAppDeauthorized, ErrAppSuspended,
	ErrRateLimit, ErrPartner5XX, ErrPartnerTimeout, ErrPartnerUnavailable,
	ErrInvalidPayload, ErrResourceNotFound, ErrResourceDeleted, ErrUnsupportedOperation,
	ErrNetwork, ErrTimeout, ErrTLS,
	ErrWebhookDelivery, ErrWebhookParse, ErrWebhookSignature,
	ErrUnknown, ErrInternal,
}
