// Package taxonomy is the static table mapping canonical error codes to
// recovery metadata. It is pure lookup: no side effects, no I/O.
package taxonomy

import (
	"github.com/omnipost/publisher/internal/core/domain"
)

// Action tells the caller what to do with a classified failure.
type Action string

const (
	ActionRetry          Action = "retry"
	ActionReauthenticate Action = "reauthenticate"
	ActionEscalate       Action = "escalate"
	ActionManualReview   Action = "manual_review"
	ActionAlert          Action = "alert"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Entry is the recovery metadata for one canonical error code.
// Invariant: Retryable == false implies MaxRetries == 0.
type Entry struct {
	Code              domain.ErrorCode
	Action            Action
	Severity          Severity
	Retryable         bool
	MaxRetries        int
	BackoffBaseMs     int
	BackoffMultiplier float64
	UserMessage       string
	SystemMessage     string
	RequiresReauth    bool
	PausesChannel     bool
}

var entries = map[domain.ErrorCode]Entry{
	domain.ErrAuthExpired: {
		Code: domain.ErrAuthExpired, Action: ActionReauthenticate, Severity: SeverityCritical,
		UserMessage:    "Your connection has expired. Please reconnect your account.",
		SystemMessage:  "access token expired and refresh failed",
		RequiresReauth: true, PausesChannel: true,
	},
	domain.ErrAuthInvalid: {
		Code: domain.ErrAuthInvalid, Action: ActionReauthenticate, Severity: SeverityCritical,
		UserMessage:    "Your connection is no longer valid. Please reconnect your account.",
		SystemMessage:  "access token rejected by platform",
		RequiresReauth: true, PausesChannel: true,
	},
	domain.ErrAuthRevoked: {
		Code: domain.ErrAuthRevoked, Action: ActionReauthenticate, Severity: SeverityCritical,
		UserMessage:    "Access to your account was revoked. Please reconnect to continue publishing.",
		SystemMessage:  "token revoked by user or platform",
		RequiresReauth: true, PausesChannel: true,
	},
	domain.ErrPermissionInsufficient: {
		Code: domain.ErrPermissionInsufficient, Action: ActionReauthenticate, Severity: SeverityCritical,
		UserMessage:    "We don't have permission to publish to this account. Please reconnect and grant publishing access.",
		SystemMessage:  "granted permissions insufficient for requested operation",
		RequiresReauth: true, PausesChannel: true,
	},
	domain.ErrPermissionChanged: {
		Code: domain.ErrPermissionChanged, Action: ActionReauthenticate, Severity: SeverityCritical,
		UserMessage:    "Your account permissions changed. Please reconnect to restore publishing.",
		SystemMessage:  "platform reports permission set changed since grant",
		RequiresReauth: true, PausesChannel: true,
	},
	domain.ErrScopeMissing: {
		Code: domain.ErrScopeMissing, Action: ActionReauthenticate, Severity: SeverityCritical,
		UserMessage:    "A required permission is missing. Please reconnect and approve all requested permissions.",
		SystemMessage:  "OAuth scope missing for requested operation",
		RequiresReauth: true, PausesChannel: true,
	},

	domain.ErrAppDeauthorized: {
		Code: domain.ErrAppDeauthorized, Action: ActionEscalate, Severity: SeverityCritical,
		UserMessage:   "Publishing to this platform is temporarily unavailable. Our team has been notified.",
		SystemMessage: "platform app deauthorized; user cannot self-resolve",
		PausesChannel: true,
	},
	domain.ErrAppSuspended: {
		Code: domain.ErrAppSuspended, Action: ActionEscalate, Severity: SeverityCritical,
		UserMessage:   "Publishing to this platform is temporarily unavailable. Our team has been notified.",
		SystemMessage: "platform app suspended; escalate to support",
		PausesChannel: true,
	},

	domain.ErrRateLimit: {
		Code: domain.ErrRateLimit, Action: ActionRetry, Severity: SeverityWarning,
		Retryable: true, MaxRetries: 4, BackoffBaseMs: 1000, BackoffMultiplier: 3.0,
		UserMessage:   "The platform is busy. Your post will be retried automatically.",
		SystemMessage: "rate limited (429); backing off",
	},
	domain.ErrPartner5XX: {
		Code: domain.ErrPartner5XX, Action: ActionRetry, Severity: SeverityError,
		Retryable: true, MaxRetries: 3, BackoffBaseMs: 2000, BackoffMultiplier: 2.0,
		UserMessage:   "The platform had a temporary problem. Your post will be retried automatically.",
		SystemMessage: "partner returned 5xx",
	},
	domain.ErrPartnerTimeout: {
		Code: domain.ErrPartnerTimeout, Action: ActionRetry, Severity: SeverityWarning,
		Retryable: true, MaxRetries: 3, BackoffBaseMs: 500, BackoffMultiplier: 2.0,
		UserMessage:   "The platform is responding slowly. Your post will be retried automatically.",
		SystemMessage: "partner call timed out (504)",
	},
	domain.ErrPartnerUnavailable: {
		Code: domain.ErrPartnerUnavailable, Action: ActionRetry, Severity: SeverityError,
		Retryable: true, MaxRetries: 3, BackoffBaseMs: 5000, BackoffMultiplier: 2.0,
		UserMessage:   "The platform is temporarily unavailable. Your post will be retried automatically.",
		SystemMessage: "partner unavailable (503 / maintenance)",
	},

	domain.ErrInvalidPayload: {
		Code: domain.ErrInvalidPayload, Action: ActionManualReview, Severity: SeverityError,
		UserMessage:   "The platform rejected this post's content. Please review and edit it.",
		SystemMessage: "payload rejected by platform validation",
	},
	domain.ErrResourceNotFound: {
		Code: domain.ErrResourceNotFound, Action: ActionManualReview, Severity: SeverityError,
		UserMessage:   "The target account or post could not be found on the platform.",
		SystemMessage: "resource not found (404)",
	},
	domain.ErrResourceDeleted: {
		Code: domain.ErrResourceDeleted, Action: ActionManualReview, Severity: SeverityError,
		UserMessage:   "The target post was deleted on the platform.",
		SystemMessage: "resource deleted upstream",
	},
	domain.ErrUnsupportedOperation: {
		Code: domain.ErrUnsupportedOperation, Action: ActionManualReview, Severity: SeverityError,
		UserMessage:   "This platform does not support the requested operation.",
		SystemMessage: "operation unsupported by connector",
	},

	domain.ErrNetwork: {
		Code: domain.ErrNetwork, Action: ActionRetry, Severity: SeverityWarning,
		Retryable: true, MaxRetries: 3, BackoffBaseMs: 1000, BackoffMultiplier: 2.0,
		UserMessage:   "A network problem interrupted publishing. Your post will be retried automatically.",
		SystemMessage: "network error (DNS / connection refused)",
	},
	domain.ErrTimeout: {
		Code: domain.ErrTimeout, Action: ActionRetry, Severity: SeverityWarning,
		Retryable: true, MaxRetries: 3, BackoffBaseMs: 500, BackoffMultiplier: 2.0,
		UserMessage:   "A network timeout interrupted publishing. Your post will be retried automatically.",
		SystemMessage: "outbound request timed out",
	},
	domain.ErrTLS: {
		Code: domain.ErrTLS, Action: ActionRetry, Severity: SeverityError,
		Retryable: true, MaxRetries: 2, BackoffBaseMs: 1000, BackoffMultiplier: 2.0,
		UserMessage:   "A secure-connection problem interrupted publishing. Your post will be retried automatically.",
		SystemMessage: "TLS handshake / certificate error",
	},

	domain.ErrWebhookDelivery: {
		Code: domain.ErrWebhookDelivery, Action: ActionRetry, Severity: SeverityWarning,
		Retryable: true, MaxRetries: 3, BackoffBaseMs: 1000, BackoffMultiplier: 2.0,
		UserMessage:   "A platform notification could not be processed and will be retried.",
		SystemMessage: "webhook delivery failed",
	},
	domain.ErrWebhookParse: {
		Code: domain.ErrWebhookParse, Action: ActionAlert, Severity: SeverityError,
		UserMessage:   "A platform notification could not be processed.",
		SystemMessage: "webhook payload failed to parse",
	},
	domain.ErrWebhookSignature: {
		Code: domain.ErrWebhookSignature, Action: ActionAlert, Severity: SeverityCritical,
		UserMessage:   "A platform notification could not be verified.",
		SystemMessage: "webhook signature invalid; possible spoofed delivery",
	},

	domain.ErrUnknown: {
		Code: domain.ErrUnknown, Action: ActionManualReview, Severity: SeverityError,
		Retryable: true, MaxRetries: 1, BackoffBaseMs: 2000, BackoffMultiplier: 2.0,
		UserMessage:   "Something went wrong while publishing. Contact support if this persists.",
		SystemMessage: "unclassified failure",
	},
	domain.ErrInternal: {
		Code: domain.ErrInternal, Action: ActionAlert, Severity: SeverityCritical,
		UserMessage:   "Something went wrong on our side. Our team has been notified.",
		SystemMessage: "internal error in publishing pipeline",
	},
}

// Get returns the taxonomy entry for a code. Unknown codes resolve to the
// UNKNOWN entry rather than failing, so classification can never crash the
// call site.
func Get(code domain.ErrorCode) Entry {
	if e, ok := entries[code]; ok {
		return e
	}
	return entries[domain.ErrUnknown]
}

// IsRetryable reports whether the queue may re-deliver work failing with code.
func IsRetryable(code domain.ErrorCode) bool {
	return Get(code).Retryable
}

// RequiresReauth reports whether the failure can only be resolved by the user
// reconnecting their account.
func RequiresReauth(code domain.ErrorCode) bool {
	return Get(code).RequiresReauth
}

// PausesChannel reports whether the failure should halt further operations on
// the connection.
func PausesChannel(code domain.ErrorCode) bool {
	return Get(code).PausesChannel
}
