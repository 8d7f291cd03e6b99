// Package classify maps heterogeneous third-party API failures into the
// canonical error taxonomy. Each platform has its own classifier so that
// vendor-specific signals (an OAuth exception embedded in a 200 body, a
// vendor numeric code for a missing scope) take priority over the generic
// HTTP-status mapping.
package classify

import (
	"log/slog"
	"strings"

	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/resilience/taxonomy"
)

// ClassifyPartnerError dispatches to the platform classifier by name
// (case-insensitive) and resolves the resulting code through the taxonomy.
// An unrecognized platform falls back to the shared HTTP-status ladder, so a
// 500 from a platform we have no classifier for still counts as PARTNER_5XX.
func ClassifyPartnerError(platform string, status int, body map[string]any) taxonomy.Entry {
	return taxonomy.Get(CodeForPartnerError(platform, status, body))
}

// CodeForPartnerError returns the canonical code without the taxonomy lookup.
func CodeForPartnerError(platform string, status int, body map[string]any) domain.ErrorCode {
	switch strings.ToLower(platform) {
	case "meta", "facebook", "instagram":
		return ClassifyMeta(status, body)
	case "linkedin":
		return ClassifyLinkedIn(status, body)
	case "tiktok":
		return ClassifyTikTok(status, body)
	case "mailchimp":
		return ClassifyMailchimp(status, body)
	case "google", "google_business":
		return ClassifyGoogle(status, body)
	default:
		return statusLadder(status)
	}
}

// Actioned flattens a taxonomy entry into everything a caller needs to act on
// a failure: retry decision inputs, pause flags, and both message variants.
type Actioned struct {
	Code              domain.ErrorCode
	Action            taxonomy.Action
	Severity          taxonomy.Severity
	Retryable         bool
	MaxRetries        int
	BackoffBaseMs     int
	BackoffMultiplier float64
	RequiresReauth    bool
	PausesChannel     bool
	UserMessage       string
	SystemMessage     string
}

// ClassifyAndActionError classifies a partner failure and logs the decision
// with full tenant/connection context.
func ClassifyAndActionError(
	platform string,
	status int,
	body map[string]any,
	tenantID, connectionID string,
	attempt int,
) Actioned {
	entry := ClassifyPartnerError(platform, status, body)

	slog.Warn("classified partner error",
		"platform", platform,
		"status", status,
		"code", entry.Code,
		"action", entry.Action,
		"tenant", tenantID,
		"connection", connectionID,
		"attempt", attempt,
	)

	return flatten(entry)
}

func flatten(entry taxonomy.Entry) Actioned {
	return Actioned{
		Code:              entry.Code,
		Action:            entry.Action,
		Severity:          entry.Severity,
		Retryable:         entry.Retryable,
		MaxRetries:        entry.MaxRetries,
		BackoffBaseMs:     entry.BackoffBaseMs,
		BackoffMultiplier: entry.BackoffMultiplier,
		RequiresReauth:    entry.RequiresReauth,
		PausesChannel:     entry.PausesChannel,
		UserMessage:       entry.UserMessage,
		SystemMessage:     entry.SystemMessage,
	}
}

// statusLadder is the generic fallback for platforms without a dedicated
// classifier. The per-platform classifiers carry their own copy because
// vendor checks must run first; see the package comment.
func statusLadder(status int) domain.ErrorCode {
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

// Shared helpers for digging through vendor error bodies.

func nested(body map[string]any, keys ...string) any {
	var cur any = body
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

func nestedString(body map[string]any, keys ...string) string {
	s, _ := nested(body, keys...).(string)
	return s
}

func nestedNumber(body map[string]any, keys ...string) (float64, bool) {
	f, ok := nested(body, keys...).(float64)
	return f, ok
}

func containsAny(s string, patterns ...string) bool {
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
