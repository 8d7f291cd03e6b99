package taxonomy

import (
	"testing"

	"github.com/omnipost/publisher/internal/core/domain"
)

func TestEveryCodeHasEntry(t *testing.T) {
	for _, code := range domain.AllErrorCodes {
		e := Get(code)
		if e.Code != code {
			t.Errorf("Get(%s) returned entry for %s", code, e.Code)
		}
		if e.UserMessage == "" || e.SystemMessage == "" {
			t.Errorf("Get(%s) has empty messages", code)
		}
	}
}

func TestNonRetryableHasZeroBudget(t *testing.T) {
	for _, code := range domain.AllErrorCodes {
		e := Get(code)
		if !e.Retryable && e.MaxRetries != 0 {
			t.Errorf("%s: retryable=false but maxRetries=%d", code, e.MaxRetries)
		}
		if e.Retryable && e.MaxRetries == 0 {
			t.Errorf("%s: retryable=true but maxRetries=0", code)
		}
	}
}

func TestUnknownCodeResolvesToUnknown(t *testing.T) {
	e := Get(domain.ErrorCode("SOMETHING_NEW"))
	if e.Code != domain.ErrUnknown {
		t.Errorf("unknown code resolved to %s, want %s", e.Code, domain.ErrUnknown)
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		code      domain.ErrorCode
		retryable bool
		reauth    bool
		pauses    bool
	}{
		{domain.ErrAuthExpired, false, true, true},
		{domain.ErrAuthInvalid, false, true, true},
		{domain.ErrScopeMissing, false, true, true},
		{domain.ErrAppSuspended, false, false, true},
		{domain.ErrAppDeauthorized, false, false, true},
		{domain.ErrRateLimit, true, false, false},
		{domain.ErrPartner5XX, true, false, false},
		{domain.ErrInvalidPayload, false, false, false},
		{domain.ErrResourceNotFound, false, false, false},
		{domain.ErrWebhookSignature, false, false, false},
	}

	for _, tt := range tests {
		if got := IsRetryable(tt.code); got != tt.retryable {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.code, got, tt.retryable)
		}
		if got := RequiresReauth(tt.code); got != tt.reauth {
			t.Errorf("RequiresReauth(%s) = %v, want %v", tt.code, got, tt.reauth)
		}
		if got := PausesChannel(tt.code); got != tt.pauses {
			t.Errorf("PausesChannel(%s) = %v, want %v", tt.code, got, tt.pauses)
		}
	}
}

func TestRateLimitBackoffProfile(t *testing.T) {
	e := Get(domain.ErrRateLimit)
	if e.BackoffBaseMs != 1000 || e.BackoffMultiplier != 3.0 || e.MaxRetries != 4 {
		t.Errorf("rate limit profile = {base:%d mult:%v max:%d}, want {1000 3 4}",
			e.BackoffBaseMs, e.BackoffMultiplier, e.MaxRetries)
	}
}
