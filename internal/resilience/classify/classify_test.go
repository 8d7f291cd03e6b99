package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/infra/httpx"
)

func TestClassifyPartnerError(t *testing.T) {
	tests := []struct {
		name     string
		platform string
		status   int
		body     map[string]any
		expect   domain.ErrorCode
	}{
		{"meta 429", "meta", 429, map[string]any{}, domain.ErrRateLimit},
		{"meta oauth exception in 200", "meta", 200,
			map[string]any{"error": map[string]any{"type": "OAuthException", "message": "Error validating access token"}},
			domain.ErrAuthInvalid},
		{"meta expired subcode", "meta", 401,
			map[string]any{"error": map[string]any{"type": "OAuthException", "error_subcode": float64(463)}},
			domain.ErrAuthExpired},
		{"meta permission code 200", "meta", 403,
			map[string]any{"error": map[string]any{"code": float64(200), "message": "Permissions error"}},
			domain.ErrPermissionInsufficient},
		{"meta app call limit", "meta", 400,
			map[string]any{"error": map[string]any{"code": float64(4), "message": "Application request limit reached"}},
			domain.ErrRateLimit},
		{"linkedin expired token", "linkedin", 401,
			map[string]any{"message": "token expired"}, domain.ErrAuthExpired},
		{"linkedin revoked service code", "linkedin", 401,
			map[string]any{"serviceErrorCode": float64(65601)}, domain.ErrAuthRevoked},
		{"linkedin bare 401", "linkedin", 401, map[string]any{}, domain.ErrAuthInvalid},
		{"tiktok scope code in 200", "tiktok", 200,
			map[string]any{"error": map[string]any{"code": "40002"}}, domain.ErrPermissionInsufficient},
		{"tiktok expired token", "tiktok", 401,
			map[string]any{"error": map[string]any{"code": "access_token_expired"}}, domain.ErrAuthExpired},
		{"tiktok ok code falls through", "tiktok", 504,
			map[string]any{"error": map[string]any{"code": "ok"}}, domain.ErrPartnerTimeout},
		{"mailchimp invalid key", "mailchimp", 401,
			map[string]any{"title": "API Key Invalid"}, domain.ErrAuthInvalid},
		{"google scope missing", "google", 403,
			map[string]any{"error": map[string]any{"status": "PERMISSION_DENIED", "message": "Request had insufficient scopes"}},
			domain.ErrScopeMissing},
		{"google quota", "google", 429,
			map[string]any{"error": map[string]any{"status": "RESOURCE_EXHAUSTED"}}, domain.ErrRateLimit},
		{"unknown platform 500", "unknownplatform", 500, map[string]any{}, domain.ErrPartner5XX},
		{"unknown platform 200", "unknownplatform", 200, map[string]any{}, domain.ErrUnknown},
		{"generic 504", "meta", 504, map[string]any{}, domain.ErrPartnerTimeout},
		{"generic 404", "linkedin", 404, map[string]any{}, domain.ErrResourceNotFound},
		{"generic 418", "meta", 418, map[string]any{}, domain.ErrInvalidPayload},
		{"generic 599", "meta", 599, map[string]any{}, domain.ErrPartner5XX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyPartnerError(tt.platform, tt.status, tt.body)
			if got.Code != tt.expect {
				t.Errorf("ClassifyPartnerError(%s, %d) = %s, want %s",
					tt.platform, tt.status, got.Code, tt.expect)
			}
		})
	}
}

func TestClassifyPartnerErrorDeterministic(t *testing.T) {
	body := map[string]any{"error": map[string]any{"code": "40002"}}
	first := ClassifyPartnerError("tiktok", 200, body)
	for i := 0; i < 10; i++ {
		if got := ClassifyPartnerError("tiktok", 200, body); got.Code != first.Code {
			t.Fatalf("classification not deterministic: %s then %s", first.Code, got.Code)
		}
	}
}

func TestClassifySystemError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect domain.ErrorCode
	}{
		{"tagged timeout", &httpx.TransportError{Kind: httpx.FailureTimeout, Err: context.DeadlineExceeded}, domain.ErrTimeout},
		{"tagged dns", &httpx.TransportError{Kind: httpx.FailureDNS, Err: errors.New("lookup failed")}, domain.ErrNetwork},
		{"tagged connection", &httpx.TransportError{Kind: httpx.FailureConnection, Err: errors.New("refused")}, domain.ErrNetwork},
		{"tagged tls", &httpx.TransportError{Kind: httpx.FailureTLS, Err: errors.New("bad cert")}, domain.ErrTLS},
		{"untagged timeout text", errors.New("context deadline exceeded"), domain.ErrTimeout},
		{"untagged refused text", errors.New("dial tcp: connection refused"), domain.ErrNetwork},
		{"untagged x509 text", errors.New("x509: certificate signed by unknown authority"), domain.ErrTLS},
		{"unmatched", errors.New("something else entirely"), domain.ErrUnknown},
		{"nil", nil, domain.ErrUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifySystemError(tt.err); got != tt.expect {
				t.Errorf("ClassifySystemError(%v) = %s, want %s", tt.err, got, tt.expect)
			}
		})
	}
}

func TestClassifyAndActionError(t *testing.T) {
	res := ClassifyAndActionError("linkedin", 401, map[string]any{"message": "token expired"}, "t1", "c1", 1)
	if res.Code != domain.ErrAuthExpired {
		t.Fatalf("code = %s, want %s", res.Code, domain.ErrAuthExpired)
	}
	if res.Retryable || res.MaxRetries != 0 {
		t.Errorf("auth expired must not be retryable")
	}
	if !res.RequiresReauth || !res.PausesChannel {
		t.Errorf("auth expired must require reauth and pause the channel")
	}
	if res.UserMessage == "" || res.UserMessage == res.SystemMessage {
		t.Errorf("user message must be set and distinct from system message")
	}
}
