// Package connector defines the uniform capability surface every platform
// implementation must satisfy, and the manager that orchestrates publishing
// through it.
package connector

import (
	"context"
	"errors"

	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/infra/httpx"
)

// Connector is the per-platform implementation surface. Every method may fail
// with a platform-native *httpx.APIError (status + parsed body), which the
// caller hands to the classifier.
type Connector interface {
	// Platform returns the platform identifier
	Platform() domain.Platform

	// Authenticate exchanges an OAuth code for tokens
	Authenticate(ctx context.Context, code, state string) (*domain.OAuthResult, error)

	// RefreshToken exchanges a refresh token for fresh credentials
	RefreshToken(ctx context.Context, refreshToken string) (*domain.OAuthResult, error)

	// FetchAccounts lists publishable destinations under the connection
	FetchAccounts(ctx context.Context) ([]*domain.Account, error)

	// Publish creates a post on the target account
	Publish(
		ctx context.Context,
		accountID, title, body string,
		mediaURLs []string,
		options map[string]string,
	) (*domain.PublishResult, error)

	// DeletePost removes a previously published post
	DeletePost(ctx context.Context, accountID, postID string) error

	// PostAnalytics fetches engagement metrics for a post
	PostAnalytics(ctx context.Context, accountID, postID string) (*domain.AnalyticsMetrics, error)

	// HealthCheck verifies the connection can reach the platform
	HealthCheck(ctx context.Context) (*domain.HealthCheckResult, error)

	// ValidateWebhookSignature checks a webhook delivery's signature
	ValidateWebhookSignature(signature string, payload []byte) bool

	// ParseWebhookEvent normalizes a webhook payload; returns (nil, nil) for
	// event types the platform connector does not surface
	ParseWebhookEvent(payload []byte) (*domain.WebhookEvent, error)
}

// ErrNoToken is returned by a TokenSource when no usable credential exists.
// Callers treat it the same as an auth-invalid classification: the connection
// cannot currently authenticate.
var ErrNoToken = errors.New("connector: no usable credential for connection")

// TokenSource yields the current access credential for one connection.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Deps is everything a platform constructor may read. Constructing a
// connector must have no side effects beyond reading these.
type Deps struct {
	TenantID     string
	ConnectionID string
	Client       *httpx.Client
	Tokens       TokenSource
	ClientID     string
	ClientSecret string
}

// Factory builds a platform-specific connector from its dependencies.
type Factory func(deps Deps) Connector
