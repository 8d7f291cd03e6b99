// Package meta implements the connector contract against the Meta Graph API
// (Facebook pages and Instagram business accounts).
package meta

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/omnipost/publisher/internal/connector"
	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/infra/httpx"
)

const baseURL = "https://graph.facebook.com/v19.0"

type Connector struct {
	tenantID     string
	connectionID string
	client       *httpx.Client
	tokens       connector.TokenSource
	clientID     string
	clientSecret string
}

func New(deps connector.Deps) connector.Connector {
	return &Connector{
		tenantID:     deps.TenantID,
		connectionID: deps.ConnectionID,
		client:       deps.Client,
		tokens:       deps.Tokens,
		clientID:     deps.ClientID,
		clientSecret: deps.ClientSecret,
	}
}

func (c *Connector) Platform() domain.Platform { return domain.PlatformMeta }

// do issues a Graph call and promotes embedded error objects: Graph can
// return an OAuth error inside an HTTP 200 body, which must still classify
// as a failure.
func (c *Connector) do(ctx context.Context, method, path string, params url.Values, body any) (map[string]any, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("access_token", token)

	resp, err := c.client.DoJSON(ctx, method, baseURL+path+"?"+params.Encode(), nil, body)
	if err != nil {
		return nil, err
	}
	if _, hasErr := resp["error"]; hasErr {
		return nil, &httpx.APIError{StatusCode: http.StatusOK, Body: resp}
	}
	return resp, nil
}

func (c *Connector) Authenticate(ctx context.Context, code, state string) (*domain.OAuthResult, error) {
	params := url.Values{}
	params.Set("client_id", c.clientID)
	params.Set("client_secret", c.clientSecret)
	params.Set("code", code)

	resp, err := c.client.DoJSON(ctx, http.MethodGet, baseURL+"/oauth/access_token?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("meta: token exchange failed: %w", err)
	}
	return oauthResult(resp), nil
}

func (c *Connector) RefreshToken(ctx context.Context, refreshToken string) (*domain.OAuthResult, error) {
	// Graph long-lived tokens are extended by exchanging the current token.
	params := url.Values{}
	params.Set("grant_type", "fb_exchange_token")
	params.Set("client_id", c.clientID)
	params.Set("client_secret", c.clientSecret)
	params.Set("fb_exchange_token", refreshToken)

	resp, err := c.client.DoJSON(ctx, http.MethodGet, baseURL+"/oauth/access_token?"+params.Encode(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("meta: token refresh failed: %w", err)
	}
	return oauthResult(resp), nil
}

func oauthResult(resp map[string]any) *domain.OAuthResult {
	expires, _ := resp["expires_in"].(float64)
	token, _ := resp["access_token"].(string)
	return &domain.OAuthResult{AccessToken: token, ExpiresIn: int64(expires)}
}

func (c *Connector) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	resp, err := c.do(ctx, http.MethodGet, "/me/accounts", url.Values{"fields": {"id,name,category,followers_count,picture"}}, nil)
	if err != nil {
		return nil, fmt.Errorf("meta: failed to fetch pages: %w", err)
	}

	items, _ := resp["data"].([]any)
	accounts := make([]*domain.Account, 0, len(items))
	for _, item := range items {
		page, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := page["id"].(string)
		name, _ := page["name"].(string)
		category, _ := page["category"].(string)
		followers, _ := page["followers_count"].(float64)
		accounts = append(accounts, &domain.Account{
			ID:        id,
			Name:      name,
			Type:      category,
			Followers: int64(followers),
		})
	}
	return accounts, nil
}

func (c *Connector) Publish(
	ctx context.Context,
	accountID, title, body string,
	mediaURLs []string,
	options map[string]string,
) (*domain.PublishResult, error) {
	message := body
	if title != "" {
		message = title + "\n\n" + body
	}

	path := fmt.Sprintf("/%s/feed", accountID)
	payload := map[string]any{"message": message}
	if len(mediaURLs) > 0 {
		path = fmt.Sprintf("/%s/photos", accountID)
		payload["url"] = mediaURLs[0]
		payload["caption"] = message
	}
	if link, ok := options["link"]; ok {
		payload["link"] = link
	}

	resp, err := c.do(ctx, http.MethodPost, path, nil, payload)
	if err != nil {
		return nil, fmt.Errorf("meta: publish failed: %w", err)
	}

	postID, _ := resp["id"].(string)
	return &domain.PublishResult{
		PostID: postID,
		URL:    "https://www.facebook.com/" + postID,
		Status: domain.PublishStatusPublished,
	}, nil
}

func (c *Connector) DeletePost(ctx context.Context, accountID, postID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/"+postID, nil, nil); err != nil {
		return fmt.Errorf("meta: delete failed: %w", err)
	}
	return nil
}

func (c *Connector) PostAnalytics(ctx context.Context, accountID, postID string) (*domain.AnalyticsMetrics, error) {
	resp, err := c.do(ctx, http.MethodGet, "/"+postID, url.Values{
		"fields": {"shares,reactions.summary(true),comments.summary(true),insights.metric(post_impressions)"},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("meta: analytics fetch failed: %w", err)
	}

	m := &domain.AnalyticsMetrics{}
	if reactions, ok := resp["reactions"].(map[string]any); ok {
		if summary, ok := reactions["summary"].(map[string]any); ok {
			count, _ := summary["total_count"].(float64)
			m.Likes = int64(count)
		}
	}
	if comments, ok := resp["comments"].(map[string]any); ok {
		if summary, ok := comments["summary"].(map[string]any); ok {
			count, _ := summary["total_count"].(float64)
			m.Comments = int64(count)
		}
	}
	if shares, ok := resp["shares"].(map[string]any); ok {
		count, _ := shares["count"].(float64)
		m.Shares = int64(count)
	}
	return m, nil
}

func (c *Connector) HealthCheck(ctx context.Context) (*domain.HealthCheckResult, error) {
	start := time.Now()
	_, err := c.do(ctx, http.MethodGet, "/me", url.Values{"fields": {"id"}}, nil)
	latency := time.Since(start)

	if err != nil {
		return &domain.HealthCheckResult{
			Status:    domain.HealthCritical,
			LatencyMs: latency.Milliseconds(),
			Message:   err.Error(),
		}, nil
	}

	status := domain.HealthHealthy
	if latency > 2*time.Second {
		status = domain.HealthWarning
	}
	return &domain.HealthCheckResult{Status: status, LatencyMs: latency.Milliseconds()}, nil
}

// ValidateWebhookSignature checks Graph's X-Hub-Signature-256 header: an
// HMAC-SHA256 of the raw payload with the app secret, prefixed "sha256=".
func (c *Connector) ValidateWebhookSignature(signature string, payload []byte) bool {
	expected := strings.TrimPrefix(signature, "sha256=")
	mac := hmac.New(sha256.New, []byte(c.clientSecret))
	mac.Write(payload)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(computed))
}

func (c *Connector) ParseWebhookEvent(payload []byte) (*domain.WebhookEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("meta: failed to parse webhook payload: %w", err)
	}

	entries, _ := raw["entry"].([]any)
	if len(entries) == 0 {
		return nil, nil
	}
	entry, _ := entries[0].(map[string]any)
	objectID, _ := entry["id"].(string)

	eventType := "unknown"
	if changes, ok := entry["changes"].([]any); ok && len(changes) > 0 {
		if change, ok := changes[0].(map[string]any); ok {
			if field, ok := change["field"].(string); ok {
				eventType = field
			}
		}
	}

	return &domain.WebhookEvent{
		Platform:  domain.PlatformMeta,
		EventType: eventType,
		ObjectID:  objectID,
		Payload:   raw,
	}, nil
}
