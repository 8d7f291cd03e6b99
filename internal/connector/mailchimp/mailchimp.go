// Package mailchimp implements the connector contract against the Mailchimp
// Marketing API. Publishing creates a campaign against an audience list and
// sends it immediately.
package mailchimp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/omnipost/publisher/internal/connector"
	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/infra/httpx"
)

// defaultServer is used until a connection's OAuth metadata pins the data
// center prefix.
const defaultServer = "us1"

type Connector struct {
	tenantID     string
	connectionID string
	client       *httpx.Client
	tokens       connector.TokenSource
	clientID     string
	clientSecret string
	server       string
}

func New(deps connector.Deps) connector.Connector {
	return &Connector{
		tenantID:     deps.TenantID,
		connectionID: deps.ConnectionID,
		client:       deps.Client,
		tokens:       deps.Tokens,
		clientID:     deps.ClientID,
		clientSecret: deps.ClientSecret,
		server:       defaultServer,
	}
}

func (c *Connector) Platform() domain.Platform { return domain.PlatformMailchimp }

func (c *Connector) baseURL() string {
	return fmt.Sprintf("https://%s.api.mailchimp.com/3.0", c.server)
}

func (c *Connector) do(ctx context.Context, method, path string, body any) (map[string]any, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"Authorization": "Bearer " + token}
	return c.client.DoJSON(ctx, method, c.baseURL()+path, headers, body)
}

func (c *Connector) Authenticate(ctx context.Context, code, state string) (*domain.OAuthResult, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}
	resp, err := c.client.DoJSON(ctx, http.MethodPost,
		"https://login.mailchimp.com/oauth2/token?"+form.Encode(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("mailchimp: token exchange failed: %w", err)
	}

	token, _ := resp["access_token"].(string)
	result := &domain.OAuthResult{AccessToken: token}

	// The metadata endpoint reports the account's data center, which scopes
	// every subsequent API call.
	meta, err := c.client.DoJSON(ctx, http.MethodGet, "https://login.mailchimp.com/oauth2/metadata",
		map[string]string{"Authorization": "OAuth " + token}, nil)
	if err != nil {
		return nil, fmt.Errorf("mailchimp: metadata fetch failed: %w", err)
	}
	if dc, ok := meta["dc"].(string); ok && dc != "" {
		c.server = dc
	}
	return result, nil
}

// RefreshToken is a no-op: Mailchimp access tokens do not expire and the
// OAuth flow issues no refresh token.
func (c *Connector) RefreshToken(ctx context.Context, refreshToken string) (*domain.OAuthResult, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return &domain.OAuthResult{AccessToken: token}, nil
}

func (c *Connector) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	resp, err := c.do(ctx, http.MethodGet, "/lists?fields=lists.id,lists.name,lists.stats.member_count", nil)
	if err != nil {
		return nil, fmt.Errorf("mailchimp: failed to fetch lists: %w", err)
	}

	lists, _ := resp["lists"].([]any)
	accounts := make([]*domain.Account, 0, len(lists))
	for _, item := range lists {
		list, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := list["id"].(string)
		name, _ := list["name"].(string)
		var members float64
		if stats, ok := list["stats"].(map[string]any); ok {
			members, _ = stats["member_count"].(float64)
		}
		accounts = append(accounts, &domain.Account{
			ID:        id,
			Name:      name,
			Type:      "audience",
			Followers: int64(members),
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
	fromName := options["from_name"]
	if fromName == "" {
		fromName = "OmniPost"
	}
	replyTo := options["reply_to"]

	campaign, err := c.do(ctx, http.MethodPost, "/campaigns", map[string]any{
		"type":       "regular",
		"recipients": map[string]any{"list_id": accountID},
		"settings": map[string]any{
			"subject_line": title,
			"title":        title,
			"from_name":    fromName,
			"reply_to":     replyTo,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mailchimp: campaign create failed: %w", err)
	}
	campaignID, _ := campaign["id"].(string)

	if _, err := c.do(ctx, http.MethodPut, "/campaigns/"+campaignID+"/content", map[string]any{
		"html": body,
	}); err != nil {
		return nil, fmt.Errorf("mailchimp: campaign content failed: %w", err)
	}

	if _, err := c.do(ctx, http.MethodPost, "/campaigns/"+campaignID+"/actions/send", nil); err != nil {
		return nil, fmt.Errorf("mailchimp: campaign send failed: %w", err)
	}

	archiveURL, _ := campaign["archive_url"].(string)
	return &domain.PublishResult{
		PostID: campaignID,
		URL:    archiveURL,
		Status: domain.PublishStatusPublished,
	}, nil
}

func (c *Connector) DeletePost(ctx context.Context, accountID, postID string) error {
	if _, err := c.do(ctx, http.MethodDelete, "/campaigns/"+postID, nil); err != nil {
		return fmt.Errorf("mailchimp: campaign delete failed: %w", err)
	}
	return nil
}

func (c *Connector) PostAnalytics(ctx context.Context, accountID, postID string) (*domain.AnalyticsMetrics, error) {
	resp, err := c.do(ctx, http.MethodGet, "/reports/"+postID, nil)
	if err != nil {
		return nil, fmt.Errorf("mailchimp: report fetch failed: %w", err)
	}

	m := &domain.AnalyticsMetrics{}
	if opens, ok := resp["opens"].(map[string]any); ok {
		count, _ := opens["opens_total"].(float64)
		rate, _ := opens["open_rate"].(float64)
		m.Views = int64(count)
		m.EngagementRate = rate
	}
	if clicks, ok := resp["clicks"].(map[string]any); ok {
		count, _ := clicks["clicks_total"].(float64)
		m.Clicks = int64(count)
	}
	if sent, ok := resp["emails_sent"].(float64); ok {
		m.Impressions = int64(sent)
	}
	return m, nil
}

func (c *Connector) HealthCheck(ctx context.Context) (*domain.HealthCheckResult, error) {
	start := time.Now()
	resp, err := c.do(ctx, http.MethodGet, "/ping", nil)
	latency := time.Since(start)

	if err != nil {
		return &domain.HealthCheckResult{
			Status:    domain.HealthCritical,
			LatencyMs: latency.Milliseconds(),
			Message:   err.Error(),
		}, nil
	}
	status := domain.HealthHealthy
	if msg, _ := resp["health_status"].(string); msg != "Everything's Chimpy!" {
		status = domain.HealthWarning
	}
	if latency > 2*time.Second {
		status = domain.HealthWarning
	}
	return &domain.HealthCheckResult{Status: status, LatencyMs: latency.Milliseconds()}, nil
}

func (c *Connector) ValidateWebhookSignature(signature string, payload []byte) bool {
	mac := hmac.New(sha256.New, []byte(c.clientSecret))
	mac.Write(payload)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(computed))
}

func (c *Connector) ParseWebhookEvent(payload []byte) (*domain.WebhookEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("mailchimp: failed to parse webhook payload: %w", err)
	}
	eventType, _ := raw["type"].(string)
	if eventType == "" {
		eventType = "unknown"
	}
	objectID := ""
	if data, ok := raw["data"].(map[string]any); ok {
		objectID, _ = data["list_id"].(string)
	}
	return &domain.WebhookEvent{
		Platform:  domain.PlatformMailchimp,
		EventType: eventType,
		ObjectID:  objectID,
		Payload:   raw,
	}, nil
}
