// Package linkedin implements the connector contract against the LinkedIn
// REST API (organization pages via ugcPosts).
package linkedin

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

const (
	baseURL  = "https://api.linkedin.com/v2"
	tokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
)

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

func (c *Connector) Platform() domain.Platform { return domain.PlatformLinkedIn }

func (c *Connector) headers(ctx context.Context) (map[string]string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"Authorization":             "Bearer " + token,
		"X-Restli-Protocol-Version": "2.0.0",
	}, nil
}

func (c *Connector) Authenticate(ctx context.Context, code, state string) (*domain.OAuthResult, error) {
	return c.tokenGrant(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	})
}

func (c *Connector) RefreshToken(ctx context.Context, refreshToken string) (*domain.OAuthResult, error) {
	return c.tokenGrant(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	})
}

func (c *Connector) tokenGrant(ctx context.Context, form url.Values) (*domain.OAuthResult, error) {
	resp, err := c.client.DoJSON(ctx, http.MethodPost, tokenURL+"?"+form.Encode(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("linkedin: token grant failed: %w", err)
	}
	token, _ := resp["access_token"].(string)
	refresh, _ := resp["refresh_token"].(string)
	expires, _ := resp["expires_in"].(float64)
	return &domain.OAuthResult{
		AccessToken:  token,
		RefreshToken: refresh,
		ExpiresIn:    int64(expires),
	}, nil
}

func (c *Connector) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.DoJSON(ctx, http.MethodGet,
		baseURL+"/organizationalEntityAcls?q=roleAssignee&role=ADMINISTRATOR&projection=(elements*(organizationalTarget~(localizedName)))",
		headers, nil)
	if err != nil {
		return nil, fmt.Errorf("linkedin: failed to fetch organizations: %w", err)
	}

	elements, _ := resp["elements"].([]any)
	accounts := make([]*domain.Account, 0, len(elements))
	for _, el := range elements {
		acl, ok := el.(map[string]any)
		if !ok {
			continue
		}
		urn, _ := acl["organizationalTarget"].(string)
		name := ""
		if target, ok := acl["organizationalTarget~"].(map[string]any); ok {
			name, _ = target["localizedName"].(string)
		}
		accounts = append(accounts, &domain.Account{ID: urn, Name: name, Type: "organization"})
	}
	return accounts, nil
}

func (c *Connector) Publish(
	ctx context.Context,
	accountID, title, body string,
	mediaURLs []string,
	options map[string]string,
) (*domain.PublishResult, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}

	text := body
	if title != "" {
		text = title + "\n\n" + body
	}
	shareContent := map[string]any{
		"shareCommentary":    map[string]any{"text": text},
		"shareMediaCategory": "NONE",
	}
	if len(mediaURLs) > 0 {
		media := make([]map[string]any, 0, len(mediaURLs))
		for _, u := range mediaURLs {
			media = append(media, map[string]any{"status": "READY", "originalUrl": u})
		}
		shareContent["shareMediaCategory"] = "ARTICLE"
		shareContent["media"] = media
	}

	resp, err := c.client.DoJSON(ctx, http.MethodPost, baseURL+"/ugcPosts", headers, map[string]any{
		"author":          accountID,
		"lifecycleState":  "PUBLISHED",
		"specificContent": map[string]any{"com.linkedin.ugc.ShareContent": shareContent},
		"visibility":      map[string]any{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	})
	if err != nil {
		return nil, fmt.Errorf("linkedin: publish failed: %w", err)
	}

	postID, _ := resp["id"].(string)
	return &domain.PublishResult{
		PostID: postID,
		URL:    "https://www.linkedin.com/feed/update/" + postID,
		Status: domain.PublishStatusPublished,
	}, nil
}

func (c *Connector) DeletePost(ctx context.Context, accountID, postID string) error {
	headers, err := c.headers(ctx)
	if err != nil {
		return err
	}
	if _, err := c.client.DoJSON(ctx, http.MethodDelete, baseURL+"/ugcPosts/"+url.PathEscape(postID), headers, nil); err != nil {
		return fmt.Errorf("linkedin: delete failed: %w", err)
	}
	return nil
}

func (c *Connector) PostAnalytics(ctx context.Context, accountID, postID string) (*domain.AnalyticsMetrics, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.DoJSON(ctx, http.MethodGet,
		baseURL+"/socialActions/"+url.PathEscape(postID), headers, nil)
	if err != nil {
		return nil, fmt.Errorf("linkedin: analytics fetch failed: %w", err)
	}

	m := &domain.AnalyticsMetrics{}
	if likes, ok := resp["likesSummary"].(map[string]any); ok {
		count, _ := likes["totalLikes"].(float64)
		m.Likes = int64(count)
	}
	if comments, ok := resp["commentsSummary"].(map[string]any); ok {
		count, _ := comments["aggregatedTotalComments"].(float64)
		m.Comments = int64(count)
	}
	return m, nil
}

func (c *Connector) HealthCheck(ctx context.Context) (*domain.HealthCheckResult, error) {
	headers, err := c.headers(ctx)
	if err != nil {
		return &domain.HealthCheckResult{Status: domain.HealthCritical, Message: err.Error()}, nil
	}

	start := time.Now()
	_, err = c.client.DoJSON(ctx, http.MethodGet, baseURL+"/me", headers, nil)
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

// ValidateWebhookSignature checks the X-LI-Signature header: an HMAC-SHA256
// of the raw payload keyed on the client secret.
func (c *Connector) ValidateWebhookSignature(signature string, payload []byte) bool {
	mac := hmac.New(sha256.New, []byte(c.clientSecret))
	mac.Write(payload)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(computed))
}

func (c *Connector) ParseWebhookEvent(payload []byte) (*domain.WebhookEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("linkedin: failed to parse webhook payload: %w", err)
	}
	eventType, _ := raw["type"].(string)
	if eventType == "" {
		eventType = "unknown"
	}
	objectID, _ := raw["organizationalEntity"].(string)
	return &domain.WebhookEvent{
		Platform:  domain.PlatformLinkedIn,
		EventType: eventType,
		ObjectID:  objectID,
		Payload:   raw,
	}, nil
}
