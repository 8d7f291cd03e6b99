// Package tiktok implements the connector contract against the TikTok
// Business / Content Posting API. TikTok reports most failures inside an
// HTTP 200 envelope ({"error": {"code": "..."}}), so every call inspects the
// envelope and promotes non-ok codes to API errors.
package tiktok

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/omnipost/publisher/internal/connector"
	"github.com/omnipost/publisher/internal/core/domain"
	"github.com/omnipost/publisher/internal/infra/httpx"
)

const baseURL = "https://open.tiktokapis.com/v2"

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

func (c *Connector) Platform() domain.Platform { return domain.PlatformTikTok }

func (c *Connector) do(ctx context.Context, method, path string, body any) (map[string]any, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"Authorization": "Bearer " + token}

	resp, err := c.client.DoJSON(ctx, method, baseURL+path, headers, body)
	if err != nil {
		return nil, err
	}
	if errObj, ok := resp["error"].(map[string]any); ok {
		if code, _ := errObj["code"].(string); code != "" && code != "ok" {
			return nil, &httpx.APIError{StatusCode: http.StatusOK, Body: resp}
		}
	}
	return resp, nil
}

func (c *Connector) Authenticate(ctx context.Context, code, state string) (*domain.OAuthResult, error) {
	return c.tokenGrant(ctx, map[string]any{
		"client_key":    c.clientID,
		"client_secret": c.clientSecret,
		"grant_type":    "authorization_code",
		"code":          code,
	})
}

func (c *Connector) RefreshToken(ctx context.Context, refreshToken string) (*domain.OAuthResult, error) {
	return c.tokenGrant(ctx, map[string]any{
		"client_key":    c.clientID,
		"client_secret": c.clientSecret,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	})
}

func (c *Connector) tokenGrant(ctx context.Context, body map[string]any) (*domain.OAuthResult, error) {
	resp, err := c.client.DoJSON(ctx, http.MethodPost, baseURL+"/oauth/token/", nil, body)
	if err != nil {
		return nil, fmt.Errorf("tiktok: token grant failed: %w", err)
	}
	token, _ := resp["access_token"].(string)
	refresh, _ := resp["refresh_token"].(string)
	expires, _ := resp["expires_in"].(float64)
	openID, _ := resp["open_id"].(string)
	return &domain.OAuthResult{
		AccessToken:  token,
		RefreshToken: refresh,
		ExpiresIn:    int64(expires),
		UserID:       openID,
	}, nil
}

func (c *Connector) FetchAccounts(ctx context.Context) ([]*domain.Account, error) {
	resp, err := c.do(ctx, http.MethodGet, "/user/info/?fields=open_id,display_name,avatar_url,follower_count", nil)
	if err != nil {
		return nil, fmt.Errorf("tiktok: failed to fetch user info: %w", err)
	}

	data, _ := resp["data"].(map[string]any)
	user, _ := data["user"].(map[string]any)
	id, _ := user["open_id"].(string)
	name, _ := user["display_name"].(string)
	avatar, _ := user["avatar_url"].(string)
	followers, _ := user["follower_count"].(float64)
	return []*domain.Account{{
		ID:        id,
		Name:      name,
		Type:      "creator",
		ImageURL:  avatar,
		Followers: int64(followers),
	}}, nil
}

func (c *Connector) Publish(
	ctx context.Context,
	accountID, title, body string,
	mediaURLs []string,
	options map[string]string,
) (*domain.PublishResult, error) {
	caption := body
	if title != "" {
		caption = title + "\n\n" + body
	}

	payload := map[string]any{
		"post_info": map[string]any{
			"title":         caption,
			"privacy_level": "PUBLIC_TO_EVERYONE",
		},
	}
	if len(mediaURLs) > 0 {
		payload["source_info"] = map[string]any{
			"source":    "PULL_FROM_URL",
			"video_url": mediaURLs[0],
		}
	}

	resp, err := c.do(ctx, http.MethodPost, "/post/publish/video/init/", payload)
	if err != nil {
		return nil, fmt.Errorf("tiktok: publish failed: %w", err)
	}

	data, _ := resp["data"].(map[string]any)
	publishID, _ := data["publish_id"].(string)
	// The content API is asynchronous: the post goes live once TikTok
	// finishes processing the pull.
	return &domain.PublishResult{
		PostID: publishID,
		Status: domain.PublishStatusScheduled,
	}, nil
}

func (c *Connector) DeletePost(ctx context.Context, accountID, postID string) error {
	return fmt.Errorf("tiktok: post deletion is not supported by the content API")
}

func (c *Connector) PostAnalytics(ctx context.Context, accountID, postID string) (*domain.AnalyticsMetrics, error) {
	resp, err := c.do(ctx, http.MethodPost, "/video/query/?fields=like_count,comment_count,share_count,view_count", map[string]any{
		"filters": map[string]any{"video_ids": []string{postID}},
	})
	if err != nil {
		return nil, fmt.Errorf("tiktok: analytics fetch failed: %w", err)
	}

	m := &domain.AnalyticsMetrics{}
	data, _ := resp["data"].(map[string]any)
	videos, _ := data["videos"].([]any)
	if len(videos) > 0 {
		if video, ok := videos[0].(map[string]any); ok {
			likes, _ := video["like_count"].(float64)
			comments, _ := video["comment_count"].(float64)
			shares, _ := video["share_count"].(float64)
			views, _ := video["view_count"].(float64)
			m.Likes = int64(likes)
			m.Comments = int64(comments)
			m.Shares = int64(shares)
			m.Views = int64(views)
		}
	}
	return m, nil
}

func (c *Connector) HealthCheck(ctx context.Context) (*domain.HealthCheckResult, error) {
	start := time.Now()
	_, err := c.do(ctx, http.MethodGet, "/user/info/?fields=open_id", nil)
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

func (c *Connector) ValidateWebhookSignature(signature string, payload []byte) bool {
	mac := hmac.New(sha256.New, []byte(c.clientSecret))
	mac.Write(payload)
	computed := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(signature), []byte(computed))
}

func (c *Connector) ParseWebhookEvent(payload []byte) (*domain.WebhookEvent, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("tiktok: failed to parse webhook payload: %w", err)
	}
	eventType, _ := raw["event"].(string)
	if eventType == "" {
		eventType = "unknown"
	}
	objectID, _ := raw["user_openid"].(string)
	return &domain.WebhookEvent{
		Platform:  domain.PlatformTikTok,
		EventType: eventType,
		ObjectID:  objectID,
		Payload:   raw,
	}, nil
}
