package domain

// Platform identifies an external publishing platform.
type Platform string

const (
	PlatformMeta      Platform = "meta"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
	PlatformMailchimp Platform = "mailchimp"
	PlatformGoogle    Platform = "google"
)

// OAuthResult is the outcome of an authenticate or token-refresh exchange.
type OAuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds
	UserID       string
	Scopes       []string
}

// Account is one publishable destination under a connection (a page, a
// profile, an audience list).
type Account struct {
	ID        string
	Name      string
	Type      string
	ImageURL  string
	Followers int64
	Metadata  map[string]string
}

// PublishResult is returned by a connector after a successful publish.
type PublishResult struct {
	PostID   string
	URL      string
	Status   PublishStatus
	Metadata map[string]string
}

type PublishStatus string

const (
	PublishStatusPublished PublishStatus = "published"
	PublishStatusScheduled PublishStatus = "scheduled"
	PublishStatusDraft     PublishStatus = "draft"
)

// AnalyticsMetrics aggregates post-level engagement numbers. Platforms that
// do not report a metric leave it zero.
type AnalyticsMetrics struct {
	Views          int64
	Impressions    int64
	Likes          int64
	Comments       int64
	Shares         int64
	Clicks         int64
	EngagementRate float64
}

// HealthCheckResult is a connector's own view of platform reachability.
type HealthCheckResult struct {
	Status    HealthStatus
	LatencyMs int64
	Message   string
}

// WebhookEvent is a platform webhook payload normalized into a common shape.
type WebhookEvent struct {
	Platform  Platform
	EventType string
	ObjectID  string
	Payload   map[string]any
}
