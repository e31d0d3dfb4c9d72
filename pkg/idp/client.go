package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

const (
	// DefaultTokenTimeout bounds token-endpoint requests (grants, logout).
	DefaultTokenTimeout = 10 * time.Second

	// DefaultAdminTimeout bounds admin REST API requests.
	DefaultAdminTimeout = 15 * time.Second

	// adminTokenSlack is subtracted from the admin token lifetime so we
	// refresh before the provider expires it.
	adminTokenSlack = 30 * time.Second

	adminCLIClientID = "admin-cli"
)

// Config configures the identity provider client. The provider exposes
// Keycloak-shaped endpoints under BaseURL.
type Config struct {
	BaseURL       string
	Realm         string
	AdminRealm    string
	ClientID      string
	ClientSecret  string
	AdminUsername string
	AdminPassword string

	TokenTimeout time.Duration
	AdminTimeout time.Duration

	// DevMode enables simulated responses when no client secret is
	// configured, so the stack runs without a provider.
	DevMode bool
}

// Client talks to the identity provider: OAuth grants against the
// application realm and user/role management through the admin REST API.
type Client struct {
	cfg         Config
	oauth       oauth2.Config
	tokenClient *http.Client
	adminClient *http.Client
	log         *observability.Logger
	metrics     *observability.Metrics
	now         func() time.Time

	mu            sync.Mutex
	adminToken    string
	adminTokenExp time.Time
}

// NewClient builds a Client from config. log may not be nil.
func NewClient(cfg Config, log *observability.Logger) *Client {
	if cfg.TokenTimeout <= 0 {
		cfg.TokenTimeout = DefaultTokenTimeout
	}
	if cfg.AdminTimeout <= 0 {
		cfg.AdminTimeout = DefaultAdminTimeout
	}
	if cfg.AdminRealm == "" {
		cfg.AdminRealm = "master"
	}

	return &Client{
		cfg: cfg,
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL: tokenURL(cfg.BaseURL, cfg.Realm),
			},
		},
		tokenClient: &http.Client{Timeout: cfg.TokenTimeout},
		adminClient: &http.Client{Timeout: cfg.AdminTimeout},
		log:         log,
		now:         time.Now,
	}
}

// WithMetrics enables per-operation request counters and latency histograms.
func (c *Client) WithMetrics(m *observability.Metrics) *Client {
	c.metrics = m
	return c
}

// simulated reports whether provider calls should be faked. Only
// development mode without a client secret qualifies; production always
// talks to the real provider.
func (c *Client) simulated() bool {
	return c.cfg.DevMode && c.cfg.ClientSecret == ""
}

func tokenURL(base, realm string) string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token",
		strings.TrimRight(base, "/"), url.PathEscape(realm))
}

func logoutURL(base, realm string) string {
	return fmt.Sprintf("%s/realms/%s/protocol/openid-connect/logout",
		strings.TrimRight(base, "/"), url.PathEscape(realm))
}

func (c *Client) adminURL(parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		segments = append(segments, url.PathEscape(p))
	}
	return fmt.Sprintf("%s/admin/realms/%s/%s",
		strings.TrimRight(c.cfg.BaseURL, "/"),
		url.PathEscape(c.cfg.Realm),
		strings.Join(segments, "/"))
}

// observe records one provider call in the metrics, when enabled.
func (c *Client) observe(operation, status string, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.IdPRequestsTotal.WithLabelValues(operation, status).Inc()
	c.metrics.IdPRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func statusLabel(code int) string {
	return strconv.Itoa(code)
}

// adminAccessToken returns a cached admin token, fetching a fresh one
// through a password grant against the admin realm when the cached one
// is missing or close to expiry.
func (c *Client) adminAccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.adminToken != "" && c.now().Before(c.adminTokenExp) {
		token := c.adminToken
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {adminCLIClientID},
		"username":   {c.cfg.AdminUsername},
		"password":   {c.cfg.AdminPassword},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		tokenURL(c.cfg.BaseURL, c.cfg.AdminRealm),
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build admin token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := c.now()
	resp, err := c.adminClient.Do(req)
	if err != nil {
		c.observe("admin_token", "transport_error", start)
		return "", mapTransportError(err)
	}
	defer resp.Body.Close()
	c.observe("admin_token", statusLabel(resp.StatusCode), start)

	if resp.StatusCode != http.StatusOK {
		c.log.WithField("status", resp.StatusCode).Error("admin token request rejected")
		return "", httputil.NewServiceUnavailableError("Authentication service temporarily unavailable")
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode admin token response: %w", err)
	}

	c.mu.Lock()
	c.adminToken = body.AccessToken
	c.adminTokenExp = c.now().Add(time.Duration(body.ExpiresIn)*time.Second - adminTokenSlack)
	c.mu.Unlock()

	return body.AccessToken, nil
}

// doAdmin performs one authenticated admin API request and returns the
// response. The caller owns the body.
func (c *Client) doAdmin(ctx context.Context, method, endpoint string, payload interface{}) (*http.Response, error) {
	token, err := c.adminAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode admin request: %w", err)
		}
		body = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build admin request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.adminClient.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	return resp, nil
}

// mapTransportError converts connection refusals and timeouts into the
// stable upstream-outage error the API surfaces.
func mapTransportError(err error) error {
	return httputil.NewServiceUnavailableError("Authentication service temporarily unavailable").WithCause(err)
}

// mapAdminStatus converts an unexpected admin API status into an API error.
func mapAdminStatus(resp *http.Response, operation string) error {
	switch {
	case resp.StatusCode == http.StatusConflict:
		return httputil.NewConflictError("User already exists")
	case resp.StatusCode == http.StatusNotFound:
		return httputil.NewNotFoundError("User not found")
	case resp.StatusCode >= http.StatusInternalServerError:
		return httputil.NewServiceUnavailableError("Authentication service temporarily unavailable")
	default:
		return httputil.NewServiceUnavailableError(
			fmt.Sprintf("Authentication service rejected %s request", operation))
	}
}
