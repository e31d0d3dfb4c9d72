package idp

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/auth"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
)

// TokenSet is the result of a successful grant.
type TokenSet struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func tokenSetFromOAuth(tok *oauth2.Token, now time.Time) *TokenSet {
	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		set.ExpiresIn = int64(tok.Expiry.Sub(now).Seconds())
	}
	return set
}

// grantContext pins the oauth2 transport to the token client so the
// configured timeout applies.
func (c *Client) grantContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.tokenClient)
}

// PasswordGrant exchanges user credentials for tokens.
func (c *Client) PasswordGrant(ctx context.Context, username, password string) (*TokenSet, error) {
	if c.simulated() {
		return c.simulatedTokenSet(username), nil
	}

	start := c.now()
	tok, err := c.oauth.PasswordCredentialsToken(c.grantContext(ctx), username, password)
	if err != nil {
		status, mapped := mapGrantError(err, "Invalid email or password")
		c.observe("password_grant", status, start)
		return nil, mapped
	}
	c.observe("password_grant", statusLabel(http.StatusOK), start)

	return tokenSetFromOAuth(tok, c.now()), nil
}

// RefreshGrant exchanges a refresh token for a fresh token set.
func (c *Client) RefreshGrant(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if c.simulated() {
		return c.simulatedTokenSet("dev-user"), nil
	}

	start := c.now()
	source := c.oauth.TokenSource(c.grantContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := source.Token()
	if err != nil {
		status, mapped := mapGrantError(err, "Invalid or expired refresh token")
		c.observe("refresh_grant", status, start)
		return nil, mapped
	}
	c.observe("refresh_grant", statusLabel(http.StatusOK), start)

	return tokenSetFromOAuth(tok, c.now()), nil
}

// Logout invalidates the session behind a refresh token. Best effort: a
// failing provider is logged but never surfaces, so logout always
// succeeds for the caller.
func (c *Client) Logout(ctx context.Context, refreshToken string) {
	if c.simulated() || refreshToken == "" {
		return
	}

	form := url.Values{
		"client_id":     {c.cfg.ClientID},
		"client_secret": {c.cfg.ClientSecret},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		logoutURL(c.cfg.BaseURL, c.cfg.Realm),
		strings.NewReader(form.Encode()))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := c.now()
	resp, err := c.tokenClient.Do(req)
	if err != nil {
		c.observe("logout", "transport_error", start)
		c.log.WithError(err).Warn("provider logout failed")
		return
	}
	defer resp.Body.Close()
	c.observe("logout", statusLabel(resp.StatusCode), start)

	if resp.StatusCode >= http.StatusBadRequest {
		c.log.WithField("status", resp.StatusCode).Warn("provider rejected logout")
	}
}

// mapGrantError converts an oauth2 failure into an API error plus the
// metrics status label. Credential rejections come back as 401; provider
// outages as the stable 500 message.
func mapGrantError(err error, invalidMessage string) (string, error) {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		code := retrieveErr.Response.StatusCode
		switch {
		case code == http.StatusBadRequest, code == http.StatusUnauthorized, code == http.StatusForbidden:
			return statusLabel(code), httputil.NewAuthenticationError(invalidMessage)
		case code >= http.StatusInternalServerError:
			return statusLabel(code), httputil.NewServiceUnavailableError("Authentication service temporarily unavailable")
		default:
			return statusLabel(code), httputil.NewAuthenticationError(invalidMessage)
		}
	}
	return "transport_error", mapTransportError(err)
}

// simulatedTokenSet mints a self-signed development token carrying the
// default customer role, so the local verifier can decode it.
func (c *Client) simulatedTokenSet(username string) *TokenSet {
	now := c.now()
	claims := jwt.MapClaims{
		"sub":                uuid.NewString(),
		"preferred_username": username,
		"email":              username,
		"realm_access":       map[string]interface{}{"roles": []string{string(auth.RoleCustomer)}},
		"iat":                now.Unix(),
		"exp":                now.Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("development-only-secret"))
	if err != nil {
		// HS256 signing of a map claim set cannot fail at runtime.
		panic(err)
	}
	return &TokenSet{
		AccessToken:  signed,
		RefreshToken: uuid.NewString(),
		TokenType:    "Bearer",
		ExpiresIn:    int64(time.Hour.Seconds()),
	}
}
