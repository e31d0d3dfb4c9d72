package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
)

// Verifier turns a raw bearer token into a verified identity. The
// implementation is chosen once at startup; callers never branch on
// environment themselves.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (*Identity, error)
}

// ErrInvalidToken is the client-facing failure for any token that
// cannot be verified. The cause stays in the error chain for logs.
var ErrInvalidToken = httputil.NewAuthenticationError("Invalid or expired token")

// LocalVerifier decodes token claims without signature verification.
// Used in development and test environments where the identity provider
// is not reachable; never enable it in production.
type LocalVerifier struct {
	parser *jwt.Parser
}

// NewLocalVerifier creates a verifier that trusts token claims as-is.
func NewLocalVerifier() *LocalVerifier {
	return &LocalVerifier{parser: jwt.NewParser()}
}

// Verify decodes the token and builds an identity from its claims,
// filling permissive defaults for anything missing.
func (v *LocalVerifier) Verify(_ context.Context, rawToken string) (*Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(rawToken, claims); err != nil {
		return nil, ErrInvalidToken
	}
	return identityFromClaims(claims, rawToken), nil
}

// RemoteVerifier validates tokens by presenting them to the identity
// provider's userinfo endpoint. A 200 response proves the token is
// active; role claims are decoded from the token itself since userinfo
// does not carry them.
type RemoteVerifier struct {
	userInfoURL string
	client      *http.Client
	parser      *jwt.Parser
}

// NewRemoteVerifier discovers the provider's endpoints and returns a
// verifier bound to its userinfo endpoint.
func NewRemoteVerifier(ctx context.Context, issuerURL string, timeout time.Duration) (*RemoteVerifier, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	var wellKnown struct {
		UserInfoEndpoint string `json:"userinfo_endpoint"`
	}
	if err := provider.Claims(&wellKnown); err != nil {
		return nil, fmt.Errorf("failed to read provider metadata: %w", err)
	}
	if wellKnown.UserInfoEndpoint == "" {
		return nil, fmt.Errorf("provider at %s does not expose a userinfo endpoint", issuerURL)
	}

	return &RemoteVerifier{
		userInfoURL: wellKnown.UserInfoEndpoint,
		client:      &http.Client{Timeout: timeout},
		parser:      jwt.NewParser(),
	}, nil
}

// Verify checks the token against the provider and returns the merged
// identity: claims from the token, contact fields from userinfo.
func (v *RemoteVerifier) Verify(ctx context.Context, rawToken string) (*Identity, error) {
	claims := jwt.MapClaims{}
	if _, _, err := v.parser.ParseUnverified(rawToken, claims); err != nil {
		return nil, ErrInvalidToken
	}
	identity := identityFromClaims(claims, rawToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+rawToken)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, mapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, mapProviderStatus(resp.StatusCode)
	}

	var info struct {
		Subject           string `json:"sub"`
		Email             string `json:"email"`
		EmailVerified     bool   `json:"email_verified"`
		PreferredUsername string `json:"preferred_username"`
		GivenName         string `json:"given_name"`
		FamilyName        string `json:"family_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, ErrInvalidToken
	}

	// userinfo is authoritative for contact fields
	if info.Subject != "" {
		identity.SubjectID = info.Subject
	}
	if info.Email != "" {
		identity.Email = info.Email
	}
	if info.PreferredUsername != "" {
		identity.Username = info.PreferredUsername
	}
	if info.GivenName != "" {
		identity.FirstName = info.GivenName
	}
	if info.FamilyName != "" {
		identity.LastName = info.FamilyName
	}
	identity.EmailVerified = info.EmailVerified

	return identity, nil
}

// identityFromClaims builds an identity from decoded token claims with
// permissive defaults where claims are absent.
func identityFromClaims(claims jwt.MapClaims, rawToken string) *Identity {
	identity := &Identity{
		SubjectID: stringClaim(claims, "sub"),
		Email:     stringClaim(claims, "email"),
		Username:  stringClaim(claims, "preferred_username"),
		FirstName: stringClaim(claims, "given_name"),
		LastName:  stringClaim(claims, "family_name"),
		Roles:     rolesFromClaims(claims),
		RawToken:  rawToken,
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		identity.EmailVerified = verified
	}
	if identity.SubjectID == "" {
		identity.SubjectID = "dev-user"
	}
	if identity.Username == "" {
		identity.Username = identity.Email
	}
	return identity
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return s
	}
	return ""
}

// rolesFromClaims reads realm_access.roles; a token without role claims
// gets the customer default.
func rolesFromClaims(claims jwt.MapClaims) []Role {
	realmAccess, ok := claims["realm_access"].(map[string]interface{})
	if !ok {
		return []Role{RoleCustomer}
	}
	rawRoles, ok := realmAccess["roles"].([]interface{})
	if !ok {
		return []Role{RoleCustomer}
	}

	roles := make([]Role, 0, len(rawRoles))
	for _, raw := range rawRoles {
		if s, ok := raw.(string); ok {
			roles = append(roles, Role(s))
		}
	}
	if len(roles) == 0 {
		return []Role{RoleCustomer}
	}
	return roles
}

// mapProviderStatus translates a userinfo HTTP status into the error
// the client sees. Unknown statuses fail closed as 401.
func mapProviderStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrInvalidToken
	case status == http.StatusForbidden:
		// The provider rejected the token holder; clients see it the
		// same as an invalid token.
		return ErrInvalidToken
	case status == http.StatusNotFound:
		return httputil.NewServiceUnavailableError("Authentication service misconfigured").
			WithCause(fmt.Errorf("userinfo endpoint returned 404"))
	case status >= 500:
		return httputil.NewServiceUnavailableError("Authentication service temporarily unavailable").
			WithCause(fmt.Errorf("userinfo endpoint returned %d", status))
	default:
		return ErrInvalidToken
	}
}

// mapTransportError translates network failures reaching the provider.
// Connection refused and timeouts both surface as a 500: the caller's
// token might be fine, we just cannot tell.
func mapTransportError(err error) error {
	return httputil.NewServiceUnavailableError("Authentication service temporarily unavailable").WithCause(err)
}
