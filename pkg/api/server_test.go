package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/audit"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/auth"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/config"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/email"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/idp"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/middleware"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/monitor"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/storage"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/users"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/vendors"
)

// stubVerifier resolves bearer tokens from a fixed table.
type stubVerifier struct {
	identities map[string]*auth.Identity
}

func (v *stubVerifier) Verify(_ context.Context, rawToken string) (*auth.Identity, error) {
	if id, ok := v.identities[rawToken]; ok {
		return id, nil
	}
	return nil, auth.ErrInvalidToken
}

type captureSink struct {
	mu      sync.Mutex
	entries []*audit.Entry
}

func (c *captureSink) Record(_ context.Context, e *audit.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *captureSink) Query(filter audit.QueryFilter) ([]*audit.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*audit.Entry
	for i := len(c.entries) - 1; i >= 0; i-- {
		if filter.Matches(c.entries[i]) {
			out = append(out, c.entries[i])
		}
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = audit.DefaultQueryLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (c *captureSink) Close() error { return nil }

type captureSender struct {
	mu   sync.Mutex
	sent []email.Message
}

func (c *captureSender) Send(_ context.Context, msg email.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

// fakeIdP serves the grant and admin endpoints the services reach during
// API tests. Grant outcomes are switchable per test.
type fakeIdP struct {
	srv *httptest.Server

	mu          sync.Mutex
	grantStatus int
	nextUserID  int
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()
	p := &fakeIdP{grantStatus: http.StatusOK}

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "admin-token", "expires_in": 300})
	})
	mux.HandleFunc("/realms/app/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		status := p.grantStatus
		p.mu.Unlock()
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":"invalid_grant"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "access-token", "refresh_token": "refresh-token",
			"token_type": "Bearer", "expires_in": 300,
		})
	})
	mux.HandleFunc("/realms/app/protocol/openid-connect/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/admin/realms/app/users", func(w http.ResponseWriter, r *http.Request) {
		p.mu.Lock()
		p.nextUserID++
		id := p.nextUserID
		p.mu.Unlock()
		w.Header().Set("Location", fmt.Sprintf("%s/admin/realms/app/users/subject-%d", p.srv.URL, id))
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("/admin/realms/app/users/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/admin/realms/app/roles/", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "role-id", "name": "role"})
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

type apiHarness struct {
	server   *Server
	store    *storage.MemoryStore
	sink     *captureSink
	sender   *captureSender
	idp      *fakeIdP
	verifier *stubVerifier
	monitor  *monitor.Monitor
}

// grantToken registers a bearer token resolving to the given identity.
func (h *apiHarness) grantToken(token string, id *auth.Identity) {
	h.verifier.identities[token] = id
}

// seedUser writes a local record and a matching bearer token.
func (h *apiHarness) seedUser(t *testing.T, id, role string) (*storage.User, string) {
	t.Helper()
	user := &storage.User{
		ID:        id,
		SubjectID: "subject-" + id,
		Email:     id + "@example.com",
		Username:  id,
		Roles:     []string{role},
		Active:    true,
	}
	require.NoError(t, h.store.CreateUser(context.Background(), user))

	token := "token-" + id
	h.grantToken(token, &auth.Identity{
		SubjectID: user.SubjectID,
		Email:     user.Email,
		Username:  user.Username,
		Roles:     []auth.Role{auth.Role(role)},
	})
	return user, token
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	log := observability.NewLogger(observability.DebugLevel, &bytes.Buffer{})
	provider := newFakeIdP(t)

	idpClient := idp.NewClient(idp.Config{
		BaseURL:       provider.srv.URL,
		Realm:         "app",
		ClientID:      "backend",
		ClientSecret:  "secret",
		AdminUsername: "admin",
		AdminPassword: "admin",
	}, log)

	sink := &captureSink{}
	auditor := audit.NewLogger(sink, log)
	mon := monitor.New(monitor.Config{}, auditor, log)
	sender := &captureSender{}
	mailer := email.NewMailer(sender, "https://shop.example.com")
	store := storage.NewMemoryStore()

	usersSvc := users.NewService(store, idpClient, auditor, mon, mailer, config.TokenConfig{
		EmailVerificationSecret: "test-secret",
	}, log)
	vendorsSvc := vendors.NewService(store, idpClient, auditor, mailer, log)

	verifier := &stubVerifier{identities: map[string]*auth.Identity{}}
	authn := middleware.NewAuthenticator(verifier, auth.NewTokenCache(0, 0), log)

	server := NewServer(config.ServerConfig{FrontendURL: "https://shop.example.com"}, Deps{
		Users:         usersSvc,
		Vendors:       vendorsSvc,
		Auditor:       auditor,
		Monitor:       mon,
		Authenticator: authn,
		Log:           log,
	})

	return &apiHarness{
		server:   server,
		store:    store,
		sink:     sink,
		sender:   sender,
		idp:      provider,
		verifier: verifier,
		monitor:  mon,
	}
}

func (h *apiHarness) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:55000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) httputil.Envelope {
	t.Helper()
	var env httputil.Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	return env
}

func TestRegisterVerifyEmailRoundTrip(t *testing.T) {
	h := newAPIHarness(t)

	rr := h.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "a@b.com", "password": "Passw0rd!", "firstName": "A", "lastName": "B",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	env := decodeEnvelope(t, rr)
	assert.True(t, env.Success)

	data := env.Data.(map[string]interface{})
	assert.Equal(t, "a@b.com", data["email"])
	assert.Equal(t, []interface{}{"customer"}, data["roles"])
	assert.Equal(t, true, data["active"])
	assert.Equal(t, false, data["emailVerified"])

	// The emailed token flips emailVerified over HTTP.
	require.Len(t, h.sender.sent, 1)
	link := h.sender.sent[0].TextBody
	start := bytes.Index([]byte(link), []byte("?token="))
	require.GreaterOrEqual(t, start, 0)
	token := link[start+len("?token="):]
	if end := bytes.IndexAny([]byte(token), " \n"); end >= 0 {
		token = token[:end]
	}

	rr = h.do(t, http.MethodPost, "/api/auth/verify-email", "", map[string]string{"token": token})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	user, err := h.store.GetUserByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.True(t, user.EmailVerified)
}

func TestLoginSuccessAndFailureEnvelopes(t *testing.T) {
	h := newAPIHarness(t)
	h.seedUser(t, "u1", "customer")

	rr := h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "u1@example.com", "password": "Passw0rd!",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	env := decodeEnvelope(t, rr)
	data := env.Data.(map[string]interface{})
	tokens := data["tokens"].(map[string]interface{})
	assert.Equal(t, "access-token", tokens["accessToken"])

	h.idp.grantStatus = http.StatusUnauthorized
	rr = h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "u1@example.com", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	env = decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, "Invalid email or password", env.Message)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newAPIHarness(t)

	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/profile"},
		{http.MethodPost, "/api/vendors/request"},
		{http.MethodGet, "/api/admin/users"},
	} {
		rr := h.do(t, tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, tc.path)
	}

	rr := h.do(t, http.MethodGet, "/api/auth/profile", "bogus", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRoleGuardsOnAdminRoutes(t *testing.T) {
	h := newAPIHarness(t)
	_, customerToken := h.seedUser(t, "u1", "customer")
	_, adminToken := h.seedUser(t, "a1", "admin")
	_, superToken := h.seedUser(t, "s1", "superadmin")

	// Customers are forbidden everywhere under /api/admin.
	rr := h.do(t, http.MethodGet, "/api/admin/users", customerToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Admins can list users but not change roles.
	rr = h.do(t, http.MethodGet, "/api/admin/users", adminToken, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	rr = h.do(t, http.MethodPut, "/api/admin/users/u1/role", adminToken, map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Superadmins can.
	rr = h.do(t, http.MethodPut, "/api/admin/users/u1/role", superToken, map[string]string{"role": "admin"})
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	user, err := h.store.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, user.Roles)
}

func TestVendorWorkflowOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	_, customerToken := h.seedUser(t, "u1", "customer")
	_, adminToken := h.seedUser(t, "a1", "admin")

	// Customer files a request.
	rr := h.do(t, http.MethodPost, "/api/vendors/request", customerToken, map[string]string{
		"businessName": "Acme Goods", "businessType": "retail",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	// Second submission conflicts.
	rr = h.do(t, http.MethodPost, "/api/vendors/request", customerToken, map[string]string{
		"businessName": "Acme Goods", "businessType": "retail",
	})
	assert.Equal(t, http.StatusConflict, rr.Code)

	// Status shows pending.
	rr = h.do(t, http.MethodGet, "/api/vendors/request/status", customerToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.Equal(t, "pending", env.Data.(map[string]interface{})["status"])

	// Admin sees it pending, then approves.
	rr = h.do(t, http.MethodGet, "/api/admin/vendors/pending", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodPut, "/api/admin/vendors/u1/approve", adminToken, map[string]interface{}{"approved": true})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	user, err := h.store.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"vendor"}, user.Roles)

	profile, err := h.store.GetVendorProfileByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Goods", profile.BusinessName)

	// The profile is publicly listed.
	rr = h.do(t, http.MethodGet, "/api/vendors/public", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	env = decodeEnvelope(t, rr)
	require.NotNil(t, env.Pagination)
	assert.EqualValues(t, 1, env.Pagination.Total)
}

func TestVendorRejectOverHTTP(t *testing.T) {
	h := newAPIHarness(t)
	_, customerToken := h.seedUser(t, "u1", "customer")
	_, adminToken := h.seedUser(t, "a1", "admin")

	rr := h.do(t, http.MethodPost, "/api/vendors/request", customerToken, map[string]string{
		"businessName": "Acme Goods", "businessType": "retail",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	// Rejection without a reason is a validation error.
	rr = h.do(t, http.MethodPut, "/api/admin/vendors/u1/approve", adminToken, map[string]interface{}{"approved": false})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodPut, "/api/admin/vendors/u1/approve", adminToken, map[string]interface{}{
		"approved": false, "reason": "incomplete papers",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	env := decodeEnvelope(t, rr)
	assert.Equal(t, "rejected", env.Data.(map[string]interface{})["status"])

	// The user stays a customer.
	user, err := h.store.GetUserByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"customer"}, user.Roles)
}

func TestVendorProfileRoutesRequireVendorRole(t *testing.T) {
	h := newAPIHarness(t)
	_, customerToken := h.seedUser(t, "u1", "customer")
	_, vendorToken := h.seedUser(t, "v1", "vendor")

	rr := h.do(t, http.MethodGet, "/api/vendors/profile", customerToken, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// A vendor with no profile yet gets a 404, not a 403.
	rr = h.do(t, http.MethodGet, "/api/vendors/profile", vendorToken, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLoginRateLimitEnvelope(t *testing.T) {
	log := observability.NewLogger(observability.DebugLevel, &bytes.Buffer{})
	h := newAPIHarness(t)

	login := middleware.NewRateLimiter(middleware.LimiterConfig{
		Name:    "login",
		Limit:   5,
		Window:  15 * time.Minute,
		Message: "Too many login attempts, please try again later",
	}, log)

	h.server = NewServer(config.ServerConfig{}, Deps{
		Users:         h.server.deps.Users,
		Vendors:       h.server.deps.Vendors,
		Auditor:       h.server.deps.Auditor,
		Monitor:       h.server.deps.Monitor,
		Authenticator: h.server.deps.Authenticator,
		Limiters:      Limiters{Login: login.Handler},
		Log:           log,
	})
	h.seedUser(t, "u1", "customer")

	body := map[string]string{"email": "u1@example.com", "password": "Passw0rd!"}
	for i := 0; i < 5; i++ {
		rr := h.do(t, http.MethodPost, "/api/auth/login", "", body)
		require.Equal(t, http.StatusOK, rr.Code)
	}

	rr := h.do(t, http.MethodPost, "/api/auth/login", "", body)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.False(t, env.Success)
	assert.Equal(t, "Too many login attempts, please try again later", env.Message)
	retry := env.Error.(map[string]interface{})["retryAfter"].(float64)
	assert.InDelta(t, 900, retry, 1)
}

func TestAuditLogsEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	_, adminToken := h.seedUser(t, "a1", "admin")

	h.idp.grantStatus = http.StatusUnauthorized
	for i := 0; i < 3; i++ {
		h.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "x@y.com", "password": "wrong",
		})
	}

	rr := h.do(t, http.MethodGet, "/api/admin/audit/logs?eventType=LOGIN_FAILURE", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	env := decodeEnvelope(t, rr)
	data := env.Data.(map[string]interface{})
	assert.EqualValues(t, 3, data["count"])

	rr = h.do(t, http.MethodGet, "/api/admin/audit/logs?eventType=LOGIN_FAILURE&format=csv", adminToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv", rr.Header().Get("Content-Type"))
	assert.Equal(t, 4, strings.Count(strings.TrimSpace(rr.Body.String()), "\n")+1, "header plus three rows")

	rr = h.do(t, http.MethodGet, "/api/admin/audit/logs?format=xml", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/admin/audit/logs?since=yesterday", adminToken, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMonitoringEndpoints(t *testing.T) {
	h := newAPIHarness(t)
	_, token := h.seedUser(t, "u1", "customer")

	rr := h.do(t, http.MethodGet, "/api/admin/monitoring/health", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.Equal(t, "healthy", env.Data.(map[string]interface{})["status"])

	rr = h.do(t, http.MethodGet, "/api/admin/monitoring/report?hours=1", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/admin/monitoring/report?hours=0", token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProfileEndpoint(t *testing.T) {
	h := newAPIHarness(t)
	user, token := h.seedUser(t, "u1", "customer")

	rr := h.do(t, http.MethodGet, "/api/auth/profile", token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	env := decodeEnvelope(t, rr)
	assert.Equal(t, user.Email, env.Data.(map[string]interface{})["email"])

	// Profile reads land in the audit trail.
	entries, err := h.sink.Query(audit.QueryFilter{EventType: audit.EventProfileAccess})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUnknownRouteAndCORS(t *testing.T) {
	h := newAPIHarness(t)

	rr := h.do(t, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/auth/login", nil)
	req.Header.Set("Origin", "https://shop.example.com")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
