package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

// fakeProvider emulates the provider's token endpoints and admin API.
// Handler fields can be swapped per test before the first request.
type fakeProvider struct {
	srv *httptest.Server

	adminTokenHits atomic.Int32
	grantHits      atomic.Int32

	grant func(w http.ResponseWriter, r *http.Request)
	admin func(w http.ResponseWriter, r *http.Request)
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{}
	p.grant = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-1","refresh_token":"rt-1","token_type":"Bearer","expires_in":300}`)
	}
	p.admin = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/master/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		p.adminTokenHits.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "password", r.PostForm.Get("grant_type"))
		assert.Equal(t, "admin-cli", r.PostForm.Get("client_id"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"admin-token","expires_in":300}`)
	})
	mux.HandleFunc("/realms/app/protocol/openid-connect/token", func(w http.ResponseWriter, r *http.Request) {
		p.grantHits.Add(1)
		p.grant(w, r)
	})
	mux.HandleFunc("/realms/app/protocol/openid-connect/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/admin/realms/app/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer admin-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		p.admin(w, r)
	})

	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	log := observability.NewLogger(observability.DebugLevel, &bytes.Buffer{})
	return NewClient(Config{
		BaseURL:       baseURL,
		Realm:         "app",
		AdminRealm:    "master",
		ClientID:      "ecommerce-backend",
		ClientSecret:  "secret",
		AdminUsername: "admin",
		AdminPassword: "admin",
	}, log)
}

func TestPasswordGrant(t *testing.T) {
	provider := newFakeProvider(t)
	client := newTestClient(t, provider.srv.URL)

	set, err := client.PasswordGrant(context.Background(), "a@b.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "at-1", set.AccessToken)
	assert.Equal(t, "rt-1", set.RefreshToken)
	assert.Equal(t, "Bearer", set.TokenType)
	assert.Greater(t, set.ExpiresIn, int64(0))
}

func TestPasswordGrantInvalidCredentials(t *testing.T) {
	provider := newFakeProvider(t)
	provider.grant = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid user credentials"}`)
	}
	client := newTestClient(t, provider.srv.URL)

	_, err := client.PasswordGrant(context.Background(), "a@b.com", "wrong")
	require.Error(t, err)
	appErr, ok := httputil.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, appErr.StatusCode)
	assert.Equal(t, "Invalid email or password", appErr.Message)
}

func TestPasswordGrantProviderOutage(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) string
	}{
		{"provider unreachable", func(t *testing.T) string {
			srv := httptest.NewServer(http.NotFoundHandler())
			srv.Close()
			return srv.URL
		}},
		{"provider error", func(t *testing.T) string {
			provider := newFakeProvider(t)
			provider.grant = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			}
			return provider.srv.URL
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.setup(t))
			_, err := client.PasswordGrant(context.Background(), "a@b.com", "pw")
			require.Error(t, err)
			appErr, ok := httputil.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)
			assert.Equal(t, "Authentication service temporarily unavailable", appErr.Message)
		})
	}
}

func TestRefreshGrant(t *testing.T) {
	provider := newFakeProvider(t)
	provider.grant = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "rt-0", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"at-2","refresh_token":"rt-2","token_type":"Bearer","expires_in":300}`)
	}
	client := newTestClient(t, provider.srv.URL)

	set, err := client.RefreshGrant(context.Background(), "rt-0")
	require.NoError(t, err)
	assert.Equal(t, "at-2", set.AccessToken)
	assert.Equal(t, "rt-2", set.RefreshToken)
}

func TestRefreshGrantExpired(t *testing.T) {
	provider := newFakeProvider(t)
	provider.grant = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Token is not active"}`)
	}
	client := newTestClient(t, provider.srv.URL)

	_, err := client.RefreshGrant(context.Background(), "stale")
	require.Error(t, err)
	appErr, ok := httputil.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, appErr.StatusCode)
	assert.Equal(t, "Invalid or expired refresh token", appErr.Message)
}

func TestLogoutBestEffort(t *testing.T) {
	// Logout never fails the caller, even with the provider down.
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := newTestClient(t, srv.URL)

	assert.NotPanics(t, func() {
		client.Logout(context.Background(), "rt-1")
	})
}

func TestSimulatedGrants(t *testing.T) {
	log := observability.NewLogger(observability.DebugLevel, &bytes.Buffer{})
	client := NewClient(Config{
		BaseURL: "http://localhost:0",
		Realm:   "app",
		DevMode: true,
	}, log)

	set, err := client.PasswordGrant(context.Background(), "dev@example.com", "pw")
	require.NoError(t, err)
	require.NotEmpty(t, set.AccessToken)
	assert.NotEmpty(t, set.RefreshToken)

	// Simulated access tokens decode as JWTs with the customer role.
	token, _, err := jwt.NewParser().ParseUnverified(set.AccessToken, jwt.MapClaims{})
	require.NoError(t, err)
	claims := token.Claims.(jwt.MapClaims)
	assert.NotEmpty(t, claims["sub"])
	assert.Equal(t, "dev@example.com", claims["email"])
	realmAccess := claims["realm_access"].(map[string]interface{})
	assert.Contains(t, realmAccess["roles"], "customer")

	refreshed, err := client.RefreshGrant(context.Background(), set.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	id, err := client.CreateUser(context.Background(), NewUser{Email: "dev@example.com"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	assert.NoError(t, client.DeleteUser(context.Background(), id))
	assert.NoError(t, client.ResetPassword(context.Background(), id, "new"))
	assert.NoError(t, client.EnsureRealmRoles(context.Background(), "vendor"))
	assert.NoError(t, client.AssignRealmRoles(context.Background(), id, "vendor"))
}

func TestCreateUser(t *testing.T) {
	provider := newFakeProvider(t)
	provider.admin = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/realms/app/users", r.URL.Path)

		var rep userRepresentation
		require.NoError(t, json.NewDecoder(r.Body).Decode(&rep))
		assert.Equal(t, "a@b.com", rep.Email)
		assert.Equal(t, "a@b.com", rep.Username, "username defaults to email")
		assert.True(t, rep.Enabled)
		require.Len(t, rep.Credentials, 1)
		assert.Equal(t, "password", rep.Credentials[0].Type)
		assert.False(t, rep.Credentials[0].Temporary)

		w.Header().Set("Location", provider.srv.URL+"/admin/realms/app/users/uid-123")
		w.WriteHeader(http.StatusCreated)
	}
	client := newTestClient(t, provider.srv.URL)

	id, err := client.CreateUser(context.Background(), NewUser{Email: "a@b.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "uid-123", id)
}

func TestCreateUserConflict(t *testing.T) {
	provider := newFakeProvider(t)
	provider.admin = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}
	client := newTestClient(t, provider.srv.URL)

	_, err := client.CreateUser(context.Background(), NewUser{Email: "a@b.com"})
	require.Error(t, err)
	appErr, ok := httputil.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, appErr.StatusCode)
	assert.Equal(t, "User already exists", appErr.Message)
}

func TestDeleteUserToleratesMissing(t *testing.T) {
	provider := newFakeProvider(t)
	provider.admin = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}
	client := newTestClient(t, provider.srv.URL)

	assert.NoError(t, client.DeleteUser(context.Background(), "gone"))
}

func TestResetPassword(t *testing.T) {
	provider := newFakeProvider(t)
	provider.admin = func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/admin/realms/app/users/uid-1/reset-password", r.URL.Path)

		var cred credentialRepresentation
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cred))
		assert.Equal(t, "password", cred.Type)
		assert.Equal(t, "new-password", cred.Value)
		assert.False(t, cred.Temporary)

		w.WriteHeader(http.StatusNoContent)
	}
	client := newTestClient(t, provider.srv.URL)

	require.NoError(t, client.ResetPassword(context.Background(), "uid-1", "new-password"))
}

func TestEnsureRealmRolesCreatesMissing(t *testing.T) {
	provider := newFakeProvider(t)
	var created []string
	provider.admin = func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/admin/realms/app/roles/customer":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"rid-1","name":"customer"}`)
		case r.Method == http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPost && r.URL.Path == "/admin/realms/app/roles":
			var rep roleRepresentation
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rep))
			created = append(created, rep.Name)
			w.WriteHeader(http.StatusCreated)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}
	client := newTestClient(t, provider.srv.URL)

	require.NoError(t, client.EnsureRealmRoles(context.Background(), "customer", "vendor"))
	assert.Equal(t, []string{"vendor"}, created)
}

func TestAssignRealmRoles(t *testing.T) {
	provider := newFakeProvider(t)
	var assigned []roleRepresentation
	provider.admin = func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/admin/realms/app/roles/vendor":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"rid-2","name":"vendor"}`)
		case r.Method == http.MethodPost && r.URL.Path == "/admin/realms/app/users/uid-1/role-mappings/realm":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&assigned))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}
	client := newTestClient(t, provider.srv.URL)

	require.NoError(t, client.AssignRealmRoles(context.Background(), "uid-1", "vendor"))
	require.Len(t, assigned, 1)
	assert.Equal(t, "rid-2", assigned[0].ID)
	assert.Equal(t, "vendor", assigned[0].Name)
}

func TestAdminTokenCached(t *testing.T) {
	provider := newFakeProvider(t)
	client := newTestClient(t, provider.srv.URL)

	require.NoError(t, client.DeleteUser(context.Background(), "u1"))
	require.NoError(t, client.DeleteUser(context.Background(), "u2"))

	assert.Equal(t, int32(1), provider.adminTokenHits.Load(),
		"second admin call reuses the cached token")
}
