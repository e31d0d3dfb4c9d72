package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
)

// NewUser is the provider-side representation of an account to create.
type NewUser struct {
	Email         string
	Username      string
	FirstName     string
	LastName      string
	Password      string
	EmailVerified bool
}

type credentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRepresentation struct {
	Username      string                     `json:"username"`
	Email         string                     `json:"email"`
	FirstName     string                     `json:"firstName,omitempty"`
	LastName      string                     `json:"lastName,omitempty"`
	Enabled       bool                       `json:"enabled"`
	EmailVerified bool                       `json:"emailVerified"`
	Credentials   []credentialRepresentation `json:"credentials,omitempty"`
}

type roleRepresentation struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// CreateUser registers the user with the provider and returns the
// provider-assigned user id, parsed from the Location header.
func (c *Client) CreateUser(ctx context.Context, user NewUser) (string, error) {
	if c.simulated() {
		return uuid.NewString(), nil
	}

	username := user.Username
	if username == "" {
		username = user.Email
	}
	payload := userRepresentation{
		Username:      username,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Enabled:       true,
		EmailVerified: user.EmailVerified,
		Credentials: []credentialRepresentation{
			{Type: "password", Value: user.Password},
		},
	}

	start := c.now()
	resp, err := c.doAdmin(ctx, http.MethodPost, c.adminURL("users"), payload)
	if err != nil {
		c.observe("create_user", "transport_error", start)
		return "", err
	}
	defer resp.Body.Close()
	c.observe("create_user", statusLabel(resp.StatusCode), start)

	if resp.StatusCode != http.StatusCreated {
		return "", mapAdminStatus(resp, "create user")
	}

	location := resp.Header.Get("Location")
	id := location[strings.LastIndex(location, "/")+1:]
	if id == "" {
		return "", fmt.Errorf("provider returned no user id for %s", user.Email)
	}
	return id, nil
}

// DeleteUser removes the user from the provider. Deleting an already
// absent user is not an error; compensation paths rely on that.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	if c.simulated() {
		return nil
	}

	start := c.now()
	resp, err := c.doAdmin(ctx, http.MethodDelete, c.adminURL("users", userID), nil)
	if err != nil {
		c.observe("delete_user", "transport_error", start)
		return err
	}
	defer resp.Body.Close()
	c.observe("delete_user", statusLabel(resp.StatusCode), start)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusNotFound:
		return nil
	default:
		return mapAdminStatus(resp, "delete user")
	}
}

// ResetPassword sets a new permanent password for the user.
func (c *Client) ResetPassword(ctx context.Context, userID, password string) error {
	if c.simulated() {
		return nil
	}

	payload := credentialRepresentation{Type: "password", Value: password}

	start := c.now()
	resp, err := c.doAdmin(ctx, http.MethodPut, c.adminURL("users", userID, "reset-password"), payload)
	if err != nil {
		c.observe("reset_password", "transport_error", start)
		return err
	}
	defer resp.Body.Close()
	c.observe("reset_password", statusLabel(resp.StatusCode), start)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return mapAdminStatus(resp, "reset password")
	}
	return nil
}

// EnsureRealmRoles creates any of the named realm roles that do not
// exist yet.
func (c *Client) EnsureRealmRoles(ctx context.Context, roles ...string) error {
	if c.simulated() {
		return nil
	}

	for _, role := range roles {
		_, err := c.realmRole(ctx, role)
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return err
		}

		start := c.now()
		resp, err := c.doAdmin(ctx, http.MethodPost, c.adminURL("roles"), roleRepresentation{Name: role})
		if err != nil {
			c.observe("create_role", "transport_error", start)
			return err
		}
		resp.Body.Close()
		c.observe("create_role", statusLabel(resp.StatusCode), start)

		// A concurrent creator winning the race is fine.
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
			return mapAdminStatus(resp, "create role")
		}
	}
	return nil
}

// AssignRealmRoles grants the named realm roles to the user.
func (c *Client) AssignRealmRoles(ctx context.Context, userID string, roles ...string) error {
	if c.simulated() {
		return nil
	}

	representations := make([]roleRepresentation, 0, len(roles))
	for _, role := range roles {
		rep, err := c.realmRole(ctx, role)
		if err != nil {
			return err
		}
		representations = append(representations, rep)
	}

	start := c.now()
	resp, err := c.doAdmin(ctx, http.MethodPost,
		c.adminURL("users", userID, "role-mappings", "realm"), representations)
	if err != nil {
		c.observe("assign_roles", "transport_error", start)
		return err
	}
	defer resp.Body.Close()
	c.observe("assign_roles", statusLabel(resp.StatusCode), start)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return mapAdminStatus(resp, "assign roles")
	}
	return nil
}

// realmRole fetches one realm role representation by name.
func (c *Client) realmRole(ctx context.Context, name string) (roleRepresentation, error) {
	start := c.now()
	resp, err := c.doAdmin(ctx, http.MethodGet, c.adminURL("roles", name), nil)
	if err != nil {
		c.observe("get_role", "transport_error", start)
		return roleRepresentation{}, err
	}
	defer resp.Body.Close()
	c.observe("get_role", statusLabel(resp.StatusCode), start)

	if resp.StatusCode != http.StatusOK {
		return roleRepresentation{}, mapAdminStatus(resp, "get role")
	}

	var rep roleRepresentation
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		return roleRepresentation{}, fmt.Errorf("failed to decode role %s: %w", name, err)
	}
	return rep, nil
}

func isNotFound(err error) bool {
	if appErr, ok := httputil.AsAppError(err); ok {
		return appErr.StatusCode == http.StatusNotFound
	}
	return false
}
