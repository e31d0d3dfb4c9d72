package api

import (
	"net/http"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/middleware"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/users"
)

// authHandlers serves the /api/auth surface.
type authHandlers struct {
	server *Server
	users  *users.Service
}

func (h *authHandlers) register(w http.ResponseWriter, r *http.Request) error {
	var in users.RegisterInput
	if err := httputil.ParseJSON(r, &in); err != nil {
		return httputil.NewValidationError("Invalid request body")
	}

	user, err := h.users.Register(r.Context(), in, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		return err
	}
	return httputil.WriteCreated(w, "Registration successful, please verify your email", user)
}

func (h *authHandlers) login(w http.ResponseWriter, r *http.Request) error {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httputil.ParseJSON(r, &in); err != nil {
		return httputil.NewValidationError("Invalid request body")
	}
	if in.Email == "" || in.Password == "" {
		return httputil.NewValidationError("Email and password are required")
	}

	tokens, user, err := h.users.Login(r.Context(), in.Email, in.Password, middleware.ClientIP(r), r.UserAgent())
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, map[string]interface{}{
		"tokens": tokens,
		"user":   user,
	})
}

func (h *authHandlers) refresh(w http.ResponseWriter, r *http.Request) error {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := httputil.ParseJSON(r, &in); err != nil || in.RefreshToken == "" {
		return httputil.NewValidationError("Refresh token is required")
	}

	tokens, err := h.users.Refresh(r.Context(), in.RefreshToken, middleware.ClientIP(r))
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, map[string]interface{}{"tokens": tokens})
}

func (h *authHandlers) logout(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	// A missing body still logs the user out locally.
	_ = httputil.ParseJSON(r, &in)

	h.users.Logout(r.Context(), id.SubjectID, in.RefreshToken, middleware.ClientIP(r))
	return httputil.WriteSuccessMessage(w, "Logged out successfully", nil)
}

func (h *authHandlers) profile(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	user, err := h.users.GetBySubject(r.Context(), id.SubjectID)
	if err != nil {
		return err
	}
	h.server.deps.Auditor.LogProfileAccess(r.Context(), user.ID, middleware.ClientIP(r))
	return httputil.WriteSuccess(w, user)
}

func (h *authHandlers) changePassword(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	var in struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := httputil.ParseJSON(r, &in); err != nil {
		return httputil.NewValidationError("Invalid request body")
	}
	if in.CurrentPassword == "" || in.NewPassword == "" {
		return httputil.NewValidationError("Current and new password are required")
	}

	if err := h.users.ChangePassword(r.Context(), id.SubjectID, id.Email, in.CurrentPassword, in.NewPassword, middleware.ClientIP(r)); err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "Password changed successfully", nil)
}

func (h *authHandlers) verifyEmail(w http.ResponseWriter, r *http.Request) error {
	var in struct {
		Token string `json:"token"`
	}
	if err := httputil.ParseJSON(r, &in); err != nil || in.Token == "" {
		return httputil.NewValidationError("Verification token is required")
	}

	user, err := h.users.VerifyEmail(r.Context(), in.Token)
	if err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "Email verified successfully", user)
}

func (h *authHandlers) forgotPassword(w http.ResponseWriter, r *http.Request) error {
	var in struct {
		Email string `json:"email"`
	}
	if err := httputil.ParseJSON(r, &in); err != nil || in.Email == "" {
		return httputil.NewValidationError("Email is required")
	}

	if err := h.users.GenerateResetToken(r.Context(), in.Email, middleware.ClientIP(r)); err != nil {
		return err
	}
	// Same answer whether or not the email exists.
	return httputil.WriteSuccessMessage(w, "If the email exists, a reset link has been sent", nil)
}

func (h *authHandlers) resetPassword(w http.ResponseWriter, r *http.Request) error {
	var in struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := httputil.ParseJSON(r, &in); err != nil || in.Token == "" {
		return httputil.NewValidationError("Reset token is required")
	}

	if err := h.users.ResetPassword(r.Context(), in.Token, in.NewPassword, middleware.ClientIP(r)); err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "Password reset successfully", nil)
}
