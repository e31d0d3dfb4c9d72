package users

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/storage"
)

const (
	purposeEmailVerification = "email_verification"

	defaultVerificationTTL = 12 * time.Hour
	defaultResetTTL        = time.Hour

	// resetTokenBytes of entropy, hex-encoded for transport; only the
	// SHA-256 of the token is stored.
	resetTokenBytes = 32
)

func (s *Service) verificationTTL() time.Duration {
	if s.tokens.EmailVerificationTTL > 0 {
		return s.tokens.EmailVerificationTTL
	}
	return defaultVerificationTTL
}

func (s *Service) resetTTL() time.Duration {
	if s.tokens.PasswordResetTTL > 0 {
		return s.tokens.PasswordResetTTL
	}
	return defaultResetTTL
}

func (s *Service) issueVerificationToken(user *storage.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub":     user.ID,
		"email":   user.Email,
		"purpose": purposeEmailVerification,
		"iat":     now.Unix(),
		"exp":     now.Add(s.verificationTTL()).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.tokens.EmailVerificationSecret))
	if err != nil {
		return "", fmt.Errorf("sign verification token: %w", err)
	}
	return signed, nil
}

// VerifyEmail consumes an email-verification token and marks the user
// verified. Already-verified users succeed idempotently.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) (*storage.User, error) {
	token, err := jwt.Parse(rawToken, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return []byte(s.tokens.EmailVerificationSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return nil, httputil.NewValidationError("Invalid or expired verification token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims["purpose"] != purposeEmailVerification {
		return nil, httputil.NewValidationError("Invalid or expired verification token")
	}
	userID, _ := claims["sub"].(string)

	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, httputil.NewValidationError("Invalid or expired verification token")
	} else if err != nil {
		return nil, err
	}

	if !user.EmailVerified {
		user.EmailVerified = true
		if err := s.store.UpdateUser(ctx, user); err != nil {
			return nil, err
		}
		s.auditor.LogEmailVerification(ctx, user.ID, user.Email)
	}
	return user, nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateResetToken issues a one-time password-reset token and emails it.
// Unknown addresses succeed silently so the endpoint cannot be used to probe
// which emails exist.
func (s *Service) GenerateResetToken(ctx context.Context, emailAddr, ip string) error {
	emailAddr = strings.TrimSpace(strings.ToLower(emailAddr))
	user, err := s.store.GetUserByEmail(ctx, emailAddr)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.WithField("email", emailAddr).Debug("password reset requested for unknown email")
		return nil
	} else if err != nil {
		return err
	}

	raw := make([]byte, resetTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	token := hex.EncodeToString(raw)

	expiry := s.now().Add(s.resetTTL())
	user.PasswordResetHash = hashResetToken(token)
	user.PasswordResetExpiry = &expiry
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return err
	}

	s.auditor.LogPasswordResetRequest(ctx, user.Email, ip)

	if err := s.mailer.SendPasswordReset(ctx, user.Email, token); err != nil {
		s.log.WithContext(ctx).WithError(err).WithField("userId", user.ID).Warn("failed to send password reset email")
	}
	return nil
}

// ResetPassword consumes a reset token: looks up the stored hash, checks
// expiry, sets the new password at the provider, and clears the token so it
// cannot be replayed.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword, ip string) error {
	if len(newPassword) < minPasswordLength {
		return httputil.NewValidationError("Password must be at least 8 characters long")
	}

	user, err := s.store.GetUserByResetHash(ctx, hashResetToken(token))
	if errors.Is(err, storage.ErrNotFound) {
		return httputil.NewValidationError("Invalid or expired reset token")
	} else if err != nil {
		return err
	}
	if user.PasswordResetExpiry == nil || s.now().After(*user.PasswordResetExpiry) {
		return httputil.NewValidationError("Invalid or expired reset token")
	}

	if err := s.idp.ResetPassword(ctx, user.SubjectID, newPassword); err != nil {
		return err
	}

	user.PasswordResetHash = ""
	user.PasswordResetExpiry = nil
	if err := s.store.UpdateUser(ctx, user); err != nil {
		s.log.WithError(err).WithField("userId", user.ID).Error("failed to clear consumed reset token")
	}

	s.auditor.LogPasswordChange(ctx, user.ID, ip)
	return nil
}
