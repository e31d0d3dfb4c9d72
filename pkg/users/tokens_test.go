package users

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/audit"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
)

// tokenFromEmail pulls the token query parameter out of the last message the
// harness captured.
func tokenFromEmail(t *testing.T, body string) string {
	t.Helper()
	start := strings.Index(body, "?token=")
	require.GreaterOrEqual(t, start, 0)
	rest := body[start+len("?token="):]
	if end := strings.IndexAny(rest, " \n<\""); end >= 0 {
		rest = rest[:end]
	}
	token, err := url.QueryUnescape(rest)
	require.NoError(t, err)
	return token
}

func TestVerifyEmailRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	user, err := h.svc.Register(ctx, validRegistration(), "1.2.3.4", "ua")
	require.NoError(t, err)
	assert.False(t, user.EmailVerified)

	require.Len(t, h.sender.sent, 1)
	token := tokenFromEmail(t, h.sender.sent[0].TextBody)

	verified, err := h.svc.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)
	assert.Len(t, h.sink.byType(audit.EventEmailVerification), 1)

	// Verifying again is idempotent and records no second event.
	again, err := h.svc.VerifyEmail(ctx, token)
	require.NoError(t, err)
	assert.True(t, again.EmailVerified)
	assert.Len(t, h.sink.byType(audit.EventEmailVerification), 1)
}

func TestVerifyEmailRejectsBadTokens(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	user, err := h.svc.Register(ctx, validRegistration(), "1.2.3.4", "ua")
	require.NoError(t, err)

	wrongSecret := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     user.ID,
		"purpose": "email_verification",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	forged, err := wrongSecret.SignedString([]byte("other-secret"))
	require.NoError(t, err)

	wrongPurpose := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     user.ID,
		"purpose": "password_reset",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	offLabel, err := wrongPurpose.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":     user.ID,
		"purpose": "email_verification",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	stale, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":       "not-a-jwt",
		"wrong secret":  forged,
		"wrong purpose": offLabel,
		"expired":       stale,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := h.svc.VerifyEmail(ctx, token)
			appErr, ok := httputil.AsAppError(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
			assert.Equal(t, "Invalid or expired verification token", appErr.Message)
		})
	}
}

func TestPasswordResetRoundTrip(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	user, err := h.svc.Register(ctx, validRegistration(), "1.2.3.4", "ua")
	require.NoError(t, err)

	require.NoError(t, h.svc.GenerateResetToken(ctx, "a@b.com", "1.2.3.4"))
	require.Len(t, h.sender.sent, 2)
	token := tokenFromEmail(t, h.sender.sent[1].TextBody)
	assert.Len(t, token, 64)
	assert.Len(t, h.sink.byType(audit.EventPasswordResetRequest), 1)

	// The raw token is never stored; only its hash is.
	stored, err := h.store.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.NotEqual(t, token, stored.PasswordResetHash)
	assert.Equal(t, hashResetToken(token), stored.PasswordResetHash)

	require.NoError(t, h.svc.ResetPassword(ctx, token, "NewPassw0rd!", "1.2.3.4"))
	assert.Len(t, h.sink.byType(audit.EventPasswordChange), 1)

	// The provider received the new password.
	found := false
	for path, value := range h.provider.resets {
		if strings.Contains(path, user.SubjectID) && value == "NewPassw0rd!" {
			found = true
		}
	}
	assert.True(t, found)

	// The token is consumed and cannot be replayed.
	err = h.svc.ResetPassword(ctx, token, "AnotherPassw0rd!", "1.2.3.4")
	appErr, ok := httputil.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	assert.Equal(t, "Invalid or expired reset token", appErr.Message)
}

func TestGenerateResetTokenUnknownEmailSucceedsSilently(t *testing.T) {
	h := newTestHarness(t)

	require.NoError(t, h.svc.GenerateResetToken(context.Background(), "nobody@example.com", "1.2.3.4"))
	assert.Empty(t, h.sender.sent)
	assert.Empty(t, h.sink.byType(audit.EventPasswordResetRequest))
}

func TestGenerateResetTokenNormalizesEmail(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.svc.Register(ctx, validRegistration(), "1.2.3.4", "ua")
	require.NoError(t, err)

	require.NoError(t, h.svc.GenerateResetToken(ctx, "  A@B.com ", "1.2.3.4"))
	require.Len(t, h.sender.sent, 2)
	assert.Equal(t, "a@b.com", h.sender.sent[1].To)
	assert.Len(t, h.sink.byType(audit.EventPasswordResetRequest), 1)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	_, err := h.svc.Register(ctx, validRegistration(), "1.2.3.4", "ua")
	require.NoError(t, err)
	require.NoError(t, h.svc.GenerateResetToken(ctx, "a@b.com", "1.2.3.4"))
	token := tokenFromEmail(t, h.sender.sent[1].TextBody)

	h.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	err = h.svc.ResetPassword(ctx, token, "NewPassw0rd!", "1.2.3.4")
	appErr, ok := httputil.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)
	assert.Equal(t, "Invalid or expired reset token", appErr.Message)
}

func TestResetPasswordRejectsShortPassword(t *testing.T) {
	h := newTestHarness(t)

	err := h.svc.ResetPassword(context.Background(), "whatever", "short", "1.2.3.4")
	appErr, ok := httputil.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Password must be at least 8 characters long", appErr.Message)
}
