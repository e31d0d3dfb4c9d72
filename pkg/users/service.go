package users

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/audit"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/auth"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/config"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/email"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/idp"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/monitor"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/storage"
	"github.com/google/uuid"
)

const minPasswordLength = 8

// Service orchestrates account lifecycle operations across the identity
// provider, local storage, the audit trail, and outbound email.
type Service struct {
	store   storage.Store
	idp     *idp.Client
	auditor *audit.Logger
	monitor *monitor.Monitor
	mailer  *email.Mailer
	tokens  config.TokenConfig
	log     *observability.Logger
	now     func() time.Time
}

func NewService(store storage.Store, idpClient *idp.Client, auditor *audit.Logger, mon *monitor.Monitor, mailer *email.Mailer, tokens config.TokenConfig, log *observability.Logger) *Service {
	return &Service{
		store:   store,
		idp:     idpClient,
		auditor: auditor,
		monitor: mon,
		mailer:  mailer,
		tokens:  tokens,
		log:     log,
		now:     time.Now,
	}
}

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (in *RegisterInput) validate() error {
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return httputil.NewValidationError("A valid email address is required")
	}
	if len(in.Password) < minPasswordLength {
		return httputil.NewValidationError("Password must be at least 8 characters long")
	}
	if in.Username == "" {
		in.Username = in.Email
	}
	return nil
}

// Register creates the account at the identity provider first, then the
// local record. When the local write fails the provider user is deleted so
// the two systems never disagree about who exists.
func (s *Service) Register(ctx context.Context, in RegisterInput, ip, userAgent string) (*storage.User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, in.Email); err == nil {
		return nil, httputil.NewConflictError("User already exists")
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	subjectID, err := s.idp.CreateUser(ctx, idp.NewUser{
		Email:     in.Email,
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Password:  in.Password,
	})
	if err != nil {
		return nil, err
	}
	if err := s.idp.AssignRealmRoles(ctx, subjectID, string(auth.RoleCustomer)); err != nil {
		s.log.WithError(err).WithField("subjectId", subjectID).Warn("failed to assign default role at provider")
	}

	user := &storage.User{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Email:     in.Email,
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Roles:     []string{string(auth.RoleCustomer)},
		Active:    true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if delErr := s.idp.DeleteUser(ctx, subjectID); delErr != nil {
			s.log.WithError(delErr).WithField("subjectId", subjectID).
				Error("failed to roll back provider user after local create failure")
		}
		if errors.Is(err, storage.ErrConflict) {
			return nil, httputil.NewConflictError("User already exists")
		}
		return nil, err
	}

	s.auditor.LogRegistration(ctx, user.ID, user.Email, ip, userAgent)

	token, err := s.issueVerificationToken(user)
	if err != nil {
		s.log.WithError(err).WithField("userId", user.ID).Error("failed to issue verification token")
	} else if err := s.mailer.SendVerification(ctx, user.Email, token); err != nil {
		s.log.WithError(err).WithField("userId", user.ID).Warn("failed to send verification email")
	}

	return user, nil
}

// Login exchanges credentials for tokens and feeds the audit trail and the
// monitor on both outcomes.
func (s *Service) Login(ctx context.Context, emailAddr, password, ip, userAgent string) (*idp.TokenSet, *storage.User, error) {
	emailAddr = strings.TrimSpace(strings.ToLower(emailAddr))
	s.auditor.LogLoginAttempt(ctx, emailAddr, ip, userAgent)

	tokens, err := s.idp.PasswordGrant(ctx, emailAddr, password)
	if err != nil {
		s.auditor.LogLoginFailure(ctx, emailAddr, ip, userAgent, "invalid credentials")
		s.monitor.TrackLoginFailure(ctx, ip, emailAddr)
		return nil, nil, err
	}

	user, lookupErr := s.store.GetUserByEmail(ctx, emailAddr)
	if lookupErr != nil && !errors.Is(lookupErr, storage.ErrNotFound) {
		s.log.WithContext(ctx).WithError(lookupErr).WithField("email", emailAddr).Warn("failed to load local user at login")
	}
	if user != nil && !user.Active {
		s.auditor.LogLoginFailure(ctx, emailAddr, ip, userAgent, "account deactivated")
		return nil, nil, httputil.NewAuthenticationError("Account is deactivated")
	}

	userID := ""
	if user != nil {
		userID = user.ID
	}
	s.auditor.LogLoginSuccess(ctx, userID, emailAddr, ip, userAgent)
	s.monitor.ResetFailureCount(ip, emailAddr)
	return tokens, user, nil
}

// Refresh exchanges a refresh token for a new token set.
func (s *Service) Refresh(ctx context.Context, refreshToken, ip string) (*idp.TokenSet, error) {
	tokens, err := s.idp.RefreshGrant(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	s.auditor.LogTokenRefresh(ctx, "", ip)
	return tokens, nil
}

// Logout revokes the refresh token at the provider. Revocation is best
// effort; logout always succeeds from the caller's perspective.
func (s *Service) Logout(ctx context.Context, userID, refreshToken, ip string) {
	s.idp.Logout(ctx, refreshToken)
	s.auditor.LogLogout(ctx, userID, ip)
}

// GetBySubject resolves the local record for a verified identity.
func (s *Service) GetBySubject(ctx context.Context, subjectID string) (*storage.User, error) {
	user, err := s.store.GetUserBySubject(ctx, subjectID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, httputil.NewNotFoundError("User not found")
	}
	return user, err
}

// List returns users matching the filter plus the unpaged total.
func (s *Service) List(ctx context.Context, filter storage.UserFilter) ([]*storage.User, int64, error) {
	return s.store.ListUsers(ctx, filter)
}

// UpdateRole replaces a user's roles locally and mirrors the assignment at
// the identity provider.
func (s *Service) UpdateRole(ctx context.Context, userID string, role auth.Role) (*storage.User, error) {
	if !auth.ValidRole(role) {
		return nil, httputil.NewValidationError("Unknown role")
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, httputil.NewNotFoundError("User not found")
	} else if err != nil {
		return nil, err
	}

	if err := s.idp.EnsureRealmRoles(ctx, string(role)); err != nil {
		return nil, err
	}
	if err := s.idp.AssignRealmRoles(ctx, user.SubjectID, string(role)); err != nil {
		return nil, err
	}

	user.Roles = []string{string(role)}
	if err := s.store.UpdateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.WithFields(map[string]interface{}{
		"userId": userID,
		"role":   string(role),
	}).Info("user role updated")
	return user, nil
}

// Delete soft-deletes the local record and removes the provider account.
func (s *Service) Delete(ctx context.Context, userID string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return httputil.NewNotFoundError("User not found")
	} else if err != nil {
		return err
	}

	if err := s.store.SoftDeleteUser(ctx, userID); err != nil {
		return err
	}
	if err := s.idp.DeleteUser(ctx, user.SubjectID); err != nil {
		s.log.WithError(err).WithField("subjectId", user.SubjectID).
			Error("failed to delete provider user after local soft delete")
		return err
	}
	return nil
}

// ChangePassword verifies the current password through a credentials grant
// before setting the new one at the provider.
func (s *Service) ChangePassword(ctx context.Context, subjectID, emailAddr, currentPassword, newPassword, ip string) error {
	if len(newPassword) < minPasswordLength {
		return httputil.NewValidationError("Password must be at least 8 characters long")
	}
	if _, err := s.idp.PasswordGrant(ctx, emailAddr, currentPassword); err != nil {
		return httputil.NewAuthenticationError("Current password is incorrect")
	}
	if err := s.idp.ResetPassword(ctx, subjectID, newPassword); err != nil {
		return err
	}
	if user, err := s.store.GetUserBySubject(ctx, subjectID); err == nil {
		s.auditor.LogPasswordChange(ctx, user.ID, ip)
	} else {
		s.auditor.LogPasswordChange(ctx, subjectID, ip)
	}
	return nil
}
