package vendors

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/audit"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/auth"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/email"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/idp"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/storage"
	"github.com/google/uuid"
)

// Service runs the vendor workflow: customers apply, admins review, approval
// promotes the user and opens a storefront profile.
type Service struct {
	store   storage.Store
	idp     *idp.Client
	auditor *audit.Logger
	mailer  *email.Mailer
	log     *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

func NewService(store storage.Store, idpClient *idp.Client, auditor *audit.Logger, mailer *email.Mailer, log *observability.Logger) *Service {
	return &Service{
		store:   store,
		idp:     idpClient,
		auditor: auditor,
		mailer:  mailer,
		log:     log,
		now:     time.Now,
	}
}

// WithMetrics enables the per-action workflow counter.
func (s *Service) WithMetrics(m *observability.Metrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) count(action string) {
	if s.metrics != nil {
		s.metrics.VendorRequestsTotal.WithLabelValues(action).Inc()
	}
}

// RequestInput carries the business fields of a vendor application.
type RequestInput struct {
	BusinessName string `json:"businessName"`
	BusinessType string `json:"businessType"`
	Description  string `json:"description"`
	Phone        string `json:"phone"`
}

func (in *RequestInput) validate() error {
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.BusinessType = strings.TrimSpace(in.BusinessType)
	if in.BusinessName == "" {
		return httputil.NewValidationError("Business name is required")
	}
	if in.BusinessType == "" {
		return httputil.NewValidationError("Business type is required")
	}
	return nil
}

// CreateRequest files a vendor application for the user. A user has at most
// one request ever; a second submission conflicts regardless of the first
// one's outcome.
func (s *Service) CreateRequest(ctx context.Context, userID string, in RequestInput) (*storage.VendorRequest, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	if existing, err := s.store.GetVendorRequestByUser(ctx, userID); err == nil {
		switch existing.Status {
		case storage.VendorRequestPending:
			return nil, httputil.NewConflictError("A vendor request already exists for this user")
		case storage.VendorRequestApproved:
			return nil, httputil.NewConflictError("You are already a vendor")
		default:
			return nil, httputil.NewConflictError("A vendor request already exists for this user")
		}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	request := &storage.VendorRequest{
		ID:           uuid.NewString(),
		UserID:       userID,
		BusinessName: in.BusinessName,
		BusinessType: in.BusinessType,
		Description:  in.Description,
		Phone:        in.Phone,
		Status:       storage.VendorRequestPending,
	}
	if err := s.store.CreateVendorRequest(ctx, request); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, httputil.NewConflictError("A vendor request already exists for this user")
		}
		return nil, err
	}

	s.count("created")
	s.auditor.LogVendorRequest(ctx, audit.EventVendorRequestCreated, userID, request.ID, map[string]interface{}{
		"businessName": in.BusinessName,
	})
	return request, nil
}

// RequestStatus returns the user's latest request.
func (s *Service) RequestStatus(ctx context.Context, userID string) (*storage.VendorRequest, error) {
	request, err := s.store.GetVendorRequestByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, httputil.NewNotFoundError("No vendor request found")
	}
	return request, err
}

// ListPending returns requests awaiting review.
func (s *Service) ListPending(ctx context.Context, page, limit int) ([]*storage.VendorRequest, int64, error) {
	return s.store.ListVendorRequests(ctx, storage.VendorRequestFilter{
		Status: storage.VendorRequestPending,
		Page:   page,
		Limit:  limit,
	})
}

// sagaStep is one ordered unit of the approval write. compensate undoes run
// and is invoked for completed steps, newest first, when a later step fails.
type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

func (s *Service) runSaga(ctx context.Context, steps []sagaStep) error {
	done := make([]sagaStep, 0, len(steps))
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			s.log.WithContext(ctx).WithError(err).WithField("step", step.name).Error("vendor approval step failed, compensating")
			for i := len(done) - 1; i >= 0; i-- {
				prev := done[i]
				if prev.compensate == nil {
					continue
				}
				if compErr := prev.compensate(ctx); compErr != nil {
					s.log.WithError(compErr).WithField("step", prev.name).
						Error("vendor approval compensation failed")
					s.auditor.LogSuspiciousActivity(ctx, "", "vendor approval compensation failed", map[string]interface{}{
						"step": prev.name, "error": compErr.Error(),
					})
				}
			}
			return err
		}
		done = append(done, step)
	}
	return nil
}

// Approve promotes the requesting user to vendor. The steps run in a fixed
// order with compensation: provider role assignment, local role update,
// request transition, profile creation. A failure rolls back what completed.
func (s *Service) Approve(ctx context.Context, userID, reviewerID string) (*storage.VendorProfile, error) {
	request, err := s.store.GetVendorRequestByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, httputil.NewNotFoundError("No vendor request found for this user")
	} else if err != nil {
		return nil, err
	}
	if request.Status != storage.VendorRequestPending {
		return nil, httputil.NewConflictError("Vendor request has already been reviewed")
	}

	user, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, httputil.NewNotFoundError("User not found")
	} else if err != nil {
		return nil, err
	}

	previousRoles := append([]string(nil), user.Roles...)
	profile := &storage.VendorProfile{
		ID:           uuid.NewString(),
		UserID:       userID,
		BusinessName: request.BusinessName,
		BusinessType: request.BusinessType,
		Description:  request.Description,
		Phone:        request.Phone,
		Active:       true,
	}

	steps := []sagaStep{
		{
			name: "assign provider role",
			run: func(ctx context.Context) error {
				if err := s.idp.EnsureRealmRoles(ctx, string(auth.RoleVendor)); err != nil {
					return err
				}
				return s.idp.AssignRealmRoles(ctx, user.SubjectID, string(auth.RoleVendor))
			},
			// Role removal is not exposed by the client; a stale provider
			// role without the local role grants nothing, so log only.
			compensate: nil,
		},
		{
			name: "update local role",
			run: func(ctx context.Context) error {
				user.Roles = []string{string(auth.RoleVendor)}
				return s.store.UpdateUser(ctx, user)
			},
			compensate: func(ctx context.Context) error {
				user.Roles = previousRoles
				return s.store.UpdateUser(ctx, user)
			},
		},
		{
			name: "mark request approved",
			run: func(ctx context.Context) error {
				now := s.now()
				request.Status = storage.VendorRequestApproved
				request.ReviewedBy = reviewerID
				request.ReviewedAt = &now
				return s.store.UpdateVendorRequest(ctx, request)
			},
			compensate: func(ctx context.Context) error {
				request.Status = storage.VendorRequestPending
				request.ReviewedBy = ""
				request.ReviewedAt = nil
				return s.store.UpdateVendorRequest(ctx, request)
			},
		},
		{
			name: "create vendor profile",
			run: func(ctx context.Context) error {
				return s.store.CreateVendorProfile(ctx, profile)
			},
		},
	}

	if err := s.runSaga(ctx, steps); err != nil {
		return nil, err
	}

	s.count("approved")
	s.auditor.LogVendorRequest(ctx, audit.EventVendorRequestApproved, userID, request.ID, map[string]interface{}{
		"reviewedBy":   reviewerID,
		"businessName": request.BusinessName,
	})

	if s.mailer != nil && user.Email != "" {
		if err := s.mailer.SendVendorApproved(ctx, user.Email, request.BusinessName); err != nil {
			s.log.WithError(err).WithField("userId", userID).Warn("failed to send vendor approval email")
		}
	}
	return profile, nil
}

// Reject closes the user's pending request with a reason. The user keeps
// their current role and no profile is created.
func (s *Service) Reject(ctx context.Context, userID, reviewerID, reason string) (*storage.VendorRequest, error) {
	request, err := s.store.GetVendorRequestByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, httputil.NewNotFoundError("No vendor request found for this user")
	} else if err != nil {
		return nil, err
	}
	if request.Status != storage.VendorRequestPending {
		return nil, httputil.NewConflictError("Vendor request has already been reviewed")
	}

	now := s.now()
	request.Status = storage.VendorRequestRejected
	request.RejectionReason = reason
	request.ReviewedBy = reviewerID
	request.ReviewedAt = &now
	if err := s.store.UpdateVendorRequest(ctx, request); err != nil {
		return nil, err
	}

	s.count("rejected")
	s.auditor.LogVendorRequest(ctx, audit.EventVendorRequestRejected, userID, request.ID, map[string]interface{}{
		"reviewedBy": reviewerID,
		"reason":     reason,
	})
	return request, nil
}
