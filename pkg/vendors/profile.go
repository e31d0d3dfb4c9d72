package vendors

import (
	"context"
	"errors"
	"strings"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/storage"
)

// Profile returns the storefront profile for a vendor user.
func (s *Service) Profile(ctx context.Context, userID string) (*storage.VendorProfile, error) {
	profile, err := s.store.GetVendorProfileByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, httputil.NewNotFoundError("Vendor profile not found")
	}
	return profile, err
}

// PublicProfile returns an active storefront by its id.
func (s *Service) PublicProfile(ctx context.Context, profileID string) (*storage.VendorProfile, error) {
	profile, err := s.store.GetVendorProfile(ctx, profileID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, httputil.NewNotFoundError("Vendor not found")
	} else if err != nil {
		return nil, err
	}
	if !profile.Active {
		return nil, httputil.NewNotFoundError("Vendor not found")
	}
	return profile, nil
}

// ProfileUpdate carries the vendor-editable profile fields. Ownership,
// status, and rating state are not editable through this path.
type ProfileUpdate struct {
	BusinessName *string `json:"businessName"`
	BusinessType *string `json:"businessType"`
	Description  *string `json:"description"`
	Phone        *string `json:"phone"`
}

// UpdateProfile applies the editable fields to the caller's profile.
func (s *Service) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*storage.VendorProfile, error) {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if update.BusinessName != nil {
		name := strings.TrimSpace(*update.BusinessName)
		if name == "" {
			return nil, httputil.NewValidationError("Business name cannot be empty")
		}
		profile.BusinessName = name
	}
	if update.BusinessType != nil {
		profile.BusinessType = strings.TrimSpace(*update.BusinessType)
	}
	if update.Description != nil {
		profile.Description = *update.Description
	}
	if update.Phone != nil {
		profile.Phone = *update.Phone
	}

	if err := s.store.UpdateVendorProfile(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// ListActive returns active storefronts for the public catalog.
func (s *Service) ListActive(ctx context.Context, filter storage.VendorProfileFilter) ([]*storage.VendorProfile, int64, error) {
	filter.ActiveOnly = true
	return s.store.ListVendorProfiles(ctx, filter)
}

// Stats summarizes a vendor's storefront counters.
type Stats struct {
	Rating      float64 `json:"rating"`
	RatingCount int64   `json:"ratingCount"`
	OrderCount  int64   `json:"orderCount"`
	Active      bool    `json:"active"`
}

// VendorStats returns the counters for a vendor user.
func (s *Service) VendorStats(ctx context.Context, userID string) (*Stats, error) {
	profile, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Rating:      profile.Rating,
		RatingCount: profile.RatingCount,
		OrderCount:  profile.OrderCount,
		Active:      profile.Active,
	}, nil
}

// UpdateRating folds one new rating into the running average.
func (s *Service) UpdateRating(ctx context.Context, profileID string, rating float64) error {
	if rating < 1 || rating > 5 {
		return httputil.NewValidationError("Rating must be between 1 and 5")
	}
	profile, err := s.store.GetVendorProfile(ctx, profileID)
	if errors.Is(err, storage.ErrNotFound) {
		return httputil.NewNotFoundError("Vendor not found")
	} else if err != nil {
		return err
	}

	total := profile.Rating*float64(profile.RatingCount) + rating
	profile.RatingCount++
	profile.Rating = total / float64(profile.RatingCount)
	return s.store.UpdateVendorProfile(ctx, profile)
}

// RecordOrder bumps the vendor's completed order counter.
func (s *Service) RecordOrder(ctx context.Context, profileID string) error {
	profile, err := s.store.GetVendorProfile(ctx, profileID)
	if errors.Is(err, storage.ErrNotFound) {
		return httputil.NewNotFoundError("Vendor not found")
	} else if err != nil {
		return err
	}
	profile.OrderCount++
	return s.store.UpdateVendorProfile(ctx, profile)
}
