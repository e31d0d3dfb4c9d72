package vendors

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/storage"
)

func (h *harness) seedVendor(t *testing.T, id string) *storage.VendorProfile {
	t.Helper()
	h.seedCustomer(t, id)
	ctx := context.Background()
	_, err := h.svc.CreateRequest(ctx, id, validRequest())
	require.NoError(t, err)
	profile, err := h.svc.Approve(ctx, id, "admin-1")
	require.NoError(t, err)
	return profile
}

func strptr(s string) *string { return &s }

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t)
	h.seedVendor(t, "u1")
	ctx := context.Background()

	updated, err := h.svc.UpdateProfile(ctx, "u1", ProfileUpdate{
		BusinessName: strptr("Acme Deluxe"),
		Description:  strptr("Upmarket now"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Deluxe", updated.BusinessName)
	assert.Equal(t, "Upmarket now", updated.Description)
	assert.Equal(t, "retail", updated.BusinessType)
	assert.Equal(t, "u1", updated.UserID)

	_, err = h.svc.UpdateProfile(ctx, "u1", ProfileUpdate{BusinessName: strptr("  ")})
	appErr, ok := httputil.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)

	_, err = h.svc.UpdateProfile(ctx, "nobody", ProfileUpdate{})
	appErr, ok = httputil.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
}

func TestPublicProfileHidesInactive(t *testing.T) {
	h := newHarness(t)
	profile := h.seedVendor(t, "u1")
	ctx := context.Background()

	got, err := h.svc.PublicProfile(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, got.ID)

	stored, err := h.store.GetVendorProfile(ctx, profile.ID)
	require.NoError(t, err)
	stored.Active = false
	require.NoError(t, h.store.UpdateVendorProfile(ctx, stored))

	_, err = h.svc.PublicProfile(ctx, profile.ID)
	appErr, ok := httputil.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, appErr.StatusCode)
}

func TestListActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedVendor(t, "u1")
	p2 := h.seedVendor(t, "u2")

	stored, err := h.store.GetVendorProfile(ctx, p2.ID)
	require.NoError(t, err)
	stored.Active = false
	require.NoError(t, h.store.UpdateVendorProfile(ctx, stored))

	profiles, total, err := h.svc.ListActive(ctx, storage.VendorProfileFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, profiles, 1)
	assert.Equal(t, "u1", profiles[0].UserID)
}

func TestRatingAverageAndOrderCount(t *testing.T) {
	h := newHarness(t)
	profile := h.seedVendor(t, "u1")
	ctx := context.Background()

	require.NoError(t, h.svc.UpdateRating(ctx, profile.ID, 5))
	require.NoError(t, h.svc.UpdateRating(ctx, profile.ID, 4))
	require.NoError(t, h.svc.UpdateRating(ctx, profile.ID, 3))

	err := h.svc.UpdateRating(ctx, profile.ID, 6)
	appErr, ok := httputil.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.StatusCode)

	require.NoError(t, h.svc.RecordOrder(ctx, profile.ID))
	require.NoError(t, h.svc.RecordOrder(ctx, profile.ID))

	stats, err := h.svc.VendorStats(ctx, "u1")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, stats.Rating, 0.0001)
	assert.EqualValues(t, 3, stats.RatingCount)
	assert.EqualValues(t, 2, stats.OrderCount)
	assert.True(t, stats.Active)
}
