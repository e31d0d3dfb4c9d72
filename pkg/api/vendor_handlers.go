package api

import (
	"net/http"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/storage"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/vendors"
)

// vendorHandlers serves the public catalog and vendor self-service routes.
type vendorHandlers struct {
	server  *Server
	vendors *vendors.Service
}

func (h *vendorHandlers) listPublic(w http.ResponseWriter, r *http.Request) error {
	page, limit := httputil.ParsePageWindow(r)
	filter := storage.VendorProfileFilter{
		Search:       httputil.ParseQueryString(r, "search", ""),
		BusinessType: httputil.ParseQueryString(r, "category", ""),
		SortByRating: httputil.ParseQueryString(r, "sort", "") == "rating",
		Page:         page,
		Limit:        limit,
	}

	profiles, total, err := h.vendors.ListActive(r.Context(), filter)
	if err != nil {
		return err
	}
	return httputil.WritePaginated(w, profiles, httputil.NewPagination(page, limit, total))
}

func (h *vendorHandlers) getPublic(w http.ResponseWriter, r *http.Request) error {
	vendorID, err := httputil.ParsePathString(r, "vendorId")
	if err != nil {
		return httputil.NewValidationError("Vendor id is required")
	}

	profile, err := h.vendors.PublicProfile(r.Context(), vendorID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, profile)
}

func (h *vendorHandlers) createRequest(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	user, err := h.server.deps.Users.GetBySubject(r.Context(), id.SubjectID)
	if err != nil {
		return err
	}

	var in vendors.RequestInput
	if err := httputil.ParseJSON(r, &in); err != nil {
		return httputil.NewValidationError("Invalid request body")
	}

	request, err := h.vendors.CreateRequest(r.Context(), user.ID, in)
	if err != nil {
		return err
	}
	return httputil.WriteCreated(w, "Vendor request submitted", request)
}

func (h *vendorHandlers) requestStatus(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	user, err := h.server.deps.Users.GetBySubject(r.Context(), id.SubjectID)
	if err != nil {
		return err
	}

	request, err := h.vendors.RequestStatus(r.Context(), user.ID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, request)
}

func (h *vendorHandlers) profile(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	user, err := h.server.deps.Users.GetBySubject(r.Context(), id.SubjectID)
	if err != nil {
		return err
	}

	profile, err := h.vendors.Profile(r.Context(), user.ID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, profile)
}

func (h *vendorHandlers) updateProfile(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	user, err := h.server.deps.Users.GetBySubject(r.Context(), id.SubjectID)
	if err != nil {
		return err
	}

	var in vendors.ProfileUpdate
	if err := httputil.ParseJSON(r, &in); err != nil {
		return httputil.NewValidationError("Invalid request body")
	}

	profile, err := h.vendors.UpdateProfile(r.Context(), user.ID, in)
	if err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "Profile updated", profile)
}

func (h *vendorHandlers) stats(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}

	user, err := h.server.deps.Users.GetBySubject(r.Context(), id.SubjectID)
	if err != nil {
		return err
	}

	stats, err := h.vendors.VendorStats(r.Context(), user.ID)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, stats)
}
