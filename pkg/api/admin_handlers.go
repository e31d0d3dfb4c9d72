package api

import (
	"net/http"
	"time"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/audit"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/auth"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/httputil"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/monitor"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/storage"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/users"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/vendors"
)

// adminHandlers serves the /api/admin surface.
type adminHandlers struct {
	server  *Server
	users   *users.Service
	vendors *vendors.Service
	auditor *audit.Logger
	monitor *monitor.Monitor
}

func (h *adminHandlers) listUsers(w http.ResponseWriter, r *http.Request) error {
	page, limit := httputil.ParsePageWindow(r)
	filter := storage.UserFilter{
		Role:   httputil.ParseQueryString(r, "role", ""),
		Search: httputil.ParseQueryString(r, "search", ""),
		Page:   page,
		Limit:  limit,
	}
	switch httputil.ParseQueryString(r, "status", "") {
	case "active":
		active := true
		filter.Active = &active
	case "inactive":
		active := false
		filter.Active = &active
	}

	list, total, err := h.users.List(r.Context(), filter)
	if err != nil {
		return err
	}
	return httputil.WritePaginated(w, list, httputil.NewPagination(page, limit, total))
}

func (h *adminHandlers) updateUserRole(w http.ResponseWriter, r *http.Request) error {
	userID, err := httputil.ParsePathString(r, "userId")
	if err != nil {
		return httputil.NewValidationError("User id is required")
	}

	var in struct {
		Role string `json:"role"`
	}
	if err := httputil.ParseJSON(r, &in); err != nil || in.Role == "" {
		return httputil.NewValidationError("Role is required")
	}

	user, err := h.users.UpdateRole(r.Context(), userID, auth.Role(in.Role))
	if err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "Role updated", user)
}

func (h *adminHandlers) deleteUser(w http.ResponseWriter, r *http.Request) error {
	userID, err := httputil.ParsePathString(r, "userId")
	if err != nil {
		return httputil.NewValidationError("User id is required")
	}

	if err := h.users.Delete(r.Context(), userID); err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "User deleted", nil)
}

func (h *adminHandlers) pendingVendors(w http.ResponseWriter, r *http.Request) error {
	page, limit := httputil.ParsePageWindow(r)
	requests, total, err := h.vendors.ListPending(r.Context(), page, limit)
	if err != nil {
		return err
	}
	return httputil.WritePaginated(w, requests, httputil.NewPagination(page, limit, total))
}

// reviewVendor handles PUT /api/admin/vendors/{userId}/approve with a body
// of {approved: bool, reason?: string}. Approved requests promote the user;
// rejected ones record the reason.
func (h *adminHandlers) reviewVendor(w http.ResponseWriter, r *http.Request) error {
	id, err := identity(r)
	if err != nil {
		return err
	}
	userID, err := httputil.ParsePathString(r, "userId")
	if err != nil {
		return httputil.NewValidationError("User id is required")
	}

	var in struct {
		Approved bool   `json:"approved"`
		Reason   string `json:"reason"`
	}
	if err := httputil.ParseJSON(r, &in); err != nil {
		return httputil.NewValidationError("Invalid request body")
	}

	reviewer, err := h.users.GetBySubject(r.Context(), id.SubjectID)
	if err != nil {
		return err
	}

	if in.Approved {
		profile, err := h.vendors.Approve(r.Context(), userID, reviewer.ID)
		if err != nil {
			return err
		}
		return httputil.WriteSuccessMessage(w, "Vendor request approved", profile)
	}

	if in.Reason == "" {
		return httputil.NewValidationError("A reason is required to reject a vendor request")
	}
	request, err := h.vendors.Reject(r.Context(), userID, reviewer.ID, in.Reason)
	if err != nil {
		return err
	}
	return httputil.WriteSuccessMessage(w, "Vendor request rejected", request)
}

func (h *adminHandlers) platformStats(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	_, totalUsers, err := h.users.List(ctx, storage.UserFilter{Limit: 1})
	if err != nil {
		return err
	}
	_, pendingRequests, err := h.vendors.ListPending(ctx, 1, 1)
	if err != nil {
		return err
	}
	_, activeVendors, err := h.vendors.ListActive(ctx, storage.VendorProfileFilter{Limit: 1})
	if err != nil {
		return err
	}

	return httputil.WriteSuccess(w, map[string]interface{}{
		"totalUsers":            totalUsers,
		"activeVendors":         activeVendors,
		"pendingVendorRequests": pendingRequests,
	})
}

func (h *adminHandlers) auditLogs(w http.ResponseWriter, r *http.Request) error {
	limit, err := httputil.ParseQueryInt(r, "limit", audit.DefaultQueryLimit)
	if err != nil {
		return httputil.NewValidationError("Invalid limit")
	}

	filter := audit.QueryFilter{
		EventType: audit.EventType(httputil.ParseQueryString(r, "eventType", "")),
		Severity:  audit.Severity(httputil.ParseQueryString(r, "severity", "")),
		UserID:    httputil.ParseQueryString(r, "userId", ""),
		IPAddress: httputil.ParseQueryString(r, "ip", ""),
		Limit:     limit,
	}
	if since := httputil.ParseQueryString(r, "since", ""); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return httputil.NewValidationError("Invalid since timestamp, expected RFC3339")
		}
		filter.Since = &ts
	}
	if until := httputil.ParseQueryString(r, "until", ""); until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return httputil.NewValidationError("Invalid until timestamp, expected RFC3339")
		}
		filter.Until = &ts
	}

	entries, err := h.auditor.Query(filter)
	if err != nil {
		return err
	}

	// format=csv|ndjson|json downloads the matching entries instead of
	// returning the usual envelope.
	if format := httputil.ParseQueryString(r, "format", ""); format != "" {
		data, err := audit.Export(entries, audit.ExportFormat(format))
		if err != nil {
			return httputil.NewValidationError("Unknown export format")
		}
		w.Header().Set("Content-Type", audit.ExportFormat(format).ContentType())
		w.Header().Set("Content-Disposition", "attachment; filename=audit-log."+format)
		_, err = w.Write(data)
		return err
	}

	return httputil.WriteSuccess(w, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

func (h *adminHandlers) monitoringHealth(w http.ResponseWriter, r *http.Request) error {
	return httputil.WriteSuccess(w, h.monitor.Health())
}

func (h *adminHandlers) monitoringReport(w http.ResponseWriter, r *http.Request) error {
	hours, err := httputil.ParseQueryInt(r, "hours", 24)
	if err != nil || hours < 1 {
		return httputil.NewValidationError("Invalid hours parameter")
	}

	report, err := h.monitor.GenerateReport(time.Duration(hours) * time.Hour)
	if err != nil {
		return err
	}
	return httputil.WriteSuccess(w, report)
}
