// Package handler contains HTTP handlers for the Velura entitlement API.
//
// This file implements the tenant-facing quota and feature gate endpoints.
//
// Routes handled:
//   - GET /api/quota              -> GetQuotaReport
//   - GET /api/quota/{kind}/check -> CheckQuota
//   - GET /api/features/{feature} -> CheckFeature
//
// All routes require the tenant identity header resolved by middleware.
package handler

import (
	"log/slog"
	"net/http"

	"github.com/velurapp/velura/internal/auth"
	"github.com/velurapp/velura/internal/domain"
	"github.com/velurapp/velura/internal/service"
)

// QuotaHandler handles quota and feature gate HTTP requests.
type QuotaHandler struct {
	quota    service.QuotaService
	features service.FeatureService
	logger   *slog.Logger
}

// NewQuotaHandler creates a new QuotaHandler.
func NewQuotaHandler(quota service.QuotaService, features service.FeatureService, logger *slog.Logger) *QuotaHandler {
	return &QuotaHandler{
		quota:    quota,
		features: features,
		logger:   logger,
	}
}

// RegisterRoutes registers quota routes on the provided mux behind the given
// tenant middleware.
func (h *QuotaHandler) RegisterRoutes(mux *http.ServeMux, requireTenant func(http.Handler) http.Handler) {
	mux.Handle("GET /api/quota", requireTenant(http.HandlerFunc(h.GetQuotaReport)))
	mux.Handle("GET /api/quota/{kind}/check", requireTenant(http.HandlerFunc(h.CheckQuota)))
	mux.Handle("GET /api/features/{feature}", requireTenant(http.HandlerFunc(h.CheckFeature)))
}

// GetQuotaReport returns usage against limits for every metered resource.
// Responds 402 when the tenant has no active subscription.
func (h *QuotaHandler) GetQuotaReport(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.GetTenantID(r.Context())

	report, err := h.quota.GetQuotaReport(r.Context(), tenantID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// CheckQuota reports whether the tenant may create one more unit of the
// resource kind in the path. Store failures surface as 500 and must be
// treated as a deny by callers.
func (h *QuotaHandler) CheckQuota(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.GetTenantID(r.Context())

	kind, err := domain.ParseResourceKind(r.PathValue("kind"))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	allowed, err := h.quota.CanCreate(r.Context(), tenantID, kind)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"resource":   kind,
		"can_create": allowed,
	})
}

// CheckFeature reports whether the tenant's tier grants the named feature.
func (h *QuotaHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.GetTenantID(r.Context())
	feature := r.PathValue("feature")

	granted, err := h.features.HasFeatureAccess(r.Context(), tenantID, feature)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"feature": feature,
		"granted": granted,
	})
}
