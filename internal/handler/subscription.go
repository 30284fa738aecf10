// Package handler contains HTTP handlers for the Velura entitlement API.
//
// This file implements the admin subscription lifecycle endpoints. All routes
// sit behind the admin bearer token middleware; these are the elevated-
// privilege write paths for support staff and internal tooling.
//
// Routes handled:
//   - GET  /api/subscription             -> GetCurrent (tenant-facing)
//   - POST /admin/subscriptions          -> Create
//   - POST /admin/subscriptions/upgrade  -> Upgrade
//   - POST /admin/subscriptions/extend   -> Extend
//   - POST /admin/subscriptions/cancel   -> Cancel
//   - POST /admin/sweep                  -> Sweep
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/velurapp/velura/internal/auth"
	"github.com/velurapp/velura/internal/domain"
	"github.com/velurapp/velura/internal/service"
)

// SubscriptionHandler handles subscription lifecycle HTTP requests.
type SubscriptionHandler struct {
	subs   service.SubscriptionService
	logger *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subs service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subs:   subs,
		logger: logger,
	}
}

// RegisterRoutes registers subscription routes on the provided mux. Tenant
// routes go behind requireTenant, admin routes behind requireAdmin.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, requireTenant, requireAdmin func(http.Handler) http.Handler) {
	mux.Handle("GET /api/subscription", requireTenant(http.HandlerFunc(h.GetCurrent)))

	mux.Handle("POST /admin/subscriptions", requireAdmin(http.HandlerFunc(h.Create)))
	mux.Handle("POST /admin/subscriptions/upgrade", requireAdmin(http.HandlerFunc(h.Upgrade)))
	mux.Handle("POST /admin/subscriptions/extend", requireAdmin(http.HandlerFunc(h.Extend)))
	mux.Handle("POST /admin/subscriptions/cancel", requireAdmin(http.HandlerFunc(h.Cancel)))
	mux.Handle("POST /admin/sweep", requireAdmin(http.HandlerFunc(h.Sweep)))
}

type subscriptionResponse struct {
	TenantID  uuid.UUID  `json:"tenant_id"`
	Tier      string     `json:"tier"`
	Status    string     `json:"status"`
	Active    bool       `json:"active"`
	StartedAt time.Time  `json:"started_at"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func newSubscriptionResponse(sub *domain.Subscription) subscriptionResponse {
	resp := subscriptionResponse{
		TenantID:  sub.TenantID,
		Status:    string(sub.Status),
		Active:    sub.IsActive(time.Now().UTC()),
		StartedAt: sub.StartedAt,
		ExpiresAt: sub.ExpiresAt,
	}
	if sub.Tier != nil {
		resp.Tier = sub.Tier.Key
	}
	return resp
}

// GetCurrent returns the calling tenant's subscription.
func (h *SubscriptionHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.GetTenantID(r.Context())

	sub, err := h.subs.GetCurrent(r.Context(), tenantID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newSubscriptionResponse(sub))
}

type createSubscriptionRequest struct {
	TenantID string `json:"tenant_id"`
	Tier     string `json:"tier"`
	Cycle    string `json:"cycle"`
	Notes    string `json:"notes"`
}

// Create provisions a subscription for a tenant.
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handler.subscription.create"

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid request body"))
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "tenant_id must be a valid UUID"))
		return
	}

	cycle, err := domain.ParseBillingCycle(req.Cycle)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sub, err := h.subs.Create(r.Context(), service.CreateSubscriptionParams{
		TenantID: tenantID,
		TierKey:  req.Tier,
		Cycle:    cycle,
		Notes:    req.Notes,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, newSubscriptionResponse(sub))
}

// Upgrade moves a tenant to a new tier with a fresh term.
func (h *SubscriptionHandler) Upgrade(w http.ResponseWriter, r *http.Request) {
	const op = "handler.subscription.upgrade"

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid request body"))
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "tenant_id must be a valid UUID"))
		return
	}

	cycle, err := domain.ParseBillingCycle(req.Cycle)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sub, err := h.subs.Upgrade(r.Context(), service.UpgradeSubscriptionParams{
		TenantID: tenantID,
		TierKey:  req.Tier,
		Cycle:    cycle,
		Notes:    req.Notes,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newSubscriptionResponse(sub))
}

type extendSubscriptionRequest struct {
	TenantID string `json:"tenant_id"`
	Months   int    `json:"months"`
	Notes    string `json:"notes"`
}

// Extend adds months to a tenant's existing expiration.
func (h *SubscriptionHandler) Extend(w http.ResponseWriter, r *http.Request) {
	const op = "handler.subscription.extend"

	var req extendSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid request body"))
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "tenant_id must be a valid UUID"))
		return
	}

	sub, err := h.subs.Extend(r.Context(), tenantID, req.Months, req.Notes)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newSubscriptionResponse(sub))
}

type cancelSubscriptionRequest struct {
	TenantID string `json:"tenant_id"`
	Notes    string `json:"notes"`
}

// Cancel marks a tenant's subscription cancelled.
func (h *SubscriptionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	const op = "handler.subscription.cancel"

	var req cancelSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "invalid request body"))
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "tenant_id must be a valid UUID"))
		return
	}

	if err := h.subs.Cancel(r.Context(), tenantID, req.Notes); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// Sweep triggers the expired-subscription downgrade on demand. The same
// routine also runs on the cron schedule; running both is safe because the
// sweep is idempotent.
func (h *SubscriptionHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	downgraded, err := h.subs.DowngradeExpired(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"downgraded": downgraded})
}
