// Package handler contains HTTP handlers for the Velura entitlement API.
//
// This file implements the billing endpoints backed by Stripe. The dashboard
// calls these to start a checkout for a paid plan or to open the Stripe
// customer portal; the resulting webhooks drive the subscription lifecycle.
//
// Routes handled:
//   - POST /api/billing/checkout -> CreateCheckout
//   - POST /api/billing/portal   -> OpenPortal
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/velurapp/velura/internal/auth"
	"github.com/velurapp/velura/internal/billing"
	"github.com/velurapp/velura/internal/domain"
)

// BillingHandler handles billing HTTP requests.
type BillingHandler struct {
	billing billing.Service
	baseURL string
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		baseURL: baseURL,
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux behind the
// given tenant middleware.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireTenant func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/checkout", requireTenant(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireTenant(http.HandlerFunc(h.OpenPortal)))
}

type checkoutRequest struct {
	PriceID string `json:"price_id"`
}

// CreateCheckout creates a Stripe Checkout session for the calling tenant
// and returns the URL to redirect the salon owner to.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.checkout"

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINTERNAL, op, "billing is not configured"))
		return
	}

	tenantID := auth.GetTenantID(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PriceID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "price_id is required"))
		return
	}

	if _, ok := h.billing.PlanForPriceID(req.PriceID); !ok {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "unknown price_id"))
		return
	}

	url, err := h.billing.CreateCheckoutSession(
		tenantID.String(),
		req.PriceID,
		h.baseURL+"/billing/success",
		h.baseURL+"/billing/cancelled",
	)
	if err != nil {
		h.logger.Error("checkout session creation failed", "error", err, "tenant_id", tenantID)
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINTERNAL, op, "could not start checkout"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

type portalRequest struct {
	CustomerID string `json:"customer_id"`
}

// OpenPortal creates a Stripe customer portal session and returns its URL.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.portal"

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINTERNAL, op, "billing is not configured"))
		return
	}

	tenantID := auth.GetTenantID(r.Context())

	var req portalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "customer_id is required"))
		return
	}

	url, err := h.billing.CreatePortalSession(req.CustomerID, h.baseURL+"/billing")
	if err != nil {
		h.logger.Error("portal session creation failed", "error", err, "tenant_id", tenantID)
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.EINTERNAL, op, "could not open billing portal"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
