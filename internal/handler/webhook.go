// Package handler contains HTTP handlers for the Velura entitlement API.
//
// This file implements the Stripe webhook handler for processing billing events.
//
// Route:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// This route is PUBLIC (no auth middleware) because Stripe calls it directly.
// Authentication is via the Stripe webhook signature verification.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"

	"github.com/velurapp/velura/internal/billing"
	"github.com/velurapp/velura/internal/domain"
	"github.com/velurapp/velura/internal/metrics"
	"github.com/velurapp/velura/internal/service"
)

// WebhookHandler handles incoming webhook events from Stripe.
type WebhookHandler struct {
	billing billing.Service
	subs    service.SubscriptionService
	logger  *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// billingService may be nil when Stripe is not configured.
func NewWebhookHandler(billingService billing.Service, subs service.SubscriptionService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		billing: billingService,
		subs:    subs,
		logger:  logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC — no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	// Read body (limit to 64KB)
	body, err := io.ReadAll(io.LimitReader(r.Body, 65536))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Verify signature
	signature := r.Header.Get("Stripe-Signature")
	event, err := h.billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)
	metrics.WebhookEvents.WithLabelValues(string(event.Type)).Inc()

	// Route to event-specific handler
	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(event)
	case "invoice.payment_succeeded":
		h.handlePaymentSucceeded(event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted switches the paying tenant onto the purchased plan.
// The tenant and price IDs were stamped into the session metadata when the
// checkout session was created.
func (h *WebhookHandler) handleCheckoutCompleted(event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	tenantID, ok := h.tenantFromMetadata(session.Metadata, "checkout session", session.ID)
	if !ok {
		return
	}

	plan, ok := h.billing.PlanForPriceID(session.Metadata["price_id"])
	if !ok {
		h.logger.Warn("checkout session has unrecognized price",
			"session_id", session.ID, "price_id", session.Metadata["price_id"])
		return
	}

	if _, err := h.subs.Upgrade(webhookCtx(), service.UpgradeSubscriptionParams{
		TenantID: tenantID,
		TierKey:  plan.TierKey,
		Cycle:    plan.Cycle,
		Notes:    "stripe checkout " + session.ID,
	}); err != nil {
		h.logger.Error("failed to apply checkout upgrade", "error", err, "tenant_id", tenantID)
		return
	}

	h.logger.Info("checkout applied", "tenant_id", tenantID, "tier", plan.TierKey, "cycle", plan.Cycle)
}

// handleSubscriptionDeleted cancels the tenant's subscription when Stripe
// terminates it. The local row keeps its tier and expiration as history.
func (h *WebhookHandler) handleSubscriptionDeleted(event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return
	}

	tenantID, ok := h.tenantFromMetadata(sub.Metadata, "subscription", sub.ID)
	if !ok {
		return
	}

	if err := h.subs.Cancel(webhookCtx(), tenantID, "stripe subscription "+sub.ID+" deleted"); err != nil {
		h.logger.Error("failed to cancel on subscription deletion", "error", err, "tenant_id", tenantID)
		return
	}

	h.logger.Info("subscription cancelled by stripe", "tenant_id", tenantID, "subscription_id", sub.ID)
}

// handlePaymentSucceeded extends the tenant's expiration by one billing
// period on each renewal invoice.
func (h *WebhookHandler) handlePaymentSucceeded(event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment succeeded event", "error", err)
		return
	}

	// The first invoice for a subscription is already covered by the
	// checkout.session.completed upgrade; only renewals extend.
	if invoice.BillingReason != stripe.InvoiceBillingReasonSubscriptionCycle {
		h.logger.Debug("ignoring non-renewal invoice", "invoice_id", invoice.ID, "reason", invoice.BillingReason)
		return
	}

	if invoice.SubscriptionDetails == nil {
		h.logger.Debug("invoice missing subscription details", "invoice_id", invoice.ID)
		return
	}
	tenantID, ok := h.tenantFromMetadata(invoice.SubscriptionDetails.Metadata, "invoice", invoice.ID)
	if !ok {
		return
	}

	months := 1
	if len(invoice.Lines.Data) > 0 && invoice.Lines.Data[0].Price != nil {
		if plan, found := h.billing.PlanForPriceID(invoice.Lines.Data[0].Price.ID); found && plan.Cycle == domain.BillingCycleAnnual {
			months = 12
		}
	}

	if _, err := h.subs.Extend(webhookCtx(), tenantID, months, "stripe invoice "+invoice.ID); err != nil {
		h.logger.Error("failed to extend on payment success", "error", err, "tenant_id", tenantID)
		return
	}

	h.logger.Info("subscription extended on renewal", "tenant_id", tenantID, "months", months)
}

// tenantFromMetadata extracts and parses the tenant_id metadata entry,
// logging and returning ok=false when absent or malformed.
func (h *WebhookHandler) tenantFromMetadata(metadata map[string]string, source, sourceID string) (uuid.UUID, bool) {
	raw, ok := metadata["tenant_id"]
	if !ok || raw == "" {
		h.logger.Warn("stripe event missing tenant_id metadata", "source", source, "source_id", sourceID)
		return uuid.Nil, false
	}
	tenantID, err := uuid.Parse(raw)
	if err != nil {
		h.logger.Warn("stripe event has malformed tenant_id metadata",
			"source", source, "source_id", sourceID, "tenant_id", raw)
		return uuid.Nil, false
	}
	return tenantID, true
}

// webhookCtx returns a background context for webhook processing.
// Webhooks are async events and don't have a user request context.
func webhookCtx() context.Context {
	return context.Background()
}
