// Package billing provides Stripe billing integration for subscription management.
package billing

import (
	"fmt"

	"github.com/stripe/stripe-go/v79"
	billingportalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/velurapp/velura/internal/domain"
)

// Plan is a tier key plus the billing cycle a Stripe price ID maps to.
type Plan struct {
	TierKey string
	Cycle   domain.BillingCycle
}

// Service defines the interface for billing operations.
type Service interface {
	// CreateCheckoutSession creates a Stripe Checkout session for subscribing.
	// Returns the checkout URL to redirect the salon owner to.
	CreateCheckoutSession(tenantID, priceID, successURL, cancelURL string) (string, error)

	// CreatePortalSession creates a Stripe Customer Portal session.
	// Returns the portal URL to redirect the salon owner to.
	CreatePortalSession(customerID, returnURL string) (string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// PlanForPriceID returns the tier key and billing cycle for a Stripe
	// price ID. ok is false for unrecognized price IDs.
	PlanForPriceID(priceID string) (Plan, bool)
}

// PriceConfig holds the Stripe price IDs for each paid plan.
type PriceConfig struct {
	ProMonthlyPriceID     string
	ProAnnualPriceID      string
	PremiumMonthlyPriceID string
	PremiumAnnualPriceID  string
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	prices        PriceConfig
	priceToPlan   map[string]Plan // maps price ID -> plan
}

// NewStripeService creates a new Stripe billing service.
//
// The secretKey is used to authenticate Stripe API calls.
// The webhookSecret is used to verify incoming webhook signatures.
// The prices configure which Stripe price IDs map to which plans.
func NewStripeService(secretKey, webhookSecret string, prices PriceConfig) Service {
	stripe.Key = secretKey

	priceToPlan := make(map[string]Plan)
	if prices.ProMonthlyPriceID != "" {
		priceToPlan[prices.ProMonthlyPriceID] = Plan{TierKey: "pro", Cycle: domain.BillingCycleMonthly}
	}
	if prices.ProAnnualPriceID != "" {
		priceToPlan[prices.ProAnnualPriceID] = Plan{TierKey: "pro", Cycle: domain.BillingCycleAnnual}
	}
	if prices.PremiumMonthlyPriceID != "" {
		priceToPlan[prices.PremiumMonthlyPriceID] = Plan{TierKey: "premium", Cycle: domain.BillingCycleMonthly}
	}
	if prices.PremiumAnnualPriceID != "" {
		priceToPlan[prices.PremiumAnnualPriceID] = Plan{TierKey: "premium", Cycle: domain.BillingCycleAnnual}
	}

	return &stripeService{
		webhookSecret: webhookSecret,
		prices:        prices,
		priceToPlan:   priceToPlan,
	}
}

func (s *stripeService) CreateCheckoutSession(tenantID, priceID, successURL, cancelURL string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
	}
	// The tenant ID rides along in metadata so the webhook can resolve
	// which salon paid. It is set on the subscription too, so later
	// subscription and invoice events carry it as well.
	params.AddMetadata("tenant_id", tenantID)
	params.AddMetadata("price_id", priceID)
	params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
		Metadata: map[string]string{"tenant_id": tenantID},
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) CreatePortalSession(customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := billingportalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create portal session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe verify webhook: %w", err)
	}
	return event, nil
}

func (s *stripeService) PlanForPriceID(priceID string) (Plan, bool) {
	plan, ok := s.priceToPlan[priceID]
	return plan, ok
}
