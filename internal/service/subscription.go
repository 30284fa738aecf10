// Package service contains the business logic layer.
//
// This file implements subscription resolution and lifecycle: create,
// upgrade, extend, cancel, and the expired-subscription downgrade sweep.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/velurapp/velura/internal/domain"
	"github.com/velurapp/velura/internal/metrics"
)

// SubscriptionStore defines the subscription persistence the lifecycle needs.
type SubscriptionStore interface {
	// GetSubscriptionByTenant returns the tenant's one subscription with its
	// tier embedded, or a domain.ENOTFOUND error.
	GetSubscriptionByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.Subscription, error)

	// CreateSubscription inserts a new row. Returns domain.ECONFLICT if the
	// tenant already has one.
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error

	// UpdateSubscription overwrites the row's mutable fields. Last write
	// wins; concurrent mutations for the same tenant are not serialized.
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) error

	// ListExpiredActiveSubscriptions returns active subscriptions whose
	// expiration is in the past.
	ListExpiredActiveSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error)
}

// CreateSubscriptionParams contains the validated parameters for creating a
// tenant's subscription.
type CreateSubscriptionParams struct {
	TenantID uuid.UUID
	TierKey  string
	Cycle    domain.BillingCycle
	Notes    string
}

// UpgradeSubscriptionParams contains the parameters for switching a tenant to
// a new tier.
type UpgradeSubscriptionParams struct {
	TenantID uuid.UUID
	TierKey  string
	Cycle    domain.BillingCycle
	Notes    string
}

// SubscriptionService defines subscription resolution and state transitions.
//
// State machine: active (with or without expiration) -> cancelled (terminal,
// explicit); active with a past expiration is swept to expired on the free
// tier by DowngradeExpired.
type SubscriptionService interface {
	// GetCurrent returns the tenant's subscription with its tier embedded.
	// Returns domain.ENOTFOUND if the tenant has none. Activity is decided by
	// Subscription.IsActive at read time, never from a cached value.
	GetCurrent(ctx context.Context, tenantID uuid.UUID) (*domain.Subscription, error)

	// Create inserts a new active subscription. The expiration is computed
	// from the billing cycle; free-tier subscriptions never expire.
	// Returns domain.ECONFLICT if the tenant already has a subscription.
	Create(ctx context.Context, params CreateSubscriptionParams) (*domain.Subscription, error)

	// Upgrade overwrites tier, status, start, and expiration on the existing
	// row. The new expiration is computed from now, not extended from the old
	// one. Returns domain.ENOTFOUND if the tenant has no subscription.
	Upgrade(ctx context.Context, params UpgradeSubscriptionParams) (*domain.Subscription, error)

	// Extend adds calendar months to the existing expiration if present,
	// otherwise to now. Returns domain.ENOTFOUND if the tenant has no
	// subscription.
	Extend(ctx context.Context, tenantID uuid.UUID, months int, notes string) (*domain.Subscription, error)

	// Cancel sets status to cancelled. Tier and expiration are preserved as
	// history.
	Cancel(ctx context.Context, tenantID uuid.UUID, notes string) error

	// DowngradeExpired sweeps active subscriptions with a past expiration
	// back to the free tier with status expired and no expiration. Individual
	// row failures are skipped, not retried; the next scheduled run corrects
	// them. Returns the number of rows changed. Idempotent.
	DowngradeExpired(ctx context.Context) (int, error)
}

type subscriptionService struct {
	subs   SubscriptionStore
	tiers  TierStore
	logger *slog.Logger
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(subs SubscriptionStore, tiers TierStore, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		subs:   subs,
		tiers:  tiers,
		logger: logger,
	}
}

func (s *subscriptionService) GetCurrent(ctx context.Context, tenantID uuid.UUID) (*domain.Subscription, error) {
	const op = "subscription.get_current"

	if tenantID == uuid.Nil {
		return nil, domain.Invalid(op, "tenant ID is required")
	}

	sub, err := s.subs.GetSubscriptionByTenant(ctx, tenantID)
	if err != nil {
		if domain.ErrorCode(err) != domain.ENOTFOUND {
			s.logger.Error("subscription fetch failed", "tenant_id", tenantID, "error", err)
		}
		return nil, err
	}
	return sub, nil
}

func (s *subscriptionService) Create(ctx context.Context, params CreateSubscriptionParams) (*domain.Subscription, error) {
	const op = "subscription.create"

	if params.TenantID == uuid.Nil {
		return nil, domain.Invalid(op, "tenant ID is required")
	}

	tier, err := s.tiers.GetTierByKey(ctx, params.TierKey)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	sub := &domain.Subscription{
		ID:        uuid.New(),
		TenantID:  params.TenantID,
		TierID:    tier.ID,
		Tier:      tier,
		Status:    domain.SubscriptionStatusActive,
		StartedAt: now,
		ExpiresAt: expiryFor(tier, params.Cycle, now),
		Notes:     params.Notes,
	}

	if err := s.subs.CreateSubscription(ctx, sub); err != nil {
		s.logger.Error("subscription create failed", "tenant_id", params.TenantID, "tier", tier.Key, "error", err)
		return nil, err
	}

	metrics.SubscriptionChanges.WithLabelValues("create").Inc()
	s.logger.Info("subscription created", "tenant_id", params.TenantID, "tier", tier.Key, "cycle", params.Cycle)
	return sub, nil
}

func (s *subscriptionService) Upgrade(ctx context.Context, params UpgradeSubscriptionParams) (*domain.Subscription, error) {
	const op = "subscription.upgrade"

	sub, err := s.GetCurrent(ctx, params.TenantID)
	if err != nil {
		return nil, err
	}

	tier, err := s.tiers.GetTierByKey(ctx, params.TierKey)
	if err != nil {
		return nil, err
	}

	// Upgrades start a fresh term: the expiration is recomputed from now,
	// deliberately not stacked on top of whatever was left.
	now := time.Now().UTC()
	sub.TierID = tier.ID
	sub.Tier = tier
	sub.Status = domain.SubscriptionStatusActive
	sub.StartedAt = now
	sub.ExpiresAt = expiryFor(tier, params.Cycle, now)
	if params.Notes != "" {
		sub.Notes = params.Notes
	}

	if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
		s.logger.Error("subscription upgrade failed", "tenant_id", params.TenantID, "tier", tier.Key, "error", err)
		return nil, err
	}

	metrics.SubscriptionChanges.WithLabelValues("upgrade").Inc()
	s.logger.Info("subscription upgraded", "tenant_id", params.TenantID, "tier", tier.Key, "cycle", params.Cycle)
	return sub, nil
}

func (s *subscriptionService) Extend(ctx context.Context, tenantID uuid.UUID, months int, notes string) (*domain.Subscription, error) {
	const op = "subscription.extend"

	if months <= 0 {
		return nil, domain.Invalid(op, "months must be positive")
	}

	sub, err := s.GetCurrent(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	// Extensions stack on the existing expiration: a tenant extending 10
	// days before expiry keeps those 10 days.
	base := time.Now().UTC()
	if sub.ExpiresAt != nil {
		base = *sub.ExpiresAt
	}
	expires := base.AddDate(0, months, 0)
	sub.ExpiresAt = &expires
	if notes != "" {
		sub.Notes = notes
	}

	if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
		s.logger.Error("subscription extend failed", "tenant_id", tenantID, "months", months, "error", err)
		return nil, err
	}

	metrics.SubscriptionChanges.WithLabelValues("extend").Inc()
	s.logger.Info("subscription extended", "tenant_id", tenantID, "months", months, "expires_at", expires)
	return sub, nil
}

func (s *subscriptionService) Cancel(ctx context.Context, tenantID uuid.UUID, notes string) error {
	const op = "subscription.cancel"

	sub, err := s.GetCurrent(ctx, tenantID)
	if err != nil {
		return err
	}

	sub.Status = domain.SubscriptionStatusCancelled
	if notes != "" {
		sub.Notes = notes
	}

	if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
		s.logger.Error("subscription cancel failed", "tenant_id", tenantID, "error", err)
		return err
	}

	metrics.SubscriptionChanges.WithLabelValues("cancel").Inc()
	s.logger.Info("subscription cancelled", "tenant_id", tenantID)
	return nil
}

func (s *subscriptionService) DowngradeExpired(ctx context.Context) (int, error) {
	const op = "subscription.downgrade_expired"

	free, err := s.tiers.GetTierByKey(ctx, domain.TierKeyFree)
	if err != nil {
		s.logger.Error("free tier lookup failed, sweep aborted", "error", err)
		return 0, err
	}

	now := time.Now().UTC()
	expired, err := s.subs.ListExpiredActiveSubscriptions(ctx, now)
	if err != nil {
		s.logger.Error("expired subscription listing failed", "error", err)
		return 0, err
	}

	downgraded := 0
	for _, sub := range expired {
		sub.TierID = free.ID
		sub.Tier = free
		sub.Status = domain.SubscriptionStatusExpired
		sub.ExpiresAt = nil

		if err := s.subs.UpdateSubscription(ctx, sub); err != nil {
			// Skip and move on; the next scheduled run picks the row up again.
			s.logger.Warn("downgrade failed, skipping row", "tenant_id", sub.TenantID, "error", err)
			continue
		}
		downgraded++
	}

	metrics.SweepDowngrades.Add(float64(downgraded))
	if downgraded > 0 || len(expired) > 0 {
		s.logger.Info("expired subscriptions downgraded", "found", len(expired), "downgraded", downgraded)
	}
	return downgraded, nil
}

// expiryFor computes a subscription expiration from a billing cycle.
// Free-tier subscriptions never expire.
func expiryFor(tier *domain.Tier, cycle domain.BillingCycle, from time.Time) *time.Time {
	if tier.IsFree() {
		return nil
	}
	var expires time.Time
	switch cycle {
	case domain.BillingCycleAnnual:
		expires = from.AddDate(1, 0, 0)
	default:
		expires = from.AddDate(0, 1, 0)
	}
	return &expires
}
