// Package domain contains core business types and interfaces.
//
// This file defines the Subscription domain type binding a tenant to a tier.
// Each tenant has exactly one subscription row.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus represents the possible states of a tenant's subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// BillingCycle determines how a subscription's expiration is computed.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleAnnual  BillingCycle = "annual"
)

// ParseBillingCycle validates a billing cycle string from an API request.
func ParseBillingCycle(s string) (BillingCycle, error) {
	switch BillingCycle(s) {
	case BillingCycleMonthly:
		return BillingCycleMonthly, nil
	case BillingCycleAnnual:
		return BillingCycleAnnual, nil
	default:
		return "", Errorf(EINVALID, "subscription.parse_cycle", "unknown billing cycle %q", s)
	}
}

// Subscription binds a tenant to a tier.
//
// A nil ExpiresAt means the subscription never expires (free tier).
type Subscription struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	TierID    uuid.UUID
	Tier      *Tier // embedded on fetch, joined from the tiers table
	Status    SubscriptionStatus
	StartedAt time.Time
	ExpiresAt *time.Time
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive classifies the subscription at evaluation time.
//
// The expiration check runs on every call rather than being cached: the
// downgrade sweep is asynchronous, so a subscription can be logically expired
// while its status column still reads "active". All entitlement consumers
// must go through this predicate.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SubscriptionStatusActive {
		return false
	}
	if s.ExpiresAt == nil {
		return true
	}
	return s.ExpiresAt.After(now)
}

// IsExpired reports whether an active subscription has a past expiration
// (i.e. it is due to be picked up by the downgrade sweep).
func (s *Subscription) IsExpired(now time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return s.Status == SubscriptionStatusActive && !s.ExpiresAt.After(now)
}
