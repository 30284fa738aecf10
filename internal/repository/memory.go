package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/velurapp/velura/internal/domain"
)

// Memory is an in-memory store implementing the same methods as Store.
//
// It exists so the service layer can be exercised without a database. Error
// injection hooks simulate backing-store failures for fail-closed paths.
type Memory struct {
	mu     sync.Mutex
	tiers  map[string]*domain.Tier
	subs   map[uuid.UUID]*domain.Subscription // keyed by tenant ID
	counts map[uuid.UUID]map[domain.ResourceKind]int64

	tierErr   error
	subErr    error
	countErr  error
	updateErr map[uuid.UUID]error // keyed by tenant ID
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		tiers:     make(map[string]*domain.Tier),
		subs:      make(map[uuid.UUID]*domain.Subscription),
		counts:    make(map[uuid.UUID]map[domain.ResourceKind]int64),
		updateErr: make(map[uuid.UUID]error),
	}
}

// AddTier registers a tier.
func (m *Memory) AddTier(tier *domain.Tier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tier.ID == uuid.Nil {
		tier.ID = uuid.New()
	}
	m.tiers[tier.Key] = tier
}

// SetCount fixes the live resource count for a tenant and kind.
func (m *Memory) SetCount(tenantID uuid.UUID, kind domain.ResourceKind, count int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts[tenantID] == nil {
		m.counts[tenantID] = make(map[domain.ResourceKind]int64)
	}
	m.counts[tenantID][kind] = count
}

// FailTiers makes tier lookups return err (nil clears).
func (m *Memory) FailTiers(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tierErr = err
}

// FailSubscriptions makes subscription reads return err (nil clears).
func (m *Memory) FailSubscriptions(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subErr = err
}

// FailCounts makes resource counts return err (nil clears).
func (m *Memory) FailCounts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.countErr = err
}

// FailUpdateFor makes subscription updates for one tenant return err.
func (m *Memory) FailUpdateFor(tenantID uuid.UUID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateErr[tenantID] = err
}

// SubscriptionFor returns the stored subscription for inspection in tests.
func (m *Memory) SubscriptionFor(tenantID uuid.UUID) *domain.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneSubscription(m.subs[tenantID])
}

func (m *Memory) GetTierByKey(_ context.Context, key string) (*domain.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tierErr != nil {
		return nil, m.tierErr
	}
	tier, ok := m.tiers[key]
	if !ok || !tier.Active {
		return nil, domain.NotFound("memory.get_tier_by_key", "tier", key)
	}
	return tier, nil
}

func (m *Memory) ListActiveTiers(_ context.Context) ([]*domain.Tier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tierErr != nil {
		return nil, m.tierErr
	}
	var tiers []*domain.Tier
	for _, tier := range m.tiers {
		if tier.Active {
			tiers = append(tiers, tier)
		}
	}
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].DisplayOrder < tiers[j].DisplayOrder
	})
	return tiers, nil
}

func (m *Memory) GetSubscriptionByTenant(_ context.Context, tenantID uuid.UUID) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return nil, m.subErr
	}
	sub, ok := m.subs[tenantID]
	if !ok {
		return nil, domain.NotFound("memory.get_subscription_by_tenant", "subscription", tenantID.String())
	}
	return cloneSubscription(sub), nil
}

func (m *Memory) CreateSubscription(_ context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return m.subErr
	}
	if _, exists := m.subs[sub.TenantID]; exists {
		return domain.Conflict("memory.create_subscription", "tenant already has a subscription")
	}
	now := time.Now()
	stored := cloneSubscription(sub)
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.subs[sub.TenantID] = stored
	return nil
}

func (m *Memory) UpdateSubscription(_ context.Context, sub *domain.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.updateErr[sub.TenantID]; err != nil {
		return err
	}
	existing, ok := m.subs[sub.TenantID]
	if !ok || existing.ID != sub.ID {
		return domain.NotFound("memory.update_subscription", "subscription", sub.ID.String())
	}
	stored := cloneSubscription(sub)
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = time.Now()
	m.subs[sub.TenantID] = stored
	return nil
}

func (m *Memory) ListExpiredActiveSubscriptions(_ context.Context, now time.Time) ([]*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subErr != nil {
		return nil, m.subErr
	}
	var subs []*domain.Subscription
	for _, sub := range m.subs {
		if sub.Status == domain.SubscriptionStatusActive && sub.ExpiresAt != nil && sub.ExpiresAt.Before(now) {
			subs = append(subs, cloneSubscription(sub))
		}
	}
	sort.Slice(subs, func(i, j int) bool {
		return subs[i].ExpiresAt.Before(*subs[j].ExpiresAt)
	})
	return subs, nil
}

func (m *Memory) CountResources(_ context.Context, tenantID uuid.UUID, kind domain.ResourceKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	if _, ok := resourceTables[kind]; !ok {
		return 0, domain.Errorf(domain.EINVALID, "memory.count_resources", "unknown resource kind %q", kind)
	}
	return m.counts[tenantID][kind], nil
}

func cloneSubscription(sub *domain.Subscription) *domain.Subscription {
	if sub == nil {
		return nil
	}
	clone := *sub
	if sub.ExpiresAt != nil {
		t := *sub.ExpiresAt
		clone.ExpiresAt = &t
	}
	return &clone
}
