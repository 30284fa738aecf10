package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velurapp/velura/internal/domain"
	"github.com/velurapp/velura/internal/repository"
)

func TestCreateSubscriptionExpiration(t *testing.T) {
	tests := []struct {
		name       string
		tier       func() *domain.Tier
		cycle      domain.BillingCycle
		wantExpiry func(now time.Time) *time.Time
	}{
		{
			name:  "monthly adds one month",
			tier:  proTier,
			cycle: domain.BillingCycleMonthly,
			wantExpiry: func(now time.Time) *time.Time {
				e := now.AddDate(0, 1, 0)
				return &e
			},
		},
		{
			name:  "annual adds one year",
			tier:  proTier,
			cycle: domain.BillingCycleAnnual,
			wantExpiry: func(now time.Time) *time.Time {
				e := now.AddDate(1, 0, 0)
				return &e
			},
		},
		{
			name:       "free tier never expires",
			tier:       freeTier,
			cycle:      domain.BillingCycleMonthly,
			wantExpiry: func(time.Time) *time.Time { return nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemory()
			tier := tt.tier()
			store.AddTier(tier)
			svc := NewSubscriptionService(store, store, testLogger())

			now := time.Now().UTC()
			sub, err := svc.Create(context.Background(), CreateSubscriptionParams{
				TenantID: uuid.New(),
				TierKey:  tier.Key,
				Cycle:    tt.cycle,
			})
			require.NoError(t, err)

			assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
			assert.Equal(t, tier.ID, sub.TierID)

			want := tt.wantExpiry(now)
			if want == nil {
				assert.Nil(t, sub.ExpiresAt)
				return
			}
			require.NotNil(t, sub.ExpiresAt)
			assert.WithinDuration(t, *want, *sub.ExpiresAt, 5*time.Second)
		})
	}
}

func TestCreateSubscriptionConflict(t *testing.T) {
	store := repository.NewMemory()
	tier := freeTier()
	store.AddTier(tier)
	svc := NewSubscriptionService(store, store, testLogger())
	tenantID := uuid.New()

	_, err := svc.Create(context.Background(), CreateSubscriptionParams{
		TenantID: tenantID, TierKey: tier.Key, Cycle: domain.BillingCycleMonthly,
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateSubscriptionParams{
		TenantID: tenantID, TierKey: tier.Key, Cycle: domain.BillingCycleMonthly,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
}

func TestCreateSubscriptionUnknownTier(t *testing.T) {
	store := repository.NewMemory()
	svc := NewSubscriptionService(store, store, testLogger())

	_, err := svc.Create(context.Background(), CreateSubscriptionParams{
		TenantID: uuid.New(), TierKey: "platinum", Cycle: domain.BillingCycleMonthly,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestUpgradeRecomputesExpirationFromNow(t *testing.T) {
	// Upgrading annual resets the term: the new expiration is roughly now +
	// 1 year, not stacked on the 10 months remaining on the old term.
	store := repository.NewMemory()
	free := freeTier()
	pro := proTier()
	store.AddTier(free)
	store.AddTier(pro)

	tenantID := uuid.New()
	tenMonthsOut := time.Now().UTC().AddDate(0, 10, 0)
	_ = store.CreateSubscription(context.Background(), &domain.Subscription{
		ID:        uuid.New(),
		TenantID:  tenantID,
		TierID:    free.ID,
		Tier:      free,
		Status:    domain.SubscriptionStatusActive,
		StartedAt: time.Now().UTC().AddDate(0, -2, 0),
		ExpiresAt: &tenMonthsOut,
	})

	svc := NewSubscriptionService(store, store, testLogger())
	now := time.Now().UTC()
	sub, err := svc.Upgrade(context.Background(), UpgradeSubscriptionParams{
		TenantID: tenantID, TierKey: "pro", Cycle: domain.BillingCycleAnnual,
	})
	require.NoError(t, err)

	assert.Equal(t, pro.ID, sub.TierID)
	assert.Equal(t, domain.SubscriptionStatusActive, sub.Status)
	assert.WithinDuration(t, now, sub.StartedAt, 5*time.Second)
	require.NotNil(t, sub.ExpiresAt)
	assert.WithinDuration(t, now.AddDate(1, 0, 0), *sub.ExpiresAt, 5*time.Second)

	stored := store.SubscriptionFor(tenantID)
	require.NotNil(t, stored)
	assert.Equal(t, pro.ID, stored.TierID)
}

func TestUpgradeWithoutSubscription(t *testing.T) {
	store := repository.NewMemory()
	store.AddTier(proTier())
	svc := NewSubscriptionService(store, store, testLogger())

	_, err := svc.Upgrade(context.Background(), UpgradeSubscriptionParams{
		TenantID: uuid.New(), TierKey: "pro", Cycle: domain.BillingCycleMonthly,
	})
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestExtendStacksOnExistingExpiration(t *testing.T) {
	// A subscription expiring in 10 days extended by 2 months ends at the
	// original expiration + 2 months, not now + 2 months.
	store := repository.NewMemory()
	pro := proTier()
	store.AddTier(pro)

	tenantID := uuid.New()
	tenDaysOut := time.Now().UTC().AddDate(0, 0, 10).Truncate(time.Second)
	_ = store.CreateSubscription(context.Background(), &domain.Subscription{
		ID:        uuid.New(),
		TenantID:  tenantID,
		TierID:    pro.ID,
		Tier:      pro,
		Status:    domain.SubscriptionStatusActive,
		StartedAt: time.Now().UTC(),
		ExpiresAt: &tenDaysOut,
	})

	svc := NewSubscriptionService(store, store, testLogger())
	sub, err := svc.Extend(context.Background(), tenantID, 2, "")
	require.NoError(t, err)

	require.NotNil(t, sub.ExpiresAt)
	assert.Equal(t, tenDaysOut.AddDate(0, 2, 0), *sub.ExpiresAt)
}

func TestExtendWithoutExpirationStartsFromNow(t *testing.T) {
	store := repository.NewMemory()
	tenantID := activeSub(store, freeTier(), nil)

	svc := NewSubscriptionService(store, store, testLogger())
	now := time.Now().UTC()
	sub, err := svc.Extend(context.Background(), tenantID, 3, "")
	require.NoError(t, err)

	require.NotNil(t, sub.ExpiresAt)
	assert.WithinDuration(t, now.AddDate(0, 3, 0), *sub.ExpiresAt, 5*time.Second)
}

func TestExtendValidation(t *testing.T) {
	store := repository.NewMemory()
	svc := NewSubscriptionService(store, store, testLogger())

	_, err := svc.Extend(context.Background(), uuid.New(), 0, "")
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	_, err = svc.Extend(context.Background(), uuid.New(), 2, "")
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestCancelPreservesTierAndExpiration(t *testing.T) {
	store := repository.NewMemory()
	pro := proTier()
	inAMonth := time.Now().UTC().AddDate(0, 1, 0)
	tenantID := activeSub(store, pro, &inAMonth)

	svc := NewSubscriptionService(store, store, testLogger())
	err := svc.Cancel(context.Background(), tenantID, "requested by owner")
	require.NoError(t, err)

	stored := store.SubscriptionFor(tenantID)
	require.NotNil(t, stored)
	assert.Equal(t, domain.SubscriptionStatusCancelled, stored.Status)
	assert.Equal(t, pro.ID, stored.TierID)
	require.NotNil(t, stored.ExpiresAt)
	assert.Equal(t, "requested by owner", stored.Notes)
}

func TestDowngradeExpiredSweep(t *testing.T) {
	store := repository.NewMemory()
	free := freeTier()
	pro := proTier()
	store.AddTier(free)
	store.AddTier(pro)

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	nextMonth := time.Now().UTC().AddDate(0, 1, 0)

	expired1 := activeSubWithTier(store, pro, &yesterday)
	expired2 := activeSubWithTier(store, pro, &yesterday)
	current := activeSubWithTier(store, pro, &nextMonth)
	forever := activeSubWithTier(store, free, nil)

	svc := NewSubscriptionService(store, store, testLogger())
	count, err := svc.DowngradeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, tenantID := range []uuid.UUID{expired1, expired2} {
		stored := store.SubscriptionFor(tenantID)
		require.NotNil(t, stored)
		assert.Equal(t, domain.SubscriptionStatusExpired, stored.Status)
		assert.Equal(t, free.ID, stored.TierID)
		assert.Nil(t, stored.ExpiresAt)
	}

	// Untouched rows.
	assert.Equal(t, domain.SubscriptionStatusActive, store.SubscriptionFor(current).Status)
	assert.Equal(t, domain.SubscriptionStatusActive, store.SubscriptionFor(forever).Status)

	// Idempotent: a second run with no new expirations changes nothing.
	count, err = svc.DowngradeExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestDowngradeExpiredSkipsFailedRows(t *testing.T) {
	store := repository.NewMemory()
	free := freeTier()
	pro := proTier()
	store.AddTier(free)
	store.AddTier(pro)

	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	healthy := activeSubWithTier(store, pro, &yesterday)
	broken := activeSubWithTier(store, pro, &yesterday)
	store.FailUpdateFor(broken, errors.New("row locked"))

	svc := NewSubscriptionService(store, store, testLogger())
	count, err := svc.DowngradeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	assert.Equal(t, domain.SubscriptionStatusExpired, store.SubscriptionFor(healthy).Status)
	// Partial success: the failed row stays active until the next run.
	assert.Equal(t, domain.SubscriptionStatusActive, store.SubscriptionFor(broken).Status)

	store.FailUpdateFor(broken, nil)
	count, err = svc.DowngradeExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, domain.SubscriptionStatusExpired, store.SubscriptionFor(broken).Status)
}

// activeSubWithTier stores an active subscription without re-registering the tier.
func activeSubWithTier(store *repository.Memory, tier *domain.Tier, expiresAt *time.Time) uuid.UUID {
	tenantID := uuid.New()
	_ = store.CreateSubscription(context.Background(), &domain.Subscription{
		ID:        uuid.New(),
		TenantID:  tenantID,
		TierID:    tier.ID,
		Tier:      tier,
		Status:    domain.SubscriptionStatusActive,
		StartedAt: time.Now().UTC().AddDate(0, -1, 0),
		ExpiresAt: expiresAt,
	})
	return tenantID
}
