package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velurapp/velura/internal/domain"
	"github.com/velurapp/velura/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func freeTier() *domain.Tier {
	return &domain.Tier{
		ID:               uuid.New(),
		Key:              domain.TierKeyFree,
		Name:             "Free",
		MaxServices:      3,
		MaxProducts:      5,
		MaxGalleryImages: 10,
		MaxThemes:        1,
		DisplayOrder:     1,
		Active:           true,
	}
}

func proTier() *domain.Tier {
	return &domain.Tier{
		ID:               uuid.New(),
		Key:              "pro",
		Name:             "Pro",
		MaxServices:      25,
		MaxProducts:      domain.Unlimited,
		MaxGalleryImages: 100,
		MaxThemes:        10,
		Features:         []string{"custom_domain", "remove_branding"},
		DisplayOrder:     2,
		Active:           true,
	}
}

// activeSub stores an active subscription on the given tier for a new tenant.
func activeSub(store *repository.Memory, tier *domain.Tier, expiresAt *time.Time) uuid.UUID {
	tenantID := uuid.New()
	store.AddTier(tier)
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

func TestCanCreateStrictBoundary(t *testing.T) {
	tests := []struct {
		name  string
		count int64
		want  bool
	}{
		{"below limit", 2, true},
		{"exactly at limit denies", 3, false},
		{"over limit denies", 4, false},
		{"zero usage", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := repository.NewMemory()
			tenantID := activeSub(store, freeTier(), nil) // max_services = 3
			store.SetCount(tenantID, domain.ResourceServices, tt.count)

			svc := NewQuotaService(store, store, testLogger())
			got, err := svc.CanCreate(context.Background(), tenantID, domain.ResourceServices)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanCreateUnlimitedAlwaysAllows(t *testing.T) {
	store := repository.NewMemory()
	tenantID := activeSub(store, proTier(), nil) // max_products unlimited
	store.SetCount(tenantID, domain.ResourceProducts, 1_000_000)

	svc := NewQuotaService(store, store, testLogger())
	got, err := svc.CanCreate(context.Background(), tenantID, domain.ResourceProducts)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestCanCreateDeniesWithoutSubscription(t *testing.T) {
	store := repository.NewMemory()
	svc := NewQuotaService(store, store, testLogger())

	got, err := svc.CanCreate(context.Background(), uuid.New(), domain.ResourceServices)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestCanCreateDeniesLogicallyExpiredSubscription(t *testing.T) {
	// Status still says active but the expiration is in the past; the sweep
	// has not run yet. Every consumer must still treat this as inactive.
	store := repository.NewMemory()
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	tenantID := activeSub(store, proTier(), &yesterday)
	store.SetCount(tenantID, domain.ResourceServices, 0)

	svc := NewQuotaService(store, store, testLogger())
	got, err := svc.CanCreate(context.Background(), tenantID, domain.ResourceServices)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestCanCreateDeniesCancelledSubscription(t *testing.T) {
	store := repository.NewMemory()
	tier := proTier()
	store.AddTier(tier)
	tenantID := uuid.New()
	_ = store.CreateSubscription(context.Background(), &domain.Subscription{
		ID:       uuid.New(),
		TenantID: tenantID,
		TierID:   tier.ID,
		Tier:     tier,
		Status:   domain.SubscriptionStatusCancelled,
	})

	svc := NewQuotaService(store, store, testLogger())
	got, err := svc.CanCreate(context.Background(), tenantID, domain.ResourceServices)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestCanCreateFailsClosedOnStoreError(t *testing.T) {
	store := repository.NewMemory()
	tenantID := activeSub(store, freeTier(), nil)
	store.FailCounts(errors.New("connection refused"))

	svc := NewQuotaService(store, store, testLogger())
	got, err := svc.CanCreate(context.Background(), tenantID, domain.ResourceServices)
	assert.Error(t, err)
	assert.False(t, got)
}

func TestCanCreateAfterDeletingOneService(t *testing.T) {
	// Free tier caps services at 3. At 3 the tenant is denied; after one
	// deletion brings the count to 2, creation is allowed again.
	store := repository.NewMemory()
	tenantID := activeSub(store, freeTier(), nil)
	svc := NewQuotaService(store, store, testLogger())

	store.SetCount(tenantID, domain.ResourceServices, 3)
	got, err := svc.CanCreate(context.Background(), tenantID, domain.ResourceServices)
	require.NoError(t, err)
	assert.False(t, got)

	store.SetCount(tenantID, domain.ResourceServices, 2)
	got, err = svc.CanCreate(context.Background(), tenantID, domain.ResourceServices)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEnsureCanCreate(t *testing.T) {
	store := repository.NewMemory()
	tenantID := activeSub(store, freeTier(), nil) // max_services = 3
	svc := NewQuotaService(store, store, testLogger())

	store.SetCount(tenantID, domain.ResourceServices, 2)
	require.NoError(t, svc.EnsureCanCreate(context.Background(), tenantID, domain.ResourceServices))

	store.SetCount(tenantID, domain.ResourceServices, 3)
	err := svc.EnsureCanCreate(context.Background(), tenantID, domain.ResourceServices)
	require.Error(t, err)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
}

func TestEnsureCanCreateWithoutSubscription(t *testing.T) {
	store := repository.NewMemory()
	svc := NewQuotaService(store, store, testLogger())

	err := svc.EnsureCanCreate(context.Background(), uuid.New(), domain.ResourceServices)
	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
}

func TestGetQuotaReport(t *testing.T) {
	store := repository.NewMemory()
	tenantID := activeSub(store, proTier(), nil)
	store.SetCount(tenantID, domain.ResourceServices, 25) // at cap
	store.SetCount(tenantID, domain.ResourceProducts, 500)
	store.SetCount(tenantID, domain.ResourceGalleryImages, 40)

	svc := NewQuotaService(store, store, testLogger())
	report, err := svc.GetQuotaReport(context.Background(), tenantID)
	require.NoError(t, err)
	require.NotNil(t, report)

	// At the cap: percentage reads exactly 100 and creation is denied.
	assert.Equal(t, int64(25), report.Services.Used)
	assert.False(t, report.Services.CanCreate)
	assert.InDelta(t, 100, report.Services.Percentage, 0.0001)

	// Unlimited: zero percentage, always allowed.
	assert.True(t, report.Products.Unlimited)
	assert.True(t, report.Products.CanCreate)
	assert.Zero(t, report.Products.Percentage)

	assert.Equal(t, int64(40), report.GalleryImages.Used)
	assert.True(t, report.GalleryImages.CanCreate)
	assert.InDelta(t, 40, report.GalleryImages.Percentage, 0.0001)
}

func TestGetQuotaReportNoActiveSubscription(t *testing.T) {
	store := repository.NewMemory()
	svc := NewQuotaService(store, store, testLogger())
	tenantID := uuid.New()

	// Fail-closed and idempotent: repeated calls with no subscription yield
	// the same nil report.
	for i := 0; i < 2; i++ {
		report, err := svc.GetQuotaReport(context.Background(), tenantID)
		assert.Nil(t, report)
		require.Error(t, err)
		assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	}
}

func TestGetQuotaReportExpiredSubscription(t *testing.T) {
	store := repository.NewMemory()
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	tenantID := activeSub(store, proTier(), &yesterday)

	svc := NewQuotaService(store, store, testLogger())
	report, err := svc.GetQuotaReport(context.Background(), tenantID)
	assert.Nil(t, report)
	require.Error(t, err)
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
}

func TestGetQuotaReportCountFailure(t *testing.T) {
	store := repository.NewMemory()
	tenantID := activeSub(store, freeTier(), nil)
	store.FailCounts(errors.New("connection refused"))

	svc := NewQuotaService(store, store, testLogger())
	report, err := svc.GetQuotaReport(context.Background(), tenantID)
	assert.Nil(t, report)
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}
