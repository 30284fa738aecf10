package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velurapp/velura/internal/domain"
	"github.com/velurapp/velura/internal/repository"
)

func TestGetTierByKey(t *testing.T) {
	store := repository.NewMemory()
	store.AddTier(freeTier())
	store.AddTier(proTier())
	svc := NewCatalogService(store, testLogger())

	tier, err := svc.GetTierByKey(context.Background(), "pro")
	require.NoError(t, err)
	assert.Equal(t, "pro", tier.Key)
	assert.Equal(t, int32(25), tier.MaxServices)

	_, err = svc.GetTierByKey(context.Background(), "enterprise")
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	_, err = svc.GetTierByKey(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestGetTierByKeyIgnoresInactiveTiers(t *testing.T) {
	store := repository.NewMemory()
	legacy := proTier()
	legacy.Key = "legacy"
	legacy.Active = false
	store.AddTier(legacy)
	svc := NewCatalogService(store, testLogger())

	_, err := svc.GetTierByKey(context.Background(), "legacy")
	require.Error(t, err)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestListTiersOrderedByDisplayOrder(t *testing.T) {
	store := repository.NewMemory()
	pro := proTier() // display order 2
	free := freeTier()
	premium := &domain.Tier{
		Key:          "premium",
		Name:         "Premium",
		DisplayOrder: 3,
		Active:       true,
	}
	hidden := &domain.Tier{Key: "hidden", DisplayOrder: 0, Active: false}
	store.AddTier(premium)
	store.AddTier(pro)
	store.AddTier(free)
	store.AddTier(hidden)

	svc := NewCatalogService(store, testLogger())
	tiers, err := svc.ListTiers(context.Background())
	require.NoError(t, err)
	require.Len(t, tiers, 3)
	assert.Equal(t, "free", tiers[0].Key)
	assert.Equal(t, "pro", tiers[1].Key)
	assert.Equal(t, "premium", tiers[2].Key)
}

func TestListTiersStoreError(t *testing.T) {
	store := repository.NewMemory()
	store.FailTiers(errors.New("connection refused"))
	svc := NewCatalogService(store, testLogger())

	tiers, err := svc.ListTiers(context.Background())
	assert.Nil(t, tiers)
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}
