// Package service contains the business logic layer.
//
// Services orchestrate interactions between stores and domain logic. They are
// responsible for input validation, business rule enforcement, and error
// translation (store errors -> domain errors). Anything touching entitlement
// state is fail-closed: a caller that receives an error must deny access.
package service

import (
	"context"
	"log/slog"

	"github.com/velurapp/velura/internal/domain"
)

// TierStore defines the tier reads the catalog needs.
type TierStore interface {
	// GetTierByKey returns the active tier with the given key, or a
	// domain.ENOTFOUND error.
	GetTierByKey(ctx context.Context, key string) (*domain.Tier, error)

	// ListActiveTiers returns active tiers ordered by display order.
	ListActiveTiers(ctx context.Context) ([]*domain.Tier, error)
}

// CatalogService resolves tier keys to their limit/feature records.
type CatalogService interface {
	// GetTierByKey returns the active tier for a key.
	// Returns domain.ENOTFOUND if no active tier matches; callers must treat
	// that as "no entitlement".
	GetTierByKey(ctx context.Context, key string) (*domain.Tier, error)

	// ListTiers returns all active tiers in display order.
	ListTiers(ctx context.Context) ([]*domain.Tier, error)
}

type catalogService struct {
	tiers  TierStore
	logger *slog.Logger
}

// NewCatalogService creates a new CatalogService.
func NewCatalogService(tiers TierStore, logger *slog.Logger) CatalogService {
	return &catalogService{
		tiers:  tiers,
		logger: logger,
	}
}

func (s *catalogService) GetTierByKey(ctx context.Context, key string) (*domain.Tier, error) {
	const op = "catalog.get_tier_by_key"

	if key == "" {
		return nil, domain.Invalid(op, "tier key is required")
	}

	tier, err := s.tiers.GetTierByKey(ctx, key)
	if err != nil {
		if domain.ErrorCode(err) != domain.ENOTFOUND {
			s.logger.Error("tier lookup failed", "key", key, "error", err)
		}
		return nil, err
	}
	return tier, nil
}

func (s *catalogService) ListTiers(ctx context.Context) ([]*domain.Tier, error) {
	const op = "catalog.list_tiers"

	tiers, err := s.tiers.ListActiveTiers(ctx)
	if err != nil {
		s.logger.Error("tier listing failed", "error", err)
		return nil, domain.Internal(err, op, "failed to list tiers")
	}
	return tiers, nil
}
