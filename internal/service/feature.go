// Package service contains the business logic layer.
//
// This file implements the feature gate: boolean checks for named optional
// capabilities (custom domain, branding removal, ...) granted by tier.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/velurapp/velura/internal/domain"
	"github.com/velurapp/velura/internal/metrics"
)

// FeatureService gates named optional capabilities by subscription tier.
type FeatureService interface {
	// HasFeatureAccess reports whether the tenant's active subscription
	// grants the named feature. A missing or inactive subscription grants
	// nothing. A non-nil error means the check could not be completed;
	// callers must deny in that case.
	HasFeatureAccess(ctx context.Context, tenantID uuid.UUID, feature string) (bool, error)
}

type featureService struct {
	subs   SubscriptionStore
	logger *slog.Logger
}

// NewFeatureService creates a new FeatureService.
func NewFeatureService(subs SubscriptionStore, logger *slog.Logger) FeatureService {
	return &featureService{
		subs:   subs,
		logger: logger,
	}
}

func (s *featureService) HasFeatureAccess(ctx context.Context, tenantID uuid.UUID, feature string) (bool, error) {
	const op = "feature.has_access"

	if feature == "" {
		return false, domain.Invalid(op, "feature name is required")
	}

	sub, err := s.subs.GetSubscriptionByTenant(ctx, tenantID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			metrics.FeatureChecks.WithLabelValues("deny").Inc()
			return false, nil
		}
		s.logger.Error("subscription fetch failed", "tenant_id", tenantID, "feature", feature, "error", err)
		metrics.FeatureChecks.WithLabelValues("error").Inc()
		return false, err
	}
	if !sub.IsActive(time.Now().UTC()) {
		metrics.FeatureChecks.WithLabelValues("deny").Inc()
		return false, nil
	}
	granted := sub.Tier.HasFeature(feature)
	if granted {
		metrics.FeatureChecks.WithLabelValues("allow").Inc()
	} else {
		metrics.FeatureChecks.WithLabelValues("deny").Inc()
	}
	return granted, nil
}
