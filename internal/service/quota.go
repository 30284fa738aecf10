// Package service contains the business logic layer.
//
// This file implements the quota service for deciding whether a tenant may
// create one more unit of a metered resource under its subscription tier.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/velurapp/velura/internal/domain"
	"github.com/velurapp/velura/internal/metrics"
)

// UsageStore defines the live-count reads quota decisions need.
type UsageStore interface {
	// CountResources returns the current number of rows the tenant owns in
	// the resource kind's table, computed fresh at call time.
	CountResources(ctx context.Context, tenantID uuid.UUID, kind domain.ResourceKind) (int64, error)
}

// QuotaService defines operations for checking tier quota limits.
type QuotaService interface {
	// CanCreate reports whether the tenant may create one more unit of the
	// resource kind. An inactive or missing subscription denies
	// unconditionally. The comparison is strict: a tenant at exactly the
	// limit is denied. A non-nil error means the check could not be
	// completed; callers must deny in that case too.
	CanCreate(ctx context.Context, tenantID uuid.UUID, kind domain.ResourceKind) (bool, error)

	// EnsureCanCreate is the error-returning form of CanCreate for write
	// paths: nil when creation is allowed, a domain.EQUOTA error at the cap,
	// and a domain.EPAYMENT error without an active subscription.
	EnsureCanCreate(ctx context.Context, tenantID uuid.UUID, kind domain.ResourceKind) error

	// GetQuotaReport returns usage against limits for every metered resource
	// kind in one pass. Returns a domain.EPAYMENT error when the tenant has
	// no active subscription. The three counts are independent concurrent
	// queries, not a shared snapshot.
	GetQuotaReport(ctx context.Context, tenantID uuid.UUID) (*domain.QuotaReport, error)
}

type quotaService struct {
	subs   SubscriptionStore
	usage  UsageStore
	logger *slog.Logger
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(subs SubscriptionStore, usage UsageStore, logger *slog.Logger) QuotaService {
	return &quotaService{
		subs:   subs,
		usage:  usage,
		logger: logger,
	}
}

// CanCreate decides whether a tenant may create one more unit of a resource.
//
// Note there is no transaction spanning the count and the caller's subsequent
// insert: two concurrent creation requests can both pass the check before
// either write lands, exceeding the limit by one. Quota here is a product
// boundary, not a hard security invariant.
func (s *quotaService) CanCreate(ctx context.Context, tenantID uuid.UUID, kind domain.ResourceKind) (bool, error) {
	const op = "quota.can_create"

	sub, err := s.activeSubscription(ctx, tenantID)
	if err != nil {
		metrics.QuotaChecks.WithLabelValues(string(kind), "error").Inc()
		return false, err
	}
	if sub == nil {
		metrics.QuotaChecks.WithLabelValues(string(kind), "deny").Inc()
		return false, nil
	}

	limit := sub.Tier.LimitFor(kind)
	if domain.IsUnlimited(limit) {
		metrics.QuotaChecks.WithLabelValues(string(kind), "allow").Inc()
		return true, nil
	}

	count, err := s.usage.CountResources(ctx, tenantID, kind)
	if err != nil {
		s.logger.Error("usage count failed", "tenant_id", tenantID, "kind", kind, "error", err)
		metrics.QuotaChecks.WithLabelValues(string(kind), "error").Inc()
		return false, err
	}

	allowed := count < int64(limit)
	if allowed {
		metrics.QuotaChecks.WithLabelValues(string(kind), "allow").Inc()
	} else {
		metrics.QuotaChecks.WithLabelValues(string(kind), "deny").Inc()
		s.logger.Info("quota limit reached",
			"tenant_id", tenantID,
			"kind", kind,
			"used", count,
			"limit", limit,
		)
	}
	return allowed, nil
}

// EnsureCanCreate distinguishes the two deny cases for callers that gate an
// insert: no entitlement at all versus a full quota.
func (s *quotaService) EnsureCanCreate(ctx context.Context, tenantID uuid.UUID, kind domain.ResourceKind) error {
	const op = "quota.ensure_can_create"

	sub, err := s.activeSubscription(ctx, tenantID)
	if err != nil {
		metrics.QuotaChecks.WithLabelValues(string(kind), "error").Inc()
		return err
	}
	if sub == nil {
		metrics.QuotaChecks.WithLabelValues(string(kind), "deny").Inc()
		return domain.NoActiveSubscription(op)
	}

	limit := sub.Tier.LimitFor(kind)
	if domain.IsUnlimited(limit) {
		metrics.QuotaChecks.WithLabelValues(string(kind), "allow").Inc()
		return nil
	}

	count, err := s.usage.CountResources(ctx, tenantID, kind)
	if err != nil {
		s.logger.Error("usage count failed", "tenant_id", tenantID, "kind", kind, "error", err)
		metrics.QuotaChecks.WithLabelValues(string(kind), "error").Inc()
		return err
	}

	if count >= int64(limit) {
		metrics.QuotaChecks.WithLabelValues(string(kind), "deny").Inc()
		return domain.QuotaExceeded(op, kind, count, limit)
	}
	metrics.QuotaChecks.WithLabelValues(string(kind), "allow").Inc()
	return nil
}

// GetQuotaReport returns usage for all metered resources in one pass.
//
// The counts are issued concurrently and joined before returning. They do not
// share a snapshot, so under concurrent writes the three numbers can reflect
// slightly different points in time.
func (s *quotaService) GetQuotaReport(ctx context.Context, tenantID uuid.UUID) (*domain.QuotaReport, error) {
	const op = "quota.get_report"

	sub, err := s.activeSubscription(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.NoActiveSubscription(op)
	}

	kinds := domain.MeteredResources()
	used := make([]int64, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			count, err := s.usage.CountResources(gctx, tenantID, kind)
			if err != nil {
				return err
			}
			used[i] = count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.Error("quota report counts failed", "tenant_id", tenantID, "error", err)
		return nil, domain.Internal(err, op, "failed to count resource usage")
	}

	var report domain.QuotaReport
	for i, kind := range kinds {
		report.Set(kind, domain.NewResourceQuota(used[i], sub.Tier.LimitFor(kind)))
	}
	return &report, nil
}

// activeSubscription resolves the tenant's subscription and applies the
// read-time activity predicate. A missing or inactive subscription returns
// (nil, nil): a clean deny, distinct from a store failure.
func (s *quotaService) activeSubscription(ctx context.Context, tenantID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.subs.GetSubscriptionByTenant(ctx, tenantID)
	if err != nil {
		if domain.ErrorCode(err) == domain.ENOTFOUND {
			return nil, nil
		}
		s.logger.Error("subscription fetch failed", "tenant_id", tenantID, "error", err)
		return nil, err
	}
	if !sub.IsActive(time.Now().UTC()) {
		return nil, nil
	}
	return sub, nil
}
