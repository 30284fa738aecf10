// Package repository implements persistence for tiers, subscriptions, and
// per-tenant resource usage counts.
//
// The Postgres implementation is the production store. The service layer
// consumes small store interfaces, so tests run against the in-memory
// implementation in memory.go instead of a live database.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/velurapp/velura/internal/domain"
)

// resourceTables maps each metered resource kind to its owning table.
// Kinds are validated against this map; raw strings never reach SQL.
var resourceTables = map[domain.ResourceKind]string{
	domain.ResourceServices:      "services",
	domain.ResourceProducts:      "products",
	domain.ResourceGalleryImages: "gallery_images",
}

// Store is the Postgres-backed repository.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store on top of an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const tierColumns = `id, key, name, description, max_services, max_products,
	max_gallery_images, max_themes, features, display_order, active, created_at, updated_at`

// GetTierByKey returns the active tier with the given key.
// Returns a domain.ENOTFOUND error on lookup miss or inactive tier.
func (s *Store) GetTierByKey(ctx context.Context, key string) (*domain.Tier, error) {
	const op = "repository.get_tier_by_key"

	row := s.db.QueryRowContext(ctx,
		`SELECT `+tierColumns+` FROM tiers WHERE key = $1 AND active = TRUE`, key)

	tier, err := scanTier(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "tier", key)
		}
		return nil, domain.Internal(err, op, "failed to fetch tier")
	}
	return tier, nil
}

// ListActiveTiers returns all active tiers ordered by display order ascending.
func (s *Store) ListActiveTiers(ctx context.Context) ([]*domain.Tier, error) {
	const op = "repository.list_active_tiers"

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tierColumns+` FROM tiers WHERE active = TRUE ORDER BY display_order ASC`)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list tiers")
	}
	defer rows.Close()

	var tiers []*domain.Tier
	for rows.Next() {
		tier, err := scanTier(rows)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to scan tier")
		}
		tiers = append(tiers, tier)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to iterate tiers")
	}
	return tiers, nil
}

const subscriptionQuery = `
	SELECT s.id, s.tenant_id, s.tier_id, s.status, s.started_at, s.expires_at,
	       s.notes, s.created_at, s.updated_at,
	       t.id, t.key, t.name, t.description, t.max_services, t.max_products,
	       t.max_gallery_images, t.max_themes, t.features, t.display_order,
	       t.active, t.created_at, t.updated_at
	FROM subscriptions s
	JOIN tiers t ON t.id = s.tier_id`

// GetSubscriptionByTenant returns the tenant's single subscription row with
// its tier embedded. Returns a domain.ENOTFOUND error if none exists.
func (s *Store) GetSubscriptionByTenant(ctx context.Context, tenantID uuid.UUID) (*domain.Subscription, error) {
	const op = "repository.get_subscription_by_tenant"

	row := s.db.QueryRowContext(ctx, subscriptionQuery+` WHERE s.tenant_id = $1`, tenantID)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFound(op, "subscription", tenantID.String())
		}
		return nil, domain.Internal(err, op, "failed to fetch subscription")
	}
	return sub, nil
}

// CreateSubscription inserts a new subscription row.
// Returns a domain.ECONFLICT error if the tenant already has one.
func (s *Store) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	const op = "repository.create_subscription"

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscriptions (id, tenant_id, tier_id, status, started_at, expires_at, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`,
		sub.ID, sub.TenantID, sub.TierID, sub.Status, sub.StartedAt, nullTime(sub.ExpiresAt), sub.Notes)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.Conflict(op, "tenant already has a subscription")
		}
		return domain.Internal(err, op, "failed to insert subscription")
	}
	return nil
}

// UpdateSubscription overwrites the mutable fields of a subscription row.
// Last write wins; there is no optimistic-concurrency check.
func (s *Store) UpdateSubscription(ctx context.Context, sub *domain.Subscription) error {
	const op = "repository.update_subscription"

	res, err := s.db.ExecContext(ctx, `
		UPDATE subscriptions
		SET tier_id = $2, status = $3, started_at = $4, expires_at = $5, notes = $6, updated_at = NOW()
		WHERE id = $1`,
		sub.ID, sub.TierID, sub.Status, sub.StartedAt, nullTime(sub.ExpiresAt), sub.Notes)
	if err != nil {
		return domain.Internal(err, op, "failed to update subscription")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Internal(err, op, "failed to read update result")
	}
	if affected == 0 {
		return domain.NotFound(op, "subscription", sub.ID.String())
	}
	return nil
}

// ListExpiredActiveSubscriptions returns subscriptions with status active and
// a non-null expiration in the past, oldest expiration first.
func (s *Store) ListExpiredActiveSubscriptions(ctx context.Context, now time.Time) ([]*domain.Subscription, error) {
	const op = "repository.list_expired_active_subscriptions"

	rows, err := s.db.QueryContext(ctx, subscriptionQuery+`
		WHERE s.status = $1 AND s.expires_at IS NOT NULL AND s.expires_at < $2
		ORDER BY s.expires_at ASC`,
		domain.SubscriptionStatusActive, now)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list expired subscriptions")
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to scan subscription")
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to iterate subscriptions")
	}
	return subs, nil
}

// CountResources returns the live count of the tenant's rows in the owning
// table for a resource kind. Counts are always computed fresh at decision
// time; there is no cached counter that could drift from reality.
func (s *Store) CountResources(ctx context.Context, tenantID uuid.UUID, kind domain.ResourceKind) (int64, error) {
	const op = "repository.count_resources"

	table, ok := resourceTables[kind]
	if !ok {
		return 0, domain.Errorf(domain.EINVALID, op, "unknown resource kind %q", kind)
	}

	var count int64
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE tenant_id = $1`, table), tenantID).Scan(&count)
	if err != nil {
		return 0, domain.Internal(err, op, "failed to count "+table)
	}
	return count, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTier(row scanner) (*domain.Tier, error) {
	var t domain.Tier
	var features []byte
	err := row.Scan(&t.ID, &t.Key, &t.Name, &t.Description,
		&t.MaxServices, &t.MaxProducts, &t.MaxGalleryImages, &t.MaxThemes,
		&features, &t.DisplayOrder, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &t.Features); err != nil {
			// Malformed feature data grants no features rather than failing
			// the whole lookup.
			t.Features = nil
		}
	}
	return &t, nil
}

func scanSubscription(row scanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	var tier domain.Tier
	var expiresAt sql.NullTime
	var features []byte

	err := row.Scan(&sub.ID, &sub.TenantID, &sub.TierID, &sub.Status,
		&sub.StartedAt, &expiresAt, &sub.Notes, &sub.CreatedAt, &sub.UpdatedAt,
		&tier.ID, &tier.Key, &tier.Name, &tier.Description,
		&tier.MaxServices, &tier.MaxProducts, &tier.MaxGalleryImages, &tier.MaxThemes,
		&features, &tier.DisplayOrder, &tier.Active, &tier.CreatedAt, &tier.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		sub.ExpiresAt = &expiresAt.Time
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &tier.Features); err != nil {
			tier.Features = nil
		}
	}
	sub.Tier = &tier
	return &sub, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
