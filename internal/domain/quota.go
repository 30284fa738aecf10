// Package domain contains core business types and interfaces.
//
// This file defines quota types for enforcing per-tenant resource limits
// based on subscription tier.
package domain

// ResourceKind identifies a metered resource owned by a tenant.
type ResourceKind string

const (
	ResourceServices      ResourceKind = "services"
	ResourceProducts      ResourceKind = "products"
	ResourceGalleryImages ResourceKind = "gallery_images"
)

// MeteredResources lists every resource kind subject to quota enforcement.
// Order matters for display; quota reports follow this order.
func MeteredResources() []ResourceKind {
	return []ResourceKind{ResourceServices, ResourceProducts, ResourceGalleryImages}
}

// ParseResourceKind validates a resource kind string from an API request.
func ParseResourceKind(s string) (ResourceKind, error) {
	switch ResourceKind(s) {
	case ResourceServices:
		return ResourceServices, nil
	case ResourceProducts:
		return ResourceProducts, nil
	case ResourceGalleryImages:
		return ResourceGalleryImages, nil
	default:
		return "", Errorf(EINVALID, "quota.parse_kind", "unknown resource kind %q", s)
	}
}

// ResourceQuota reports usage against the tier limit for one resource kind.
//
// Percentage is computed from pre-creation usage, so it can read exactly 100
// when the tenant is already at the cap. Callers must use CanCreate, not
// Percentage < 100, to decide whether there is room.
type ResourceQuota struct {
	Used       int64   `json:"used"`
	Limit      int32   `json:"limit"`
	Unlimited  bool    `json:"unlimited"`
	CanCreate  bool    `json:"can_create"`
	Percentage float64 `json:"percentage"`
}

// NewResourceQuota builds a ResourceQuota from a live usage count and a tier
// limit. The unlimited sentinel short-circuits all arithmetic.
func NewResourceQuota(used int64, limit int32) ResourceQuota {
	if IsUnlimited(limit) {
		return ResourceQuota{
			Used:      used,
			Limit:     limit,
			Unlimited: true,
			CanCreate: true,
		}
	}
	q := ResourceQuota{
		Used:      used,
		Limit:     limit,
		CanCreate: used < int64(limit),
	}
	if limit > 0 {
		q.Percentage = float64(used) / float64(limit) * 100
	}
	return q
}

// QuotaReport aggregates quota for all metered resource kinds of one tenant.
type QuotaReport struct {
	Services      ResourceQuota `json:"services"`
	Products      ResourceQuota `json:"products"`
	GalleryImages ResourceQuota `json:"gallery_images"`
}

// Set assigns the quota entry for the given resource kind.
func (r *QuotaReport) Set(kind ResourceKind, q ResourceQuota) {
	switch kind {
	case ResourceServices:
		r.Services = q
	case ResourceProducts:
		r.Products = q
	case ResourceGalleryImages:
		r.GalleryImages = q
	}
}

// For returns the quota entry for the given resource kind.
func (r *QuotaReport) For(kind ResourceKind) ResourceQuota {
	switch kind {
	case ResourceServices:
		return r.Services
	case ResourceProducts:
		return r.Products
	case ResourceGalleryImages:
		return r.GalleryImages
	default:
		return ResourceQuota{}
	}
}
