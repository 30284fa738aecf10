// Package domain contains core business types and interfaces.
//
// This file defines the Tier domain type: a named entitlement bundle of
// numeric resource limits and feature flags that subscriptions reference.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Unlimited is the sentinel limit value meaning "no cap".
//
// All quota comparisons must check IsUnlimited before doing arithmetic
// against a limit; the sentinel is never a valid operand.
const Unlimited int32 = -1

// TierKeyFree is the key of the tier every tenant starts on and the tier
// expired paid subscriptions are swept back to. It must exist and be active.
const TierKeyFree = "free"

// Tier is immutable reference data managed by an administrator out of band.
type Tier struct {
	ID          uuid.UUID
	Key         string // e.g. "free", "pro", "premium"
	Name        string
	Description string

	// Resource limits. Unlimited (-1) means no cap.
	MaxServices      int32
	MaxProducts      int32
	MaxGalleryImages int32
	MaxThemes        int32

	// Features is the set of feature-name strings granted by this tier,
	// e.g. "custom_domain" or "remove_branding".
	Features []string

	DisplayOrder int32
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TierLimits projects the numeric limit fields into a uniform shape.
type TierLimits struct {
	Services      int32 `json:"services"`
	Products      int32 `json:"products"`
	GalleryImages int32 `json:"gallery_images"`
	Themes        int32 `json:"themes"`
}

// IsUnlimited reports whether a limit value is the unlimited sentinel.
func IsUnlimited(limit int32) bool {
	return limit == Unlimited
}

// HasFeature reports whether the tier grants the named feature.
// A nil tier or absent feature set grants nothing.
func (t *Tier) HasFeature(name string) bool {
	if t == nil || name == "" {
		return false
	}
	for _, f := range t.Features {
		if f == name {
			return true
		}
	}
	return false
}

// Limits returns the tier's limit fields as a TierLimits projection.
func (t *Tier) Limits() TierLimits {
	if t == nil {
		return TierLimits{}
	}
	return TierLimits{
		Services:      t.MaxServices,
		Products:      t.MaxProducts,
		GalleryImages: t.MaxGalleryImages,
		Themes:        t.MaxThemes,
	}
}

// LimitFor returns the tier's limit for a metered resource kind.
// Unknown kinds and nil tiers get a zero limit, which denies creation.
func (t *Tier) LimitFor(kind ResourceKind) int32 {
	if t == nil {
		return 0
	}
	switch kind {
	case ResourceServices:
		return t.MaxServices
	case ResourceProducts:
		return t.MaxProducts
	case ResourceGalleryImages:
		return t.MaxGalleryImages
	default:
		return 0
	}
}

// IsFree reports whether this is the free tier.
func (t *Tier) IsFree() bool {
	return t != nil && t.Key == TierKeyFree
}
