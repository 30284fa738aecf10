package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUnlimited(t *testing.T) {
	assert.True(t, IsUnlimited(Unlimited))
	assert.False(t, IsUnlimited(0))
	assert.False(t, IsUnlimited(3))
	assert.False(t, IsUnlimited(-2))
}

func TestTierHasFeature(t *testing.T) {
	tests := []struct {
		name    string
		tier    *Tier
		feature string
		want    bool
	}{
		{
			name:    "nil tier grants nothing",
			tier:    nil,
			feature: "custom_domain",
			want:    false,
		},
		{
			name:    "empty feature set",
			tier:    &Tier{Key: "free"},
			feature: "custom_domain",
			want:    false,
		},
		{
			name:    "feature present",
			tier:    &Tier{Key: "pro", Features: []string{"custom_domain", "remove_branding"}},
			feature: "custom_domain",
			want:    true,
		},
		{
			name:    "feature absent",
			tier:    &Tier{Key: "pro", Features: []string{"custom_domain"}},
			feature: "remove_branding",
			want:    false,
		},
		{
			name:    "empty feature name never matches",
			tier:    &Tier{Key: "pro", Features: []string{""}},
			feature: "",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.tier.HasFeature(tt.feature))
		})
	}
}

func TestTierLimitFor(t *testing.T) {
	tier := &Tier{
		MaxServices:      3,
		MaxProducts:      5,
		MaxGalleryImages: 10,
		MaxThemes:        1,
	}

	assert.Equal(t, int32(3), tier.LimitFor(ResourceServices))
	assert.Equal(t, int32(5), tier.LimitFor(ResourceProducts))
	assert.Equal(t, int32(10), tier.LimitFor(ResourceGalleryImages))

	// Unknown kinds and nil tiers fall back to a zero limit (deny).
	assert.Equal(t, int32(0), tier.LimitFor(ResourceKind("themes")))
	var nilTier *Tier
	assert.Equal(t, int32(0), nilTier.LimitFor(ResourceServices))
}

func TestTierLimits(t *testing.T) {
	tier := &Tier{
		MaxServices:      Unlimited,
		MaxProducts:      20,
		MaxGalleryImages: 50,
		MaxThemes:        5,
	}

	want := TierLimits{
		Services:      Unlimited,
		Products:      20,
		GalleryImages: 50,
		Themes:        5,
	}
	assert.Equal(t, want, tier.Limits())

	var nilTier *Tier
	assert.Equal(t, TierLimits{}, nilTier.Limits())
}

func TestParseResourceKind(t *testing.T) {
	tests := []struct {
		input   string
		want    ResourceKind
		wantErr bool
	}{
		{"services", ResourceServices, false},
		{"products", ResourceProducts, false},
		{"gallery_images", ResourceGalleryImages, false},
		{"themes", "", true},
		{"", "", true},
		{"Services", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseResourceKind(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, EINVALID, ErrorCode(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewResourceQuota(t *testing.T) {
	tests := []struct {
		name  string
		used  int64
		limit int32
		want  ResourceQuota
	}{
		{
			name:  "unlimited always allows regardless of usage",
			used:  1000,
			limit: Unlimited,
			want:  ResourceQuota{Used: 1000, Limit: Unlimited, Unlimited: true, CanCreate: true},
		},
		{
			name:  "below limit",
			used:  2,
			limit: 3,
			want:  ResourceQuota{Used: 2, Limit: 3, CanCreate: true, Percentage: 200.0 / 3},
		},
		{
			name:  "exactly at limit denies",
			used:  3,
			limit: 3,
			want:  ResourceQuota{Used: 3, Limit: 3, CanCreate: false, Percentage: 100},
		},
		{
			name:  "over limit denies",
			used:  4,
			limit: 3,
			want:  ResourceQuota{Used: 4, Limit: 3, CanCreate: false, Percentage: 400.0 / 3},
		},
		{
			name:  "zero limit always denies",
			used:  0,
			limit: 0,
			want:  ResourceQuota{Used: 0, Limit: 0, CanCreate: false},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewResourceQuota(tt.used, tt.limit)
			assert.Equal(t, tt.want.Used, got.Used)
			assert.Equal(t, tt.want.Limit, got.Limit)
			assert.Equal(t, tt.want.Unlimited, got.Unlimited)
			assert.Equal(t, tt.want.CanCreate, got.CanCreate)
			assert.InDelta(t, tt.want.Percentage, got.Percentage, 0.0001)
		})
	}
}

func TestQuotaReportSetFor(t *testing.T) {
	var report QuotaReport
	q := ResourceQuota{Used: 1, Limit: 3, CanCreate: true}

	for _, kind := range MeteredResources() {
		report.Set(kind, q)
		assert.Equal(t, q, report.For(kind))
	}

	assert.Equal(t, ResourceQuota{}, report.For(ResourceKind("bogus")))
}
