// Package handler contains HTTP handlers for the Velura entitlement API.
//
// This file implements the public tier catalog endpoint used by the pricing
// page and the dashboard plan picker.
//
// Route handled:
//   - GET /api/tiers -> ListTiers
package handler

import (
	"log/slog"
	"net/http"

	"github.com/velurapp/velura/internal/domain"
	"github.com/velurapp/velura/internal/service"
)

// TierHandler serves the tier catalog.
type TierHandler struct {
	catalog service.CatalogService
	logger  *slog.Logger
}

// NewTierHandler creates a new TierHandler.
func NewTierHandler(catalog service.CatalogService, logger *slog.Logger) *TierHandler {
	return &TierHandler{
		catalog: catalog,
		logger:  logger,
	}
}

// RegisterRoutes registers tier routes on the provided mux. The catalog is
// public reference data; no tenant identity is required.
func (h *TierHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tiers", h.ListTiers)
}

type tierResponse struct {
	Key          string            `json:"key"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	Limits       domain.TierLimits `json:"limits"`
	Features     []string          `json:"features"`
	DisplayOrder int32             `json:"display_order"`
}

// ListTiers returns all active tiers in display order.
func (h *TierHandler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.catalog.ListTiers(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := make([]tierResponse, 0, len(tiers))
	for _, tier := range tiers {
		features := tier.Features
		if features == nil {
			features = []string{}
		}
		resp = append(resp, tierResponse{
			Key:          tier.Key,
			Name:         tier.Name,
			Description:  tier.Description,
			Limits:       tier.Limits(),
			Features:     features,
			DisplayOrder: tier.DisplayOrder,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"tiers": resp})
}
