package usecase

import (
	"github.com/gridironhq/gridiron/internal/domain/entitlement"
	"github.com/gridironhq/gridiron/internal/domain/user"
)

// EntitlementService answers feature-gate questions from the explicit
// per-tier tables. It holds no mutable state; the catalog is fixed at
// construction.
type EntitlementService struct {
	catalog entitlement.Catalog
}

func NewEntitlementService(catalog entitlement.Catalog) *EntitlementService {
	if len(catalog.FeaturesByTier) == 0 {
		catalog = entitlement.DefaultCatalog()
	}
	return &EntitlementService{catalog: catalog}
}

// HasAccess reports whether a user on tier, holding the given purchased
// product IDs, may use feature. Tier grants and add-on grants are
// independent paths; either suffices.
func (s *EntitlementService) HasAccess(tier user.SubscriptionTier, productIDs []string, feature entitlement.Feature) bool {
	if !tier.Valid() {
		tier = user.TierFree
	}
	if s.catalog.TierGrants(tier, feature) {
		return true
	}
	return s.catalog.AddOnGrants(productIDs, feature)
}

// FeaturesFor returns every feature available to the tier plus add-on
// purchases, deduplicated, in catalog order.
func (s *EntitlementService) FeaturesFor(tier user.SubscriptionTier, productIDs []string) []entitlement.Feature {
	if !tier.Valid() {
		tier = user.TierFree
	}

	seen := make(map[entitlement.Feature]struct{})
	features := make([]entitlement.Feature, 0, len(s.catalog.FeaturesByTier[tier])+len(productIDs))
	for _, feature := range s.catalog.FeaturesByTier[tier] {
		if _, dup := seen[feature]; dup {
			continue
		}
		seen[feature] = struct{}{}
		features = append(features, feature)
	}
	for _, id := range productIDs {
		feature, ok := s.catalog.AddOnByProduct[id]
		if !ok {
			continue
		}
		if _, dup := seen[feature]; dup {
			continue
		}
		seen[feature] = struct{}{}
		features = append(features, feature)
	}
	return features
}

// ResolveTier maps active subscription product IDs to the single effective
// tier. Unknown products are ignored; with no recognized subscription the
// result is the free tier. Overlaps resolve by catalog precedence, not by
// purchase order.
func (s *EntitlementService) ResolveTier(productIDs []string) user.SubscriptionTier {
	held := make(map[user.SubscriptionTier]bool, len(productIDs))
	for _, id := range productIDs {
		if tier, ok := s.catalog.TierByProduct[id]; ok {
			held[tier] = true
		}
	}
	if len(held) == 0 {
		return user.TierFree
	}
	for _, tier := range s.catalog.TierPrecedence {
		if held[tier] {
			return tier
		}
	}
	return user.TierFree
}
