package entitlement

import (
	"strings"

	"github.com/gridironhq/gridiron/internal/domain/user"
)

// Feature is a single gateable capability. Features are granted by tier
// tables or by one-time add-on purchases, never inferred from tier ordering.
type Feature string

const (
	FeatureUnlimitedQuizzes Feature = "unlimitedQuizzes"
	FeatureAIAnalysis       Feature = "aiAnalysis"
	FeatureMultiTeamSupport Feature = "multiTeamSupport"
	FeatureARPlaybookViewer Feature = "arPlaybookViewer"
	FeatureExtraPositionDB  Feature = "extraPositionDB"
)

// Catalog maps store product identifiers to tiers and add-on features. The
// tier tables are explicit per tier: a coach tier does not inherit
// player-oriented features and vice versa, so lookups never assume the
// tiers form a superset chain.
type Catalog struct {
	TierByProduct  map[string]user.SubscriptionTier
	AddOnByProduct map[string]Feature
	FeaturesByTier map[user.SubscriptionTier][]Feature
	TierPrecedence []user.SubscriptionTier
}

// DefaultCatalog returns the production feature table.
//
// Precedence resolves overlapping subscriptions: family/team-unlimited wins
// over coach-pro, which wins over player-premium.
func DefaultCatalog() Catalog {
	return Catalog{
		TierByProduct: map[string]user.SubscriptionTier{
			"player_premium_monthly":   user.TierPlayerPremium,
			"player_premium_yearly":    user.TierPlayerPremium,
			"coach_pro_monthly":        user.TierCoachPro,
			"coach_pro_yearly":         user.TierCoachPro,
			"family_unlimited_monthly": user.TierFamilyUnlimited,
			"family_unlimited_yearly":  user.TierFamilyUnlimited,
		},
		AddOnByProduct: map[string]Feature{
			"addon_extra_position_db": FeatureExtraPositionDB,
		},
		FeaturesByTier: map[user.SubscriptionTier][]Feature{
			user.TierFree: {},
			user.TierPlayerPremium: {
				FeatureUnlimitedQuizzes,
				FeatureARPlaybookViewer,
			},
			user.TierCoachPro: {
				FeatureUnlimitedQuizzes,
				FeatureAIAnalysis,
				FeatureMultiTeamSupport,
			},
			user.TierFamilyUnlimited: {
				FeatureUnlimitedQuizzes,
				FeatureAIAnalysis,
				FeatureMultiTeamSupport,
				FeatureARPlaybookViewer,
			},
		},
		TierPrecedence: []user.SubscriptionTier{
			user.TierFamilyUnlimited,
			user.TierCoachPro,
			user.TierPlayerPremium,
			user.TierFree,
		},
	}
}

// TierGrants reports whether the catalog grants feature at tier.
func (c Catalog) TierGrants(tier user.SubscriptionTier, feature Feature) bool {
	for _, granted := range c.FeaturesByTier[tier] {
		if granted == feature {
			return true
		}
	}
	return false
}

// AddOnGrants reports whether any purchased product unlocks feature as a
// one-time add-on.
func (c Catalog) AddOnGrants(productIDs []string, feature Feature) bool {
	for _, id := range productIDs {
		if c.AddOnByProduct[strings.TrimSpace(id)] == feature {
			return true
		}
	}
	return false
}
