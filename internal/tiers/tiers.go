package tiers

import "strings"

// Tier names the subscription levels in ascending order of capability.
type Tier string

// Subscription tiers.
const (
	// TierFree is the default tier for new users.
	TierFree Tier = "FREE"
	// TierStarter is the entry paid tier.
	TierStarter Tier = "STARTER"
	// TierPro is the professional tier.
	TierPro Tier = "PRO"
	// TierEnterprise removes all ceilings.
	TierEnterprise Tier = "ENTERPRISE"
)

// Unlimited marks a limit with no ceiling.
const Unlimited = -1

// Limits defines the usage ceilings for one subscription tier.
// A value of Unlimited (-1) means no ceiling on that axis.
type Limits struct {
	MaxConversations        int      // Maximum conversations a user may own.
	MaxFilesPerConversation int      // Maximum transcripts per conversation.
	MaxQueriesPerMonth      int      // Maximum queries per billing period.
	MaxFileSizeMB           int      // Maximum single upload size in megabytes.
	AllowedProviders        []string // Provider names usable on this tier.
}

var tierConfigs = map[Tier]Limits{
	TierFree: {
		MaxConversations:        3,
		MaxFilesPerConversation: 5,
		MaxQueriesPerMonth:      200,
		MaxFileSizeMB:           10,
		AllowedProviders:        []string{"openai", "ollama", "lmstudio"},
	},
	TierStarter: {
		MaxConversations:        10,
		MaxFilesPerConversation: 20,
		MaxQueriesPerMonth:      2000,
		MaxFileSizeMB:           25,
		AllowedProviders:        []string{"openai", "ollama", "lmstudio", "gemini"},
	},
	TierPro: {
		MaxConversations:        50,
		MaxFilesPerConversation: 100,
		MaxQueriesPerMonth:      10000,
		MaxFileSizeMB:           50,
		AllowedProviders:        []string{"openai", "ollama", "lmstudio", "gemini", "claude", "copilot"},
	},
	TierEnterprise: {
		MaxConversations:        Unlimited,
		MaxFilesPerConversation: Unlimited,
		MaxQueriesPerMonth:      Unlimited,
		MaxFileSizeMB:           Unlimited,
		AllowedProviders:        []string{"openai", "ollama", "lmstudio", "gemini", "claude", "copilot", "custom"},
	},
}

// Parse normalizes a tier name, falling back to FREE for unknown values.
func Parse(name string) Tier {
	switch Tier(strings.ToUpper(strings.TrimSpace(name))) {
	case TierStarter:
		return TierStarter
	case TierPro:
		return TierPro
	case TierEnterprise:
		return TierEnterprise
	default:
		return TierFree
	}
}

// LimitsFor returns the limits for a tier, defaulting to FREE.
func LimitsFor(tier Tier) Limits {
	if limits, ok := tierConfigs[tier]; ok {
		return limits
	}
	return tierConfigs[TierFree]
}

// Entry pairs a tier with its limits for catalog listings.
type Entry struct {
	Tier   Tier
	Limits Limits
}

// All returns every tier with its limits, in ascending capability order.
func All() []Entry {
	order := []Tier{TierFree, TierStarter, TierPro, TierEnterprise}
	out := make([]Entry, 0, len(order))
	for _, t := range order {
		out = append(out, Entry{Tier: t, Limits: tierConfigs[t]})
	}
	return out
}

// IsProviderAllowed reports whether the tier may use the named provider.
func IsProviderAllowed(tier Tier, provider string) bool {
	provider = strings.ToLower(strings.TrimSpace(provider))
	for _, allowed := range LimitsFor(tier).AllowedProviders {
		if allowed == provider {
			return true
		}
	}
	return false
}

// WithinLimit reports whether current fits under limit, honoring Unlimited.
func WithinLimit(current, limit int) bool {
	return limit == Unlimited || current < limit
}
