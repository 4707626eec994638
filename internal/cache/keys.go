// Package cache implements the serving side of the two-tier persistence
// model: the Redis projection of rule lists and scope tiers, the two
// time-ordered pending-update queues, the process-local snapshot the
// filter pipeline reads, the windowed reconciler that keeps the snapshot
// fresh, and the full rebuild from the relational system-of-record.
package cache

import "github.com/riskguard/filter-app/internal/rule"

// Redis key layout. List records are hashes keyed by the list's stable
// external no; scope tiers are hashes keyed by the (app, channel) pair
// with "all" as the wildcard at either position.
const (
	listKeyPrefix  = "list:"
	scopeKeyPrefix = "scope:"

	// TierGlobal is the scope-tier key applying to every app and channel.
	TierGlobal = scopeKeyPrefix + "all:all"

	// appsKey is the set of registered app ids.
	appsKey = "apps:all"

	// Pending-update queues: sorted sets scored by unix seconds. Members
	// are a list no (pendingListsKey) or "<tier>|<field>" (pendingScopesKey).
	pendingListsKey  = "pending:lists"
	pendingScopesKey = "pending:scopes"
)

// List hash fields.
const (
	fieldName          = "name"
	fieldType          = "type"
	fieldMatchRule     = "match_rule"
	fieldMatchMode     = "match_mode"
	fieldSuggestion    = "suggestion"
	fieldRiskType      = "risk_type"
	fieldStatus        = "status"
	fieldLanguageScope = "language_scope"
	fieldLanguageCodes = "language_codes"
	fieldData          = "data"
)

// Scope hash flag fields. The per-list-type id set fields come from
// rule.ListType.Field().
const (
	FlagModeration = "ac_switch"
	FlagAI         = "ai_switch"
	FlagThreshold  = "model_threshold"
	FlagVendor     = "vendor_switch"
)

// ListKey returns the Redis key of a list record.
func ListKey(no string) string { return listKeyPrefix + no }

// TierAppChannel returns the scope-tier key for a specific app+channel.
func TierAppChannel(appID, channelID string) string {
	return scopeKeyPrefix + appID + ":" + channelID
}

// TierApp returns the scope-tier key applying app-wide.
func TierApp(appID string) string {
	return scopeKeyPrefix + appID + ":all"
}

// TierFor maps a binding's scope to its tier key.
func TierFor(scope rule.Scope, appID, channelID string) string {
	switch scope {
	case rule.ScopeGlobal:
		return TierGlobal
	case rule.ScopeApp:
		return TierApp(appID)
	default:
		return TierAppChannel(appID, channelID)
	}
}
