package cache

import (
	"time"

	"github.com/riskguard/filter-app/internal/rule"
	"github.com/riskguard/filter-app/internal/sentinel"
)

// Snapshot is an immutable view of the serving cache. The filter pipeline
// reads one snapshot per request; the reconciler builds a new one and
// swaps it in, so readers never see a partially-applied update and the
// hot path takes no locks.
type Snapshot struct {
	Lists    map[string]*ListRecord
	Scopes   map[string]*ScopeRecord
	Apps     map[string]struct{}
	Sentinel sentinel.Table
	LoadedAt time.Time
}

// NewSnapshot returns an empty snapshot. Mainly for tests and for seeding
// before the first load completes.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Lists:  make(map[string]*ListRecord),
		Scopes: make(map[string]*ScopeRecord),
		Apps:   make(map[string]struct{}),
	}
}

// clone copies the top-level maps. Records themselves are immutable and
// shared; the reconciler replaces entries rather than mutating them.
func (s *Snapshot) clone() *Snapshot {
	c := &Snapshot{
		Lists:    make(map[string]*ListRecord, len(s.Lists)),
		Scopes:   make(map[string]*ScopeRecord, len(s.Scopes)),
		Apps:     s.Apps,
		Sentinel: s.Sentinel,
		LoadedAt: s.LoadedAt,
	}
	for k, v := range s.Lists {
		c.Lists[k] = v
	}
	for k, v := range s.Scopes {
		c.Scopes[k] = v
	}
	return c
}

// HasApp reports whether the app id is registered.
func (s *Snapshot) HasApp(appID string) bool {
	_, ok := s.Apps[appID]
	return ok
}

// Lookup returns the cached list record for a list no, or nil.
func (s *Snapshot) Lookup(no string) *ListRecord {
	return s.Lists[no]
}

// tiers returns the scope-tier keys for an (app, channel) pair ordered
// most specific first.
func tiers(appID, channelID string) [3]string {
	return [3]string{TierAppChannel(appID, channelID), TierApp(appID), TierGlobal}
}

// Resolve returns the union of list ids active for the (app, channel)
// pair, split by list type. Tiers are additive: a GLOBAL binding always
// applies even when more specific tiers exist. Each set is deduplicated;
// order is not significant to consumers.
func (s *Snapshot) Resolve(appID, channelID string) (whitelist, ignore, blacklist []string) {
	seen := make(map[string]struct{})
	appendIDs := func(dst []string, ids []string) []string {
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			dst = append(dst, id)
		}
		return dst
	}

	for _, tier := range tiers(appID, channelID) {
		rec, ok := s.Scopes[tier]
		if !ok {
			continue
		}
		whitelist = appendIDs(whitelist, rec.Lists[rule.ListTypeWhitelist])
		ignore = appendIDs(ignore, rec.Lists[rule.ListTypeIgnore])
		blacklist = appendIDs(blacklist, rec.Lists[rule.ListTypeBlacklist])
	}
	return whitelist, ignore, blacklist
}

// Flags is the hierarchically-resolved feature configuration for an
// (app, channel) pair.
type Flags struct {
	Moderation bool    // blacklist verdict reporting enabled
	AI         bool    // AI escalation enabled
	Vendor     bool    // vendor moderation forwarding enabled
	Threshold  float64 // ad-classifier score threshold
}

// DefaultFlags is the configuration when no tier sets anything:
// moderation on, AI off, vendor on, threshold 0.8.
func DefaultFlags() Flags {
	return Flags{Moderation: true, AI: false, Vendor: true, Threshold: 0.8}
}

// ResolveFlags resolves the feature flags for an (app, channel) pair.
// For every flag the most specific tier that configures it wins, checked
// APP_CHANNEL, then APP, then GLOBAL; unset falls through to the default.
func (s *Snapshot) ResolveFlags(appID, channelID string) Flags {
	flags := DefaultFlags()
	moderationSet, aiSet, vendorSet, thresholdSet := false, false, false, false

	for _, tier := range tiers(appID, channelID) {
		rec, ok := s.Scopes[tier]
		if !ok {
			continue
		}
		if !moderationSet && rec.Moderation != nil {
			flags.Moderation = *rec.Moderation
			moderationSet = true
		}
		if !aiSet && rec.AI != nil {
			flags.AI = *rec.AI
			aiSet = true
		}
		if !vendorSet && rec.Vendor != nil {
			flags.Vendor = *rec.Vendor
			vendorSet = true
		}
		if !thresholdSet && rec.ModelThreshold != nil {
			flags.Threshold = *rec.ModelThreshold
			thresholdSet = true
		}
	}
	return flags
}
