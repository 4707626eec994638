// Package rule defines the domain vocabulary of the filtering service:
// rule-list classification enums, scope tiers, risk codes, and the message
// record that every moderation check is evaluated against.
package rule

import "fmt"

// ListType classifies what a hit on the list means for the verdict.
type ListType int

const (
	ListTypeWhitelist ListType = 0 // a hit forces PASS
	ListTypeBlacklist ListType = 1 // a hit forces REJECT
	ListTypeIgnore    ListType = 2 // a hit strips the matched text before blacklist scanning
)

// Field returns the hash field under which a scope-tier record stores the
// id set for this list type.
func (t ListType) Field() string {
	switch t {
	case ListTypeWhitelist:
		return "whitelist"
	case ListTypeBlacklist:
		return "blacklist"
	case ListTypeIgnore:
		return "ignore"
	}
	return fmt.Sprintf("type_%d", int(t))
}

// Valid reports whether t is a known list type.
func (t ListType) Valid() bool {
	return t == ListTypeWhitelist || t == ListTypeBlacklist || t == ListTypeIgnore
}

// MatchMode selects how list patterns are compared against message fields.
type MatchMode int

const (
	// MatchModeLiteral scans the raw field text; the entry text is the pattern.
	MatchModeLiteral MatchMode = 1
	// MatchModeSemantic tokenizes both the entry text and the field before
	// scanning, so spelling variants with the same token stream still match.
	MatchModeSemantic MatchMode = 2
)

// Valid reports whether m is a known match mode.
func (m MatchMode) Valid() bool {
	return m == MatchModeLiteral || m == MatchModeSemantic
}

// Status is the on/off state of a rule list.
type Status int

const (
	StatusOff Status = 0
	StatusOn  Status = 1
)

// Suggestion is the operator-facing handling hint attached to a list.
type Suggestion int

const (
	SuggestReject Suggestion = 0
	SuggestPass   Suggestion = 1
	SuggestReview Suggestion = 2
)

// Scope is the (app, channel) breadth at which a list applies.
type Scope string

const (
	ScopeGlobal     Scope = "GLOBAL"
	ScopeApp        Scope = "APP"
	ScopeAppChannel Scope = "APP_CHANNEL"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeGlobal || s == ScopeApp || s == ScopeAppChannel
}

// LanguageScope controls whether a list applies to every predicted language
// or only to an explicit set of language codes.
type LanguageScope string

const (
	LanguageScopeAll      LanguageScope = "ALL"
	LanguageScopeSpecific LanguageScope = "SPECIFIC"
)

// Valid reports whether s is a known language scope.
func (s LanguageScope) Valid() bool {
	return s == LanguageScopeAll || s == LanguageScopeSpecific
}

// RiskType is the risk classification code surfaced in verdict details.
// The numeric values are part of the persisted cache contract.
type RiskType int

const (
	RiskNormal          RiskType = 0
	RiskPolitics        RiskType = 100
	RiskPorn            RiskType = 200
	RiskAbuse           RiskType = 210
	RiskAd              RiskType = 300
	RiskAdLuring        RiskType = 310
	RiskFlood           RiskType = 400
	RiskMeaningless     RiskType = 500
	RiskProhibited      RiskType = 600
	RiskOther           RiskType = 700
	RiskBlackAccount    RiskType = 720
	RiskBlackIP         RiskType = 730
	RiskHighRiskAccount RiskType = 800
	RiskCustom          RiskType = 900
	RiskNickname        RiskType = 910
)

// riskDescriptions maps risk codes to their operator-facing labels.
var riskDescriptions = map[RiskType]string{
	RiskNormal:          "normal",
	RiskPolitics:        "politics",
	RiskPorn:            "porn",
	RiskAbuse:           "abuse",
	RiskAd:              "ad",
	RiskAdLuring:        "ad-luring",
	RiskFlood:           "flood",
	RiskMeaningless:     "meaningless",
	RiskProhibited:      "prohibited",
	RiskOther:           "other",
	RiskBlackAccount:    "black-account",
	RiskBlackIP:         "black-ip",
	RiskHighRiskAccount: "high-risk-account",
	RiskCustom:          "custom",
	RiskNickname:        "nickname-risk",
}

// Description returns the operator-facing label for a risk code.
func (r RiskType) Description() string {
	if d, ok := riskDescriptions[r]; ok {
		return d
	}
	return fmt.Sprintf("risk_%d", int(r))
}
