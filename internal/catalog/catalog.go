// Package catalog provides PostgreSQL-backed storage for the rule
// configuration: rule lists with their entries and scope bindings, the
// feature switches, and the app registry. It is the system of record;
// the serving cache is a projection of it.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/riskguard/filter-app/internal/rule"
)

// Sentinel errors for the admin caller to branch on.
var (
	ErrNotFound  = errors.New("catalog: not found")
	ErrDuplicate = errors.New("catalog: duplicate")
	ErrInvalid   = errors.New("catalog: invalid")
)

// maxBindings caps the app x channel cross product of one list.
const maxBindings = 5

// ListSpec carries the admin-supplied attributes of a rule list. AppIDs
// and ChannelIDs describe the scope bindings; on update they fully
// replace the existing binding set.
type ListSpec struct {
	Name          string
	Type          rule.ListType
	MatchRule     rule.MatchRule
	MatchMode     rule.MatchMode
	Suggestion    rule.Suggestion
	RiskType      rule.RiskType
	Status        rule.Status
	Scope         rule.Scope
	LanguageScope rule.LanguageScope
	LanguageCodes []string
	AppIDs        []string
	ChannelIDs    []string
}

// List is a stored rule list row.
type List struct {
	ID   int64
	No   string
	Spec ListSpec
}

// Entry is a stored rule entry row.
type Entry struct {
	ID     int64
	ListNo string
	Text   string
	Memo   string
}

// binding is one concrete (app, channel) pair a list is bound to. Either
// field may be empty depending on the list's scope.
type binding struct {
	AppID     string
	ChannelID string
}

// Validate checks the invariants the schema alone cannot express. It
// runs before any persistence so a rejected write leaves no partial
// state.
func (s *ListSpec) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("%w: list name required", ErrInvalid)
	}
	if !s.Type.Valid() {
		return fmt.Errorf("%w: list type %d", ErrInvalid, int(s.Type))
	}
	if !s.MatchRule.Valid() {
		return fmt.Errorf("%w: match rule %d", ErrInvalid, int(s.MatchRule))
	}
	if !s.MatchMode.Valid() {
		return fmt.Errorf("%w: match mode %d", ErrInvalid, int(s.MatchMode))
	}
	if !s.Scope.Valid() {
		return fmt.Errorf("%w: scope %q", ErrInvalid, string(s.Scope))
	}
	if !s.LanguageScope.Valid() {
		return fmt.Errorf("%w: language scope %q", ErrInvalid, string(s.LanguageScope))
	}

	switch s.LanguageScope {
	case rule.LanguageScopeSpecific:
		if len(s.LanguageCodes) == 0 {
			return fmt.Errorf("%w: SPECIFIC language scope needs language codes", ErrInvalid)
		}
	case rule.LanguageScopeAll:
		if len(s.LanguageCodes) > 0 {
			return fmt.Errorf("%w: ALL language scope must not carry language codes", ErrInvalid)
		}
	}
	for _, code := range s.LanguageCodes {
		if code == "" || code != strings.ToLower(code) {
			return fmt.Errorf("%w: language code %q must be lowercase", ErrInvalid, code)
		}
	}

	apps := dedup(s.AppIDs)
	channels := dedup(s.ChannelIDs)
	switch s.Scope {
	case rule.ScopeGlobal:
		if len(apps) > 0 || len(channels) > 0 {
			return fmt.Errorf("%w: GLOBAL scope must not carry bindings", ErrInvalid)
		}
	case rule.ScopeApp:
		if len(apps) == 0 {
			return fmt.Errorf("%w: APP scope needs at least one app", ErrInvalid)
		}
		if len(channels) > 0 {
			return fmt.Errorf("%w: APP scope must not carry channels", ErrInvalid)
		}
	case rule.ScopeAppChannel:
		if len(apps) == 0 || len(channels) == 0 {
			return fmt.Errorf("%w: APP_CHANNEL scope needs apps and channels", ErrInvalid)
		}
	}
	if len(apps) > maxBindings || len(channels) > maxBindings {
		return fmt.Errorf("%w: at most %d apps and %d channels per list", ErrInvalid, maxBindings, maxBindings)
	}
	return nil
}

// bindings expands the spec's scope into concrete binding rows. GLOBAL
// lists have none; the dump layer synthesizes their tier from the scope
// column instead.
func (s *ListSpec) bindings() []binding {
	apps := dedup(s.AppIDs)
	channels := dedup(s.ChannelIDs)
	var out []binding
	switch s.Scope {
	case rule.ScopeApp:
		for _, app := range apps {
			out = append(out, binding{AppID: app})
		}
	case rule.ScopeAppChannel:
		for _, app := range apps {
			for _, ch := range channels {
				out = append(out, binding{AppID: app, ChannelID: ch})
			}
		}
	}
	return out
}

func dedup(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
