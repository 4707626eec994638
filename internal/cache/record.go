package cache

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/riskguard/filter-app/internal/patternset"
	"github.com/riskguard/filter-app/internal/rule"
)

// ListRecord is the cached projection of one rule list: its matching
// metadata plus the deserialized PatternSet. Records are immutable once
// parsed; the reconciler replaces them wholesale.
type ListRecord struct {
	No            string
	Name          string
	Type          rule.ListType
	MatchRule     rule.MatchRule
	MatchMode     rule.MatchMode
	Suggestion    rule.Suggestion
	RiskType      rule.RiskType
	Status        rule.Status
	LanguageScope rule.LanguageScope
	LanguageCodes []string
	Patterns      *patternset.PatternSet // nil when the list has no entries
}

// Active reports whether the list participates in matching: switched on
// and holding at least one pattern.
func (r *ListRecord) Active() bool {
	return r != nil && r.Status == rule.StatusOn && r.Patterns != nil && !r.Patterns.Empty()
}

// LanguageAllowed reports whether a field with the given predicted
// language may be scanned against this list. Lists scoped to ALL accept
// any language; SPECIFIC lists require the prediction to be one of their
// codes, and reject fields with no prediction at all.
func (r *ListRecord) LanguageAllowed(language string) bool {
	if r.LanguageScope != rule.LanguageScopeSpecific {
		return true
	}
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return false
	}
	for _, code := range r.LanguageCodes {
		if code == language {
			return true
		}
	}
	return false
}

// MetaFields returns the hash fields of the record without the pattern
// blob, for metadata-only projection writes.
func (r *ListRecord) MetaFields() map[string]any {
	codes := append([]string(nil), r.LanguageCodes...)
	sort.Strings(codes)
	codesJSON, _ := json.Marshal(codes)
	return map[string]any{
		fieldName:          r.Name,
		fieldType:          int(r.Type),
		fieldMatchRule:     int(r.MatchRule),
		fieldMatchMode:     int(r.MatchMode),
		fieldSuggestion:    int(r.Suggestion),
		fieldRiskType:      int(r.RiskType),
		fieldStatus:        int(r.Status),
		fieldLanguageScope: string(r.LanguageScope),
		fieldLanguageCodes: string(codesJSON),
	}
}

// Fields returns every hash field of the record, including the serialized
// PatternSet when present.
func (r *ListRecord) Fields() (map[string]any, error) {
	fields := r.MetaFields()
	if r.Patterns != nil && !r.Patterns.Empty() {
		blob, err := r.Patterns.Marshal()
		if err != nil {
			return nil, err
		}
		fields[fieldData] = string(blob)
	}
	return fields, nil
}

// parseListRecord builds a ListRecord from a raw Redis hash. A missing or
// empty data field yields a record with nil Patterns; a present blob that
// fails to decode is an error rather than a silently empty list.
func parseListRecord(no string, h map[string]string) (*ListRecord, error) {
	rec := &ListRecord{
		No:            no,
		Name:          h[fieldName],
		Type:          rule.ListType(atoi(h[fieldType])),
		MatchRule:     rule.MatchRule(atoi(h[fieldMatchRule])),
		MatchMode:     rule.MatchMode(atoi(h[fieldMatchMode])),
		Suggestion:    rule.Suggestion(atoi(h[fieldSuggestion])),
		RiskType:      rule.RiskType(atoi(h[fieldRiskType])),
		Status:        rule.Status(atoi(h[fieldStatus])),
		LanguageScope: rule.LanguageScope(h[fieldLanguageScope]),
	}
	if rec.LanguageScope == "" {
		rec.LanguageScope = rule.LanguageScopeAll
	}
	if raw := h[fieldLanguageCodes]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &rec.LanguageCodes); err != nil {
			return nil, fmt.Errorf("cache: list %s: language codes: %w", no, err)
		}
	}
	if blob := h[fieldData]; blob != "" {
		ps, err := patternset.Unmarshal([]byte(blob))
		if err != nil {
			return nil, fmt.Errorf("cache: list %s: pattern data: %w", no, err)
		}
		rec.Patterns = ps
	}
	return rec, nil
}

// ScopeRecord is the cached projection of one scope tier: the per-type
// list id sets plus the hierarchically-resolved feature flags. A nil flag
// pointer means the tier does not configure that flag.
type ScopeRecord struct {
	Lists          map[rule.ListType][]string
	Moderation     *bool
	AI             *bool
	Vendor         *bool
	ModelThreshold *float64
}

func newScopeRecord() *ScopeRecord {
	return &ScopeRecord{Lists: make(map[rule.ListType][]string)}
}

// clone returns a deep copy safe to mutate while readers hold the original.
func (s *ScopeRecord) clone() *ScopeRecord {
	c := newScopeRecord()
	for t, ids := range s.Lists {
		c.Lists[t] = append([]string(nil), ids...)
	}
	c.Moderation = copyBool(s.Moderation)
	c.AI = copyBool(s.AI)
	c.Vendor = copyBool(s.Vendor)
	if s.ModelThreshold != nil {
		v := *s.ModelThreshold
		c.ModelThreshold = &v
	}
	return c
}

// parseScopeRecord builds a ScopeRecord from a raw Redis hash.
func parseScopeRecord(h map[string]string) (*ScopeRecord, error) {
	rec := newScopeRecord()
	for field, raw := range h {
		if err := rec.mergeField(field, raw, true); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// mergeField applies a single hash field into the record. present=false
// clears the field (the admin side deleted it).
func (s *ScopeRecord) mergeField(field, raw string, present bool) error {
	switch field {
	case FlagModeration:
		s.Moderation = parseSwitch(raw, present)
	case FlagAI:
		s.AI = parseSwitch(raw, present)
	case FlagVendor:
		s.Vendor = parseSwitch(raw, present)
	case FlagThreshold:
		if !present || raw == "" {
			s.ModelThreshold = nil
			return nil
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("cache: scope threshold %q: %w", raw, err)
		}
		s.ModelThreshold = &v
	default:
		t, ok := listTypeForField(field)
		if !ok {
			return nil // unknown field, tolerate forward-compat additions
		}
		if !present || raw == "" {
			delete(s.Lists, t)
			return nil
		}
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return fmt.Errorf("cache: scope field %s: %w", field, err)
		}
		s.Lists[t] = ids
	}
	return nil
}

func listTypeForField(field string) (rule.ListType, bool) {
	for _, t := range []rule.ListType{rule.ListTypeWhitelist, rule.ListTypeBlacklist, rule.ListTypeIgnore} {
		if t.Field() == field {
			return t, true
		}
	}
	return 0, false
}

func parseSwitch(raw string, present bool) *bool {
	if !present || raw == "" {
		return nil
	}
	v := atoi(raw) == int(rule.StatusOn)
	return &v
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
