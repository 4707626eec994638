package catalog

import (
	"errors"
	"fmt"
	"testing"

	"github.com/riskguard/filter-app/internal/rule"
)

func validSpec() ListSpec {
	return ListSpec{
		Name:          "global abuse",
		Type:          rule.ListTypeBlacklist,
		MatchRule:     rule.MatchText,
		MatchMode:     rule.MatchModeLiteral,
		Suggestion:    rule.SuggestReject,
		RiskType:      rule.RiskAbuse,
		Status:        rule.StatusOn,
		Scope:         rule.ScopeGlobal,
		LanguageScope: rule.LanguageScopeAll,
	}
}

func TestListSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ListSpec)
		wantErr bool
	}{
		{"valid global", func(s *ListSpec) {}, false},
		{"empty name", func(s *ListSpec) { s.Name = "  " }, true},
		{"bad list type", func(s *ListSpec) { s.Type = rule.ListType(99) }, true},
		{"bad match rule", func(s *ListSpec) { s.MatchRule = rule.MatchRule(42) }, true},
		{"bad match mode", func(s *ListSpec) { s.MatchMode = rule.MatchMode(9) }, true},
		{"bad scope", func(s *ListSpec) { s.Scope = rule.Scope("PLANET") }, true},
		{"bad language scope", func(s *ListSpec) { s.LanguageScope = rule.LanguageScope("SOME") }, true},
		{"specific without codes", func(s *ListSpec) {
			s.LanguageScope = rule.LanguageScopeSpecific
		}, true},
		{"specific with codes", func(s *ListSpec) {
			s.LanguageScope = rule.LanguageScopeSpecific
			s.LanguageCodes = []string{"ja", "ko"}
		}, false},
		{"all with codes", func(s *ListSpec) {
			s.LanguageCodes = []string{"ja"}
		}, true},
		{"uppercase code", func(s *ListSpec) {
			s.LanguageScope = rule.LanguageScopeSpecific
			s.LanguageCodes = []string{"JA"}
		}, true},
		{"global with apps", func(s *ListSpec) {
			s.AppIDs = []string{"game1"}
		}, true},
		{"app scope valid", func(s *ListSpec) {
			s.Scope = rule.ScopeApp
			s.AppIDs = []string{"game1", "game2"}
		}, false},
		{"app scope without apps", func(s *ListSpec) {
			s.Scope = rule.ScopeApp
		}, true},
		{"app scope with channels", func(s *ListSpec) {
			s.Scope = rule.ScopeApp
			s.AppIDs = []string{"game1"}
			s.ChannelIDs = []string{"lobby"}
		}, true},
		{"app channel valid", func(s *ListSpec) {
			s.Scope = rule.ScopeAppChannel
			s.AppIDs = []string{"game1"}
			s.ChannelIDs = []string{"lobby", "trade"}
		}, false},
		{"app channel missing channels", func(s *ListSpec) {
			s.Scope = rule.ScopeAppChannel
			s.AppIDs = []string{"game1"}
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(&spec)
			err := spec.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v must wrap ErrInvalid", err)
			}
		})
	}
}

func TestListSpecValidate_BindingCap(t *testing.T) {
	spec := validSpec()
	spec.Scope = rule.ScopeApp
	for i := 0; i < maxBindings+1; i++ {
		spec.AppIDs = append(spec.AppIDs, fmt.Sprintf("game%d", i))
	}
	if err := spec.Validate(); !errors.Is(err, ErrInvalid) {
		t.Fatalf("Validate() = %v, want bindings cap rejection", err)
	}

	// Duplicates collapse before the cap is checked.
	spec.AppIDs = []string{"game1", "game1", "game1", "game2", "game3", "game4", "game5"}
	if err := spec.Validate(); err != nil {
		t.Errorf("Validate() = %v, deduped apps fit the cap", err)
	}
}

func TestListSpecBindings(t *testing.T) {
	spec := validSpec()
	if got := spec.bindings(); len(got) != 0 {
		t.Errorf("GLOBAL bindings = %v, want none", got)
	}

	spec.Scope = rule.ScopeApp
	spec.AppIDs = []string{"game2", "game1", "game1"}
	got := spec.bindings()
	if len(got) != 2 || got[0].AppID != "game1" || got[1].AppID != "game2" {
		t.Errorf("APP bindings = %v, want sorted deduped apps", got)
	}

	spec.Scope = rule.ScopeAppChannel
	spec.AppIDs = []string{"game1", "game2"}
	spec.ChannelIDs = []string{"trade", "lobby"}
	got = spec.bindings()
	if len(got) != 4 {
		t.Fatalf("APP_CHANNEL bindings = %v, want full cross product", got)
	}
	want := []binding{
		{AppID: "game1", ChannelID: "lobby"},
		{AppID: "game1", ChannelID: "trade"},
		{AppID: "game2", ChannelID: "lobby"},
		{AppID: "game2", ChannelID: "trade"},
	}
	for i, b := range want {
		if got[i] != b {
			t.Errorf("binding %d = %v, want %v", i, got[i], b)
		}
	}
}

func TestDedup(t *testing.T) {
	got := dedup([]string{" b ", "a", "b", "", "a"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("dedup = %v", got)
	}
}
