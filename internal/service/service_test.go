package service

import (
	"testing"

	"github.com/riskguard/filter-app/internal/cache"
	"github.com/riskguard/filter-app/internal/catalog"
	"github.com/riskguard/filter-app/internal/rule"
)

func TestTiersFor(t *testing.T) {
	tests := []struct {
		name string
		spec catalog.ListSpec
		want []string
	}{
		{
			name: "global",
			spec: catalog.ListSpec{Scope: rule.ScopeGlobal},
			want: []string{cache.TierGlobal},
		},
		{
			name: "app",
			spec: catalog.ListSpec{Scope: rule.ScopeApp, AppIDs: []string{"game1", "game2"}},
			want: []string{cache.TierApp("game1"), cache.TierApp("game2")},
		},
		{
			name: "app channel cross product",
			spec: catalog.ListSpec{
				Scope:      rule.ScopeAppChannel,
				AppIDs:     []string{"game1"},
				ChannelIDs: []string{"lobby", "trade"},
			},
			want: []string{
				cache.TierAppChannel("game1", "lobby"),
				cache.TierAppChannel("game1", "trade"),
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tiersFor(&tt.spec)
			if len(got) != len(tt.want) {
				t.Fatalf("tiersFor = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("tier %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestFormatThreshold(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.8, "0.8"},
		{0.95, "0.95"},
		{1, "1"},
		{0, "0"},
	}
	for _, tt := range tests {
		if got := formatThreshold(tt.in); got != tt.want {
			t.Errorf("formatThreshold(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRecordFor(t *testing.T) {
	spec := &catalog.ListSpec{
		Name:          "trade spam",
		Type:          rule.ListTypeBlacklist,
		MatchRule:     rule.MatchText,
		MatchMode:     rule.MatchModeSemantic,
		Suggestion:    rule.SuggestReject,
		RiskType:      rule.RiskAd,
		Status:        rule.StatusOn,
		LanguageScope: rule.LanguageScopeSpecific,
		LanguageCodes: []string{"en"},
	}
	rec := recordFor("no-1", spec)
	if rec.No != "no-1" || rec.Name != spec.Name || rec.MatchMode != rule.MatchModeSemantic {
		t.Errorf("recordFor = %+v", rec)
	}
	if rec.Patterns != nil {
		t.Error("recordFor must not attach a pattern set")
	}

	// The record's codes must be an independent copy.
	rec.LanguageCodes[0] = "de"
	if spec.LanguageCodes[0] != "en" {
		t.Error("record shares the spec's language codes slice")
	}
}
