package cache

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/riskguard/filter-app/internal/rule"
	"github.com/riskguard/filter-app/internal/tokenizer"
)

func testDump() ([]ListDump, []BindingDump, []FlagDump) {
	lists := []ListDump{
		{
			No: "bl-1", Name: "profanity",
			Type: rule.ListTypeBlacklist, MatchRule: rule.MatchText,
			MatchMode: rule.MatchModeLiteral, RiskType: rule.RiskAbuse,
			Status: rule.StatusOn, LanguageScope: rule.LanguageScopeAll,
			Entries: []string{"Bad", "WORSE"},
		},
		{
			No: "wl-1", Name: "greetings",
			Type: rule.ListTypeWhitelist, MatchRule: rule.MatchText,
			MatchMode: rule.MatchModeSemantic,
			Status:    rule.StatusOn, LanguageScope: rule.LanguageScopeAll,
			Entries: []string{"Hello There"},
		},
	}
	bindings := []BindingDump{
		{ListNo: "bl-1", Scope: rule.ScopeGlobal},
		{ListNo: "wl-1", Scope: rule.ScopeAppChannel, AppID: "game1", ChannelID: "lobby"},
	}
	flags := []FlagDump{
		{Scope: rule.ScopeApp, AppID: "game1", Field: FlagAI, Value: "1"},
		{Scope: rule.ScopeApp, AppID: "game1", Field: FlagThreshold, Value: "0.9"},
	}
	return lists, bindings, flags
}

func TestProjectAll(t *testing.T) {
	tok := tokenizer.New()
	lists, bindings, flags := testDump()

	records, scopes, err := projectAll(tok, lists, bindings, flags)
	if err != nil {
		t.Fatalf("projectAll: %v", err)
	}

	bl := records["bl-1"]
	if bl == nil || bl.Patterns.Len() != 2 {
		t.Fatalf("bl-1 record = %+v", bl)
	}
	// Literal entries are lowercased.
	if hits := bl.Patterns.Scan("that was worse"); len(hits) != 1 || hits[0].Raw != "WORSE" {
		t.Errorf("literal scan = %v", hits)
	}

	wl := records["wl-1"]
	if wl == nil || wl.Patterns.Len() != 1 {
		t.Fatalf("wl-1 record = %+v", wl)
	}
	// Semantic entries are tokenized.
	if hits := wl.Patterns.Scan(tok.Tokenize("hello  THERE", "")); len(hits) != 1 {
		t.Errorf("semantic scan = %v", hits)
	}

	if got := scopes[TierGlobal]["blacklist"]; got != `["bl-1"]` {
		t.Errorf("global blacklist field = %q", got)
	}
	if got := scopes[TierAppChannel("game1", "lobby")]["whitelist"]; got != `["wl-1"]` {
		t.Errorf("channel whitelist field = %q", got)
	}
	app := scopes[TierApp("game1")]
	if app[FlagAI] != "1" || app[FlagThreshold] != "0.9" {
		t.Errorf("app tier flags = %v", app)
	}
}

func TestProjectAll_Deterministic(t *testing.T) {
	tok := tokenizer.New()
	lists, bindings, flags := testDump()

	_, scopesA, err := projectAll(tok, lists, bindings, flags)
	if err != nil {
		t.Fatalf("projectAll: %v", err)
	}

	// Same rows in a different order.
	reversed := []ListDump{lists[1], lists[0]}
	reversed[0].Entries = []string{"Hello There"}
	rbindings := []BindingDump{bindings[1], bindings[0]}
	rflags := []FlagDump{flags[1], flags[0]}

	recordsB, scopesB, err := projectAll(tok, reversed, rbindings, rflags)
	if err != nil {
		t.Fatalf("projectAll reversed: %v", err)
	}

	if diff := cmp.Diff(scopesA, scopesB); diff != "" {
		t.Errorf("scope projection depends on row order (-a +b):\n%s", diff)
	}

	// The serialized pattern blobs must also be byte-identical.
	recordsA, _, _ := projectAll(tok, lists, bindings, flags)
	for no, a := range recordsA {
		b := recordsB[no]
		if b == nil {
			t.Fatalf("record %s missing in reversed projection", no)
		}
		blobA, err := a.Patterns.Marshal()
		if err != nil {
			t.Fatalf("marshal a: %v", err)
		}
		blobB, err := b.Patterns.Marshal()
		if err != nil {
			t.Fatalf("marshal b: %v", err)
		}
		if string(blobA) != string(blobB) {
			t.Errorf("list %s: pattern blob differs across row orders", no)
		}
	}
}

func TestProjectAll_SkipsUnknownBinding(t *testing.T) {
	tok := tokenizer.New()
	lists, bindings, flags := testDump()
	bindings = append(bindings, BindingDump{ListNo: "ghost", Scope: rule.ScopeGlobal})

	_, scopes, err := projectAll(tok, lists, bindings, flags)
	if err != nil {
		t.Fatalf("projectAll: %v", err)
	}
	if got := scopes[TierGlobal]["blacklist"]; got != `["bl-1"]` {
		t.Errorf("global blacklist field = %q, ghost binding must be dropped", got)
	}
}

func TestEntryPattern(t *testing.T) {
	tok := tokenizer.New()

	if got := EntryPattern(tok, rule.MatchModeLiteral, "  BadWord  ", ""); got != "badword" {
		t.Errorf("literal pattern = %q", got)
	}
	sem := EntryPattern(tok, rule.MatchModeSemantic, "Bad Word", "")
	if sem != tok.Tokenize("Bad Word", "") {
		t.Errorf("semantic pattern = %q", sem)
	}
}

func TestLanguageHint(t *testing.T) {
	if got := LanguageHint(rule.LanguageScopeSpecific, []string{"ja"}); got != "ja" {
		t.Errorf("single code hint = %q", got)
	}
	if got := LanguageHint(rule.LanguageScopeSpecific, []string{"ja", "ko"}); got != "" {
		t.Errorf("multi code hint = %q, want empty", got)
	}
	if got := LanguageHint(rule.LanguageScopeAll, nil); got != "" {
		t.Errorf("ALL hint = %q, want empty", got)
	}
}
