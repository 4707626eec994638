package sentinel

import (
	"reflect"
	"testing"
)

func TestBuildIndex(t *testing.T) {
	raw := map[string]string{
		"bot-farm":   `{"game1": ["acct1", "acct2"], "game2": ["acct1"]}`,
		"spam-wave":  `{"game1": ["acct2"]}`,
		"broken":     `not json`,
		"empty-rule": `{}`,
	}

	index := BuildIndex(AccountKey, raw)

	want := map[string][]string{
		"game1_acct1": {"bot-farm"},
		"game1_acct2": {"bot-farm", "spam-wave"},
		"game2_acct1": {"bot-farm"},
	}
	if !reflect.DeepEqual(index, want) {
		t.Errorf("BuildIndex = %v, want %v", index, want)
	}
}

func TestBuildIndex_LabelOrderStable(t *testing.T) {
	raw := map[string]string{
		"z-rule": `{"app": ["x"]}`,
		"a-rule": `{"app": ["x"]}`,
	}
	for i := 0; i < 10; i++ {
		index := BuildIndex(AccountKey, raw)
		if got := index["app_x"]; len(got) != 2 || got[0] != "a-rule" || got[1] != "z-rule" {
			t.Fatalf("labels = %v, want sorted [a-rule z-rule]", got)
		}
	}
}

func TestLookup(t *testing.T) {
	table := Table{
		Accounts: map[string][]string{"game1_acct1": {"bot-farm"}},
		IPs:      map[string][]string{"game1_10.0.0.9": {"proxy-pool"}},
	}

	if label, ok := table.LookupAccount("game1", "acct1"); !ok || label != "bot-farm" {
		t.Errorf("LookupAccount = (%q, %v), want (bot-farm, true)", label, ok)
	}
	if _, ok := table.LookupAccount("game2", "acct1"); ok {
		t.Error("LookupAccount matched wrong app")
	}
	if label, ok := table.LookupIP("game1", "10.0.0.9"); !ok || label != "proxy-pool" {
		t.Errorf("LookupIP = (%q, %v), want (proxy-pool, true)", label, ok)
	}
	if _, ok := table.LookupIP("game1", "10.0.0.1"); ok {
		t.Error("LookupIP matched unlisted ip")
	}
}
