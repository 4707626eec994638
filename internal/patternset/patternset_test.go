package patternset

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildAndScan(t *testing.T) {
	ps := Build([]Pair{
		{Pattern: "spam", Raw: "spam"},
		{Pattern: "gold", Raw: "GOLD"},
	})

	tests := []struct {
		name  string
		input string
		want  []Hit
	}{
		{"single hit", "this is spam", []Hit{{Raw: "spam", Pattern: "spam", Pos: 8}}},
		{"no hit", "clean message", nil},
		{"left to right order", "gold then spam", []Hit{
			{Raw: "GOLD", Pattern: "gold", Pos: 0},
			{Raw: "spam", Pattern: "spam", Pos: 10},
		}},
		{"repeated occurrences", "spam and spam", []Hit{
			{Raw: "spam", Pattern: "spam", Pos: 0},
			{Raw: "spam", Pattern: "spam", Pos: 9},
		}},
		{"empty input", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ps.Scan(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Scan(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestScan_RawMappedBack(t *testing.T) {
	// A normalized pattern must report the raw original, not itself.
	ps := Build([]Pair{{Pattern: "badword", Raw: "Bad-Word"}})
	hits := ps.Scan("contains badword here")
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Raw != "Bad-Word" {
		t.Errorf("Raw = %q, want %q", hits[0].Raw, "Bad-Word")
	}
}

func TestScan_Overlaps(t *testing.T) {
	ps := Build([]Pair{
		{Pattern: "abc", Raw: "abc"},
		{Pattern: "bcd", Raw: "bcd"},
		{Pattern: "ab", Raw: "ab"},
	})
	hits := ps.Scan("abcd")
	wantPatterns := []string{"ab", "abc", "bcd"}
	if len(hits) != len(wantPatterns) {
		t.Fatalf("got %d hits %v, want %d", len(hits), hits, len(wantPatterns))
	}
	for i, w := range wantPatterns {
		if hits[i].Pattern != w {
			t.Errorf("hit[%d].Pattern = %q, want %q", i, hits[i].Pattern, w)
		}
	}
}

func TestAddFinalize(t *testing.T) {
	ps := New()
	ps.Add("newword", "NewWord")
	ps.Finalize()

	hits := ps.Scan("a newword appears")
	if len(hits) != 1 || hits[0].Raw != "NewWord" {
		t.Fatalf("after Add+Finalize, Scan = %v", hits)
	}
}

func TestRemove(t *testing.T) {
	ps := Build([]Pair{
		{Pattern: "keep", Raw: "keep"},
		{Pattern: "drop", Raw: "drop"},
	})

	if !ps.Remove("drop") {
		t.Error("Remove(existing) = false, want true")
	}
	ps.Finalize()

	if hits := ps.Scan("drop the keep"); len(hits) != 1 || hits[0].Pattern != "keep" {
		t.Errorf("after removal, Scan = %v, want only %q", hits, "keep")
	}
}

func TestRemove_AbsentIsNoop(t *testing.T) {
	ps := Build([]Pair{{Pattern: "present", Raw: "present"}})

	if ps.Remove("absent") {
		t.Error("Remove(absent) = true, want false")
	}
	ps.Finalize()

	// The set must be unchanged.
	if ps.Len() != 1 {
		t.Errorf("Len = %d, want 1", ps.Len())
	}
	if hits := ps.Scan("present"); len(hits) != 1 {
		t.Errorf("Scan after absent removal = %v, want 1 hit", hits)
	}
}

func TestBatchMutationSingleFinalize(t *testing.T) {
	ps := New()
	words := []string{"one", "two", "three", "four"}
	for _, w := range words {
		ps.Add(w, w)
	}
	ps.Finalize()

	for _, w := range words {
		if hits := ps.Scan(w); len(hits) != 1 {
			t.Errorf("Scan(%q) = %v, want 1 hit", w, hits)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	ps := Build([]Pair{
		{Pattern: "alpha", Raw: "Alpha"},
		{Pattern: "beta", Raw: "beta"},
		{Pattern: "\x01你\x01好\x01", Raw: "你好"},
	})

	data, err := ps.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	restored, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if restored.Len() != ps.Len() {
		t.Fatalf("restored Len = %d, want %d", restored.Len(), ps.Len())
	}

	inputs := []string{"alpha beta", "\x01你\x01好\x01", "nothing", "Alpha"}
	for _, in := range inputs {
		if diff := cmp.Diff(ps.Scan(in), restored.Scan(in)); diff != "" {
			t.Errorf("Scan(%q) differs after round trip (-orig +restored):\n%s", in, diff)
		}
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	// Same content inserted in different orders must serialize identically;
	// the full-rebuild idempotency guarantee depends on this.
	a := Build([]Pair{{Pattern: "x", Raw: "x"}, {Pattern: "y", Raw: "y"}, {Pattern: "z", Raw: "z"}})
	b := New()
	for _, p := range []string{"z", "x", "y"} {
		b.Add(p, p)
	}
	b.Finalize()

	da, err := a.Marshal()
	if err != nil {
		t.Fatalf("Marshal a: %v", err)
	}
	db, err := b.Marshal()
	if err != nil {
		t.Fatalf("Marshal b: %v", err)
	}
	if string(da) != string(db) {
		t.Error("serialized forms differ for identical content")
	}
}

func TestEmptySet(t *testing.T) {
	ps := New()
	if !ps.Empty() {
		t.Error("New() not empty")
	}
	if hits := ps.Scan("anything"); hits != nil {
		t.Errorf("empty set Scan = %v, want nil", hits)
	}
}

func BenchmarkScan(b *testing.B) {
	pairs := make([]Pair, 0, 1000)
	for i := 0; i < 1000; i++ {
		w := "word" + strings.Repeat("x", i%7) + string(rune('a'+i%26))
		pairs = append(pairs, Pair{Pattern: w, Raw: w})
	}
	ps := Build(pairs)
	input := strings.Repeat("a perfectly ordinary chat message with wordxa inside ", 10)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ps.Scan(input)
	}
}
