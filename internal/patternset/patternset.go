// Package patternset implements the per-list multi-pattern matcher. A
// PatternSet maps normalized patterns back to the raw entry text they were
// built from, scans input with an Aho-Corasick automaton, and supports
// incremental mutation with an explicit finalize step that rebuilds the
// automaton's transition structure.
package patternset

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sort"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// Pair is one list entry: the normalized pattern scanned for, and the raw
// text it came from. Raw is what operators see as the matched item.
type Pair struct {
	Pattern string
	Raw     string
}

// Hit is one pattern occurrence found by Scan.
type Hit struct {
	Raw     string // original entry text
	Pattern string // normalized pattern that matched
	Pos     int    // byte offset of the occurrence in the scanned input
}

// PatternSet is the mutable multi-pattern matcher for one rule list.
//
// The automaton is immutable, so Add and Remove only update the pattern
// table and mark it stale; Finalize must be called before Scan after any
// mutation. Scan on a stale set returns results from the previous
// automaton, which is the documented (undefined/stale) contract.
type PatternSet struct {
	entries map[string]string // pattern -> raw
	matcher *ahocorasick.Matcher
	words   []string // automaton pattern index -> pattern
	stale   bool
}

// New returns an empty, finalized PatternSet.
func New() *PatternSet {
	ps := &PatternSet{entries: make(map[string]string)}
	ps.Finalize()
	return ps
}

// Build constructs a finalized PatternSet from pairs in one pass.
// Duplicate patterns keep the last raw text seen.
func Build(pairs []Pair) *PatternSet {
	ps := &PatternSet{entries: make(map[string]string, len(pairs))}
	for _, p := range pairs {
		if p.Pattern == "" {
			continue
		}
		ps.entries[p.Pattern] = p.Raw
	}
	ps.Finalize()
	return ps
}

// Add inserts or replaces a pattern. The set is stale until Finalize.
func (ps *PatternSet) Add(pattern, raw string) {
	if pattern == "" {
		return
	}
	ps.entries[pattern] = raw
	ps.stale = true
}

// Remove deletes a pattern by key. Removing an absent pattern is a no-op
// and reports false; admin deletes race with cache refreshes, so an absent
// pattern is expected, not an error.
func (ps *PatternSet) Remove(pattern string) bool {
	if _, ok := ps.entries[pattern]; !ok {
		return false
	}
	delete(ps.entries, pattern)
	ps.stale = true
	return true
}

// Finalize rebuilds the automaton from the current pattern table. It must
// be called after any Add/Remove before Scan; batched mutations should
// finalize once, not per word.
func (ps *PatternSet) Finalize() {
	ps.words = sortedPatterns(ps.entries)
	ps.matcher = ahocorasick.NewStringMatcher(ps.words)
	ps.stale = false
}

// Len returns the number of patterns in the set.
func (ps *PatternSet) Len() int { return len(ps.entries) }

// Empty reports whether the set holds no patterns.
func (ps *PatternSet) Empty() bool { return len(ps.entries) == 0 }

// Scan returns every pattern occurrence in text, overlaps included, in
// left-to-right order of occurrence position.
func (ps *PatternSet) Scan(text string) []Hit {
	if len(ps.words) == 0 || text == "" {
		return nil
	}

	var hits []Hit
	for _, idx := range ps.matcher.MatchThreadSafe([]byte(text)) {
		if idx < 0 || idx >= len(ps.words) {
			continue
		}
		pattern := ps.words[idx]
		raw := ps.entries[pattern]
		// The automaton reports which patterns occur; walk the text for
		// every occurrence position.
		for from := 0; ; {
			i := strings.Index(text[from:], pattern)
			if i < 0 {
				break
			}
			hits = append(hits, Hit{Raw: raw, Pattern: pattern, Pos: from + i})
			from += i + 1 // +1, not +len: overlapping occurrences count
		}
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Pos != hits[j].Pos {
			return hits[i].Pos < hits[j].Pos
		}
		return hits[i].Pattern < hits[j].Pattern
	})
	return hits
}

// Pairs returns the set's entries sorted by pattern.
func (ps *PatternSet) Pairs() []Pair {
	pairs := make([]Pair, 0, len(ps.entries))
	for _, pattern := range sortedPatterns(ps.entries) {
		pairs = append(pairs, Pair{Pattern: pattern, Raw: ps.entries[pattern]})
	}
	return pairs
}

// serialized is the gob wire form. Only the pattern table is persisted;
// the automaton is rebuilt on load.
type serialized struct {
	Pairs []Pair
}

// Marshal encodes the set to an opaque byte form. Encoding the sorted pair
// list makes the bytes a pure function of the set's content, so two rebuilds
// of the same list produce identical blobs.
func (ps *PatternSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(serialized{Pairs: ps.Pairs()}); err != nil {
		return nil, fmt.Errorf("patternset: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a blob produced by Marshal into a finalized PatternSet
// that matches identically to the one that was serialized.
func Unmarshal(data []byte) (*PatternSet, error) {
	var s serialized
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return nil, fmt.Errorf("patternset: unmarshal: %w", err)
	}
	return Build(s.Pairs), nil
}

func sortedPatterns(entries map[string]string) []string {
	words := make([]string, 0, len(entries))
	for p := range entries {
		words = append(words, p)
	}
	sort.Strings(words)
	return words
}
