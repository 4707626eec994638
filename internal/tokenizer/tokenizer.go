// Package tokenizer normalizes text into a canonical token stream for
// semantic matching. Two raw strings that differ only in case, whitespace,
// punctuation, or CJK spacing normalize to the same stream, so a pattern
// built from one will match the other.
package tokenizer

import (
	"strings"
	"unicode"
)

// Delim joins tokens in the normalized output. It also leads and trails the
// stream so every token is delimiter-bounded, which keeps substring
// matching token-exact ("\x01ab\x01" never matches inside "\x01abc\x01").
const Delim = "\x01"

// Segmenter splits text for a language whose word boundaries need a
// dedicated algorithm. Registered per language code.
type Segmenter func(text string) []string

// Tokenizer converts raw text to the canonical delimiter-joined form.
// The zero value is not usable; construct with New.
type Tokenizer struct {
	lowercase  bool
	dropPunct  bool
	segmenters map[string]Segmenter
}

// Option configures a Tokenizer.
type Option func(*Tokenizer)

// WithSegmenter registers a language-specific segmenter, keyed by the
// lowercase language code the upstream predictor emits.
func WithSegmenter(language string, seg Segmenter) Option {
	return func(t *Tokenizer) {
		t.segmenters[strings.ToLower(language)] = seg
	}
}

// KeepPunctuation disables punctuation stripping; each punctuation rune
// becomes its own token instead.
func KeepPunctuation() Option {
	return func(t *Tokenizer) { t.dropPunct = false }
}

// New returns a Tokenizer that lowercases, drops punctuation, and splits
// CJK/Thai/Hangul/Kana codepoints into single-rune tokens.
func New(opts ...Option) *Tokenizer {
	t := &Tokenizer{
		lowercase:  true,
		dropPunct:  true,
		segmenters: make(map[string]Segmenter),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Tokenize normalizes text for the given predicted language and returns
// the delimiter-joined token stream. It is a pure function of its inputs.
// An input with no tokens left after cleaning returns "".
func (t *Tokenizer) Tokenize(text, language string) string {
	text = cleanText(text)

	if seg, ok := t.segmenters[strings.ToLower(language)]; ok {
		text = strings.Join(seg(text), " ")
	} else {
		text = spaceOutCJK(text)
	}

	var tokens []string
	for _, tok := range strings.Fields(text) {
		if t.lowercase {
			tok = strings.ToLower(tok)
		}
		tokens = append(tokens, t.splitOnPunct(tok)...)
	}
	if len(tokens) == 0 {
		return ""
	}
	return Delim + strings.Join(tokens, Delim) + Delim
}

// splitOnPunct breaks a token at punctuation runes. With dropPunct the
// punctuation disappears; otherwise each punctuation rune is its own token.
func (t *Tokenizer) splitOnPunct(token string) []string {
	var out []string
	var cur strings.Builder
	for _, r := range token {
		if isPunct(r) {
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
			if !t.dropPunct {
				out = append(out, string(r))
			}
			continue
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

// cleanText drops control characters and the replacement character, and
// canonicalizes every unicode space to a plain blank.
func cleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if r == 0 || r == 0xFFFD || isControl(r) {
			continue
		}
		if isSpace(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// spaceOutCJK surrounds every rune of a script without whitespace word
// boundaries with blanks, so each becomes its own token.
func spaceOutCJK(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isUnspacedScript(r) {
			b.WriteRune(' ')
			b.WriteRune(r)
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUnspacedScript reports whether r belongs to a script segmented per
// codepoint: CJK ideographs, Kana, Hangul, and Thai.
func isUnspacedScript(r rune) bool {
	switch {
	case r >= 0x4E00 && r <= 0xA000: // CJK unified ideographs (and extension overlap)
		return true
	case r >= 0x3400 && r <= 0x4DBF: // CJK extension A
		return true
	case r >= 0x3040 && r <= 0x309F: // hiragana
		return true
	case r >= 0x30A0 && r <= 0x30FF: // katakana
		return true
	case r >= 0x31F0 && r <= 0x31FF: // katakana phonetic extensions
		return true
	case r >= 0xAC00 && r <= 0xD7AF: // hangul syllables
		return true
	case r >= 0x1100 && r <= 0x11FF: // hangul jamo
		return true
	case r >= 0x3130 && r <= 0x318F: // hangul compatibility jamo
		return true
	case r >= 0x0E00 && r <= 0x0E7F: // thai
		return true
	}
	return false
}

func isSpace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	return unicode.IsControl(r) || unicode.Is(unicode.Cf, r)
}

// isPunct treats the ASCII symbol blocks as punctuation in addition to the
// unicode P category, matching how patterns were historically normalized.
func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}
