package tokenizer

import (
	"strings"
	"testing"
)

func TestTokenize(t *testing.T) {
	tok := New()

	tests := []struct {
		name  string
		input string
		lang  string
		want  []string // expected tokens, in order
	}{
		{"plain words", "Hello World", "en", []string{"hello", "world"}},
		{"collapse whitespace", "  a \t b\n c ", "en", []string{"a", "b", "c"}},
		{"punctuation dropped", "he!llo, wor--ld.", "en", []string{"he", "llo", "wor", "ld"}},
		{"control characters stripped", "a\x00b​c", "en", []string{"abc"}},
		{"unicode spaces", "a b", "en", []string{"a", "b"}},
		{"chinese per-char", "你好ok", "zh", []string{"你", "好", "ok"}},
		{"japanese kana per-char", "アニメ", "ja", []string{"ア", "ニ", "メ"}},
		{"hangul per-char", "한국", "ko", []string{"한", "국"}},
		{"thai per-char", "ไทย", "th", []string{"ไ", "ท", "ย"}},
		{"mixed scripts", "play原神now", "zh", []string{"play", "原", "神", "now"}},
		{"empty", "", "en", nil},
		{"only punctuation", "!!!", "en", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tok.Tokenize(tt.input, tt.lang)
			want := join(tt.want)
			if got != want {
				t.Errorf("Tokenize(%q, %q) = %q, want %q", tt.input, tt.lang, got, want)
			}
		})
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	tok := New()
	const input = "Some MIXED text, 你好 WORLD!"
	first := tok.Tokenize(input, "zh")
	for i := 0; i < 5; i++ {
		if got := tok.Tokenize(input, "zh"); got != first {
			t.Fatalf("run %d produced %q, want %q", i, got, first)
		}
	}
}

func TestTokenize_VariantsNormalizeIdentically(t *testing.T) {
	tok := New()

	// Pairs of raw strings with the same semantic tokens.
	pairs := [][2]string{
		{"Buy GOLD now", "buy gold  now!"},
		{"你好世界", "你 好 世 界"},
		{"free-coins", "free coins"},
	}

	for _, p := range pairs {
		a := tok.Tokenize(p[0], "zh")
		b := tok.Tokenize(p[1], "zh")
		if a != b {
			t.Errorf("Tokenize(%q) = %q but Tokenize(%q) = %q, want equal", p[0], a, p[1], b)
		}
	}
}

func TestTokenize_KeepPunctuation(t *testing.T) {
	tok := New(KeepPunctuation())
	got := tok.Tokenize("a!b", "en")
	want := join([]string{"a", "!", "b"})
	if got != want {
		t.Errorf("Tokenize(%q) = %q, want %q", "a!b", got, want)
	}
}

func TestTokenize_CustomSegmenter(t *testing.T) {
	seg := func(text string) []string {
		// Toy segmenter: fixed two-char chunks.
		var out []string
		runes := []rune(text)
		for i := 0; i < len(runes); i += 2 {
			end := i + 2
			if end > len(runes) {
				end = len(runes)
			}
			out = append(out, string(runes[i:end]))
		}
		return out
	}
	tok := New(WithSegmenter("ja", seg))

	got := tok.Tokenize("アニメ", "ja")
	want := join([]string{"アニ", "メ"})
	if got != want {
		t.Errorf("Tokenize with segmenter = %q, want %q", got, want)
	}

	// Other languages still use per-rune segmentation.
	got = tok.Tokenize("アニメ", "zh")
	want = join([]string{"ア", "ニ", "メ"})
	if got != want {
		t.Errorf("Tokenize without segmenter = %q, want %q", got, want)
	}
}

func TestTokenize_DelimiterBounded(t *testing.T) {
	tok := New()
	stream := tok.Tokenize("abc def", "en")
	if !strings.HasPrefix(stream, Delim) || !strings.HasSuffix(stream, Delim) {
		t.Errorf("stream %q not delimiter-bounded", stream)
	}
	// Token-exact containment: "ab" must not be found inside "abc".
	if strings.Contains(stream, Delim+"ab"+Delim) {
		t.Errorf("stream %q contains partial token %q", stream, "ab")
	}
}

func join(tokens []string) string {
	if len(tokens) == 0 {
		return ""
	}
	return Delim + strings.Join(tokens, Delim) + Delim
}

func BenchmarkTokenize(b *testing.B) {
	tok := New()
	input := strings.Repeat("平凡的一天 another ordinary day ", 20)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tok.Tokenize(input, "zh")
	}
}
