package history

import (
	"fmt"
	"testing"
)

func TestAddAndGet(t *testing.T) {
	b := NewBuffer()

	b.Add("app_a1", Entry{Text: "first", Ts: 1})
	b.Add("app_a1", Entry{Text: "second", Ts: 2})
	b.Add("app_a2", Entry{Text: "other speaker", Ts: 3})

	got := b.Get("app_a1")
	if len(got) != 2 {
		t.Fatalf("Get returned %d entries, want 2", len(got))
	}
	if got[0].Text != "first" || got[1].Text != "second" {
		t.Errorf("entries out of order: %+v", got)
	}

	if other := b.Get("app_a2"); len(other) != 1 || other[0].Text != "other speaker" {
		t.Errorf("speaker isolation broken: %+v", other)
	}
}

func TestGetUnknownSpeaker(t *testing.T) {
	b := NewBuffer()
	if got := b.Get("nobody"); len(got) != 0 {
		t.Errorf("Get for unknown speaker = %v, want empty", got)
	}
}

func TestOverflowKeepsNewest(t *testing.T) {
	b := NewBuffer()
	for i := 0; i < MaxMessages+3; i++ {
		b.Add("s", Entry{Text: fmt.Sprintf("msg-%d", i), Ts: int64(i)})
	}

	got := b.Get("s")
	if len(got) != MaxMessages {
		t.Fatalf("Get returned %d entries, want %d", len(got), MaxMessages)
	}
	// The oldest surviving message is msg-3 after 8 adds into a 5-slot ring.
	for i, e := range got {
		want := fmt.Sprintf("msg-%d", i+3)
		if e.Text != want {
			t.Errorf("entry %d = %q, want %q", i, e.Text, want)
		}
	}
}

func TestTexts(t *testing.T) {
	b := NewBuffer()
	b.Add("s", Entry{Text: "hello", Ts: 1})
	b.Add("s", Entry{Text: "world", Ts: 2})

	got := b.Texts("s")
	if len(got) != 2 || got[0] != "hello" || got[1] != "world" {
		t.Errorf("Texts = %v", got)
	}
}

func TestRemove(t *testing.T) {
	b := NewBuffer()
	b.Add("s", Entry{Text: "hello", Ts: 1})
	b.Remove("s")

	if got := b.Get("s"); len(got) != 0 {
		t.Errorf("entries survive Remove: %v", got)
	}

	// Adding after Remove starts a fresh ring.
	b.Add("s", Entry{Text: "again", Ts: 2})
	if got := b.Texts("s"); len(got) != 1 || got[0] != "again" {
		t.Errorf("Texts after re-add = %v", got)
	}
}
