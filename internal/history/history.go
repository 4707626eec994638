// Package history keeps the recent messages of each speaker in memory.
// The filter pipeline records every inspected text here and hands the
// window to the LLM classifier as conversation context.
package history

import "sync"

// MaxMessages is the number of recent messages retained per speaker.
const MaxMessages = 5

// Entry represents a single message stored in the ring buffer.
type Entry struct {
	Text string `json:"text"`
	Ts   int64  `json:"ts"`
}

// Buffer stores the last N messages per speaker key in memory.
// It is goroutine-safe and uses a ring buffer internally.
type Buffer struct {
	mu      sync.RWMutex
	buffers map[string]*ringBuffer // speaker key -> ring buffer
}

// ringBuffer is a fixed-size circular buffer of Entry.
type ringBuffer struct {
	items []Entry
	pos   int
	count int
}

// NewBuffer creates a new empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		buffers: make(map[string]*ringBuffer),
	}
}

// Add appends a message to the speaker's ring buffer. If the buffer is
// full, the oldest message is overwritten.
func (b *Buffer) Add(speaker string, e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rb, ok := b.buffers[speaker]
	if !ok {
		rb = &ringBuffer{
			items: make([]Entry, MaxMessages),
		}
		b.buffers[speaker] = rb
	}

	rb.items[rb.pos] = e
	rb.pos = (rb.pos + 1) % MaxMessages
	if rb.count < MaxMessages {
		rb.count++
	}
}

// Get returns the last N messages for a speaker in chronological order
// (oldest first). Returns an empty slice if the speaker has no buffer.
func (b *Buffer) Get(speaker string) []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rb, ok := b.buffers[speaker]
	if !ok {
		return []Entry{}
	}

	result := make([]Entry, rb.count)
	// The oldest message is at position (pos - count) mod MaxMessages.
	start := (rb.pos - rb.count + MaxMessages) % MaxMessages
	for i := 0; i < rb.count; i++ {
		result[i] = rb.items[(start+i)%MaxMessages]
	}
	return result
}

// Texts returns just the message texts of a speaker's window, oldest
// first.
func (b *Buffer) Texts(speaker string) []string {
	entries := b.Get(speaker)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Text
	}
	return out
}

// Remove deletes the buffer for a speaker.
func (b *Buffer) Remove(speaker string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.buffers, speaker)
}
