package session

import (
	"sync"
	"time"
)

// Role tells who produced a transcript entry. Toasts are short-lived
// notifications that clients show outside the conversation.
type Role string

const (
	RoleUser  Role = "user"
	RoleBot   Role = "bot"
	RoleError Role = "error"
	RoleToast Role = "toast"
)

// DefaultTranscriptSize is the number of entries a transcript keeps.
const DefaultTranscriptSize = 200

// Entry is one line of the conversation.
type Entry struct {
	Seq  uint64    `json:"seq"`
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Transcript is the bounded conversation history of a session. Entries get
// increasing sequence numbers so clients can poll for what they missed.
// Subscribers are called synchronously for every appended entry and must
// not block.
type Transcript struct {
	mu      sync.RWMutex
	size    int
	seq     uint64
	entries []Entry
	subs    map[uint64]func(Entry)
	nextSub uint64
	now     func() time.Time
}

// NewTranscript returns a transcript keeping at most size entries, or
// DefaultTranscriptSize if size is not positive.
func NewTranscript(size int) *Transcript {
	if size <= 0 {
		size = DefaultTranscriptSize
	}
	return &Transcript{
		size: size,
		subs: make(map[uint64]func(Entry)),
		now:  time.Now,
	}
}

func (t *Transcript) User(text string)  { t.append(RoleUser, text) }
func (t *Transcript) Bot(text string)   { t.append(RoleBot, text) }
func (t *Transcript) Error(text string) { t.append(RoleError, text) }
func (t *Transcript) Toast(text string) { t.append(RoleToast, text) }

func (t *Transcript) append(role Role, text string) {
	t.mu.Lock()
	t.seq++
	e := Entry{Seq: t.seq, Role: role, Text: text, At: t.now()}
	t.entries = append(t.entries, e)
	if over := len(t.entries) - t.size; over > 0 {
		t.entries = append(t.entries[:0:0], t.entries[over:]...)
	}
	subs := make([]func(Entry), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	t.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
}

// Since returns the retained entries with a sequence number above seq.
func (t *Transcript) Since(seq uint64) []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent entry.
func (t *Transcript) Last() (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.entries) == 0 {
		return Entry{}, false
	}
	return t.entries[len(t.entries)-1], true
}

// Subscribe registers fn for future entries and returns a function that
// removes it again.
func (t *Transcript) Subscribe(fn func(Entry)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSub++
	id := t.nextSub
	t.subs[id] = fn
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.subs, id)
	}
}
