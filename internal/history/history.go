// Package history keeps the bounded turn log used to build LLM context.
package history

import (
	"fmt"

	"yuzu/voicechat/internal/apperr"
)

// DefaultCap is the number of entries kept when no cap is configured.
const DefaultCap = 100

// Speaker is who produced an entry.
type Speaker int

const (
	Human Speaker = iota + 1
	AI
)

func (s Speaker) String() string {
	switch s {
	case Human:
		return "Human"
	case AI:
		return "AI"
	default:
		return fmt.Sprintf("Speaker(%d)", int(s))
	}
}

// MarshalText encodes the speaker as its wire name.
func (s Speaker) MarshalText() ([]byte, error) {
	if s != Human && s != AI {
		return nil, apperr.Protocolf("unknown speaker %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Speaker) UnmarshalText(b []byte) error {
	v, err := ParseSpeaker(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseSpeaker accepts "Human" or "AI" (the bridge wire values).
func ParseSpeaker(s string) (Speaker, error) {
	switch s {
	case "Human":
		return Human, nil
	case "AI":
		return AI, nil
	default:
		return 0, apperr.Protocolf("unknown speaker %q", s)
	}
}

// Entry is one recorded turn. Entries are values and are never modified after Append.
type Entry struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// History is a FIFO-evicting log. It is not safe for concurrent use; the owning
// session actor is its only writer and reader.
type History struct {
	cap     int
	entries []Entry
}

// New returns a history holding at most capacity entries (DefaultCap if <= 0).
func New(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCap
	}
	return &History{cap: capacity, entries: make([]Entry, 0, capacity)}
}

// Append records e, dropping the oldest entries beyond the cap.
func (h *History) Append(e Entry) {
	h.entries = append(h.entries, e)
	if over := len(h.entries) - h.cap; over > 0 {
		n := copy(h.entries, h.entries[over:])
		h.entries = h.entries[:n]
	}
}

// Recent returns a copy of the last n entries (all of them if n <= 0 or n > Len).
func (h *History) Recent(n int) []Entry {
	if n <= 0 || n > len(h.entries) {
		n = len(h.entries)
	}
	out := make([]Entry, n)
	copy(out, h.entries[len(h.entries)-n:])
	return out
}

// Entries returns a copy of everything held.
func (h *History) Entries() []Entry { return h.Recent(0) }

// Len is the number of entries held.
func (h *History) Len() int { return len(h.entries) }

// Cap is the configured capacity.
func (h *History) Cap() int { return h.cap }

// LastBy returns the most recent entry from speaker.
func (h *History) LastBy(s Speaker) (Entry, bool) {
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].Speaker == s {
			return h.entries[i], true
		}
	}
	return Entry{}, false
}
