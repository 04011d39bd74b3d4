// Package transcript holds the ordered, append-only list of chat entries and
// renders it as plain text. The in-memory list is the source of truth; any
// view is a projection of Snapshot.
package transcript

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"chat-client/internal/domain"
)

var ErrInvalidSender = errors.New("transcript: entry sender must be user or bot")

// Transcript is safe for concurrent use. Replies complete on their own
// goroutines and append here; the view reads snapshots.
type Transcript struct {
	mu      sync.RWMutex
	entries []domain.Entry
	subs    []chan struct{}

	now   func() time.Time
	newID func() string
}

func New() *Transcript {
	return &Transcript{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Append adds entries as one contiguous batch and returns them with ID, Seq
// and CreatedAt filled in. No entry is appended if any sender is invalid.
func (t *Transcript) Append(entries ...domain.Entry) ([]domain.Entry, error) {
	for _, e := range entries {
		if !e.Sender.Valid() {
			return nil, ErrInvalidSender
		}
	}
	if len(entries) == 0 {
		return nil, nil
	}

	t.mu.Lock()
	out := make([]domain.Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			e.ID = t.newID()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = t.now()
		}
		e.Seq = len(t.entries)
		t.entries = append(t.entries, e)
		out = append(out, e)
	}
	subs := t.subs
	t.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return out, nil
}

// Snapshot returns a copy of every entry in append order.
func (t *Transcript) Snapshot() []domain.Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]domain.Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Subscribe returns a channel that receives a signal after each append.
// Signals coalesce: a reader that falls behind sees one pending signal and
// should re-read Snapshot.
func (t *Transcript) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	t.mu.Lock()
	t.subs = append(t.subs, ch)
	t.mu.Unlock()
	return ch
}
