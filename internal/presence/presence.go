package presence

import (
	"context"
	"sync"
	"time"

	"codraft/internal/document/model"
)

// Feed is the presence collaborator at its interface boundary: a
// continuously-updating stream of the full presence set for one document.
type Feed interface {
	WatchPresence(ctx context.Context, docID, userID string, interval time.Duration) <-chan []model.PresenceEntry
}

// View derives the online set for one open document. It holds no state
// between observations: every View starts empty until the first snapshot.
type View struct {
	docID  string
	userID string

	mu      sync.Mutex
	entries []model.PresenceEntry
}

// Observe starts a presence view. An empty document or user id (no
// authenticated user yet) yields nil: there is nothing to observe.
// The view tears down with ctx.
func Observe(ctx context.Context, feed Feed, docID, userID string, interval time.Duration) *View {
	if docID == "" || userID == "" {
		return nil
	}

	v := &View{docID: docID, userID: userID}
	ch := feed.WatchPresence(ctx, docID, userID, interval)
	go func() {
		for {
			select {
			case entries, ok := <-ch:
				if !ok {
					return
				}
				v.mu.Lock()
				v.entries = entries
				v.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return v
}

// Snapshot returns a copy of the current presence set.
func (v *View) Snapshot() []model.PresenceEntry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]model.PresenceEntry(nil), v.entries...)
}

// OnlineCount is the size of the current presence set.
func (v *View) OnlineCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.entries)
}

// Visible reports whether a presence affordance should render at all.
// An empty set shows nothing, never "0 online".
func (v *View) Visible() bool {
	return v.OnlineCount() > 0
}
