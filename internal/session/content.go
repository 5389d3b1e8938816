package session

import "context"

// ContentState is the availability of a document's collaborative content as
// the sync engine reports it. The engine owns versioning and merge; the
// session only cares whether an editor can be obtained yet.
type ContentState int

const (
	ContentLoading ContentState = iota
	ContentNotCreated
	ContentReady
)

// Handle is the opaque token for an obtainable editor instance.
type Handle struct {
	DocumentID string
}

// ContentUpdate is one tick of a content watch.
type ContentUpdate struct {
	State  ContentState
	Handle *Handle
}

// ContentEngine is the sync-engine collaborator at its interface boundary.
type ContentEngine interface {
	WatchContent(ctx context.Context, docID string) <-chan ContentUpdate
	CreateContent(ctx context.Context, docID string) error
}
