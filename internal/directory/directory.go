package directory

import (
	"context"
	"strings"
	"sync"

	"codraft/internal/document/model"
	"codraft/internal/notify"
	"codraft/pkg/logger"
)

// Store issues the one-shot document writes.
type Store interface {
	Create(ctx context.Context, title string, isPublic bool) (string, error)
	ToggleVisibility(ctx context.Context, docID string) error
	Delete(ctx context.Context, docID string) error
}

// Watcher supplies the reactive list and search views.
type Watcher interface {
	WatchList(ctx context.Context) <-chan []model.DocumentSummary
	WatchSearch(ctx context.Context, query string) <-chan []model.DocumentSummary
}

// View names which of the two document views is displayed.
type View int

const (
	ViewList View = iota
	ViewSearch
)

// Directory maintains the list/search view of the user's documents and
// mediates the create/toggle/delete intents. No intent mutates local state
// optimistically; the views only ever reflect backend snapshots.
type Directory struct {
	store  Store
	watch  Watcher
	notif  notify.Notifier
	userID string

	// OnDeleted fires synchronously on a successful delete, before the
	// success notification. The coordinator hangs selection clearing off it.
	OnDeleted func(docID string)

	ctx context.Context

	mu           sync.Mutex
	query        string
	list         []model.DocumentSummary
	listLoaded   bool
	search       []model.DocumentSummary
	searchLoaded bool
	searchCancel context.CancelFunc
}

func New(store Store, watch Watcher, notif notify.Notifier, userID string) *Directory {
	return &Directory{store: store, watch: watch, notif: notif, userID: userID}
}

// Start begins the list watch. The list view runs for the directory's whole
// life; the search view comes and goes with the query.
func (d *Directory) Start(ctx context.Context) {
	d.mu.Lock()
	d.ctx = ctx
	pending := d.query
	d.mu.Unlock()

	ch := d.watch.WatchList(ctx)
	go func() {
		for {
			select {
			case docs, ok := <-ch:
				if !ok {
					return
				}
				d.mu.Lock()
				d.list = docs
				d.listLoaded = true
				d.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	// A query set before Start was only recorded; its watch starts now.
	if strings.TrimSpace(pending) != "" {
		d.SetQuery(pending)
	}
}

// SetQuery updates the search query. A query that trims to empty reverts
// display to the plain list and tears the search watch down; a non-empty
// query restarts the search watch from scratch.
func (d *Directory) SetQuery(query string) {
	trimmed := strings.TrimSpace(query)

	d.mu.Lock()
	d.query = query
	if d.searchCancel != nil {
		d.searchCancel()
		d.searchCancel = nil
	}
	d.search = nil
	d.searchLoaded = false

	// Before Start there is no lifetime to scope the watch to; the query is
	// recorded and its watch starts with the directory.
	if trimmed == "" || d.ctx == nil {
		d.mu.Unlock()
		return
	}

	searchCtx, cancel := context.WithCancel(d.ctx)
	d.searchCancel = cancel
	d.mu.Unlock()

	ch := d.watch.WatchSearch(searchCtx, trimmed)
	go func() {
		for {
			select {
			case docs, ok := <-ch:
				if !ok {
					return
				}
				d.mu.Lock()
				// A stale watch may deliver after the query moved on.
				if searchCtx.Err() == nil {
					d.search = docs
					d.searchLoaded = true
				}
				d.mu.Unlock()
			case <-searchCtx.Done():
				return
			}
		}
	}()
}

// Displayed returns the documents to show, which view they came from, and
// whether that view has received its first snapshot yet. Exactly one of the
// two views is ever displayed, chosen solely by the trimmed query.
func (d *Directory) Displayed() ([]model.DocumentSummary, View, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if strings.TrimSpace(d.query) != "" {
		return append([]model.DocumentSummary(nil), d.search...), ViewSearch, d.searchLoaded
	}
	return append([]model.DocumentSummary(nil), d.list...), ViewList, d.listLoaded
}

// Create submits a new document. An empty trimmed title is rejected locally.
// On success the returned id is immediately selectable and the caller is
// expected to select it. On failure nothing changed locally, so the create
// form can retry as-is.
func (d *Directory) Create(ctx context.Context, title string, isPublic bool) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", &model.ValidationError{Reason: "title must not be empty"}
	}

	id, err := d.store.Create(ctx, trimmed, isPublic)
	if err != nil {
		logger.Sugar.Warnf("Create document failed: %v", err)
		d.notif.Failure("Failed to create document")
		return "", err
	}
	d.notif.Success("Document created successfully")
	return id, nil
}

// ToggleVisibility flips is_public through the backend. There is no local
// optimistic flip: the views show the post-commit value only, so a rejection
// leaves the prior value displayed without any revert.
func (d *Directory) ToggleVisibility(ctx context.Context, docID string) error {
	if err := d.store.ToggleVisibility(ctx, docID); err != nil {
		logger.Sugar.Warnf("Toggle visibility for %s failed: %v", docID, err)
		d.notif.Failure("Failed to update document")
		return err
	}
	d.notif.Success("Document visibility updated")
	return nil
}

// Remove deletes a document. The confirmed flag is the explicit user
// confirmation step; without it nothing is dispatched. On success OnDeleted
// fires before the notification so an open session never outlives its
// document.
func (d *Directory) Remove(ctx context.Context, docID string, confirmed bool) error {
	if !confirmed {
		return nil
	}

	if err := d.store.Delete(ctx, docID); err != nil {
		logger.Sugar.Warnf("Delete document %s failed: %v", docID, err)
		d.notif.Failure("Failed to delete document")
		return err
	}
	if d.OnDeleted != nil {
		d.OnDeleted(docID)
	}
	d.notif.Success("Document deleted")
	return nil
}

// CanModify reports whether mutating affordances should be offered for doc.
// Advisory UI gating only; the backend is the enforcement boundary.
func (d *Directory) CanModify(doc model.DocumentSummary) bool {
	return d.userID != "" && doc.OwnerID == d.userID
}
