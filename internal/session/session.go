package session

import (
	"context"
	"strings"
	"sync"

	"codraft/internal/document/model"
	"codraft/internal/notify"
	"codraft/pkg/logger"
)

// State is the resolved condition of one open document.
type State int

const (
	StateLoading State = iota
	StateNotFound
	StateEmpty
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateNotFound:
		return "not-found"
	case StateEmpty:
		return "empty"
	case StateReady:
		return "ready"
	}
	return "unknown"
}

// MetadataWatcher is the metadata-store subscription at its interface
// boundary. Updates arrive in order; a nil summary means absent.
type MetadataWatcher interface {
	WatchDocument(ctx context.Context, docID string) <-chan model.DocumentUpdate
}

// Renamer issues the one-shot rename write.
type Renamer interface {
	Rename(ctx context.Context, docID, title string) error
}

type renameResult struct {
	title string
	err   error
}

// Session is the state machine bound to one open document. It reconciles the
// metadata subscription and the content watch into a single state, and owns
// the title-edit draft layered on top of Ready.
//
// A Session is bound to its document id for life. Opening a different
// document means cancelling this one and constructing a fresh instance;
// nothing here survives a selection change.
type Session struct {
	docID  string
	meta   MetadataWatcher
	engine ContentEngine
	ren    Renamer
	notif  notify.Notifier

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	doc           *model.DocumentSummary
	notFound      bool // sticky: only selecting another document recovers
	content       ContentState
	handle        *Handle
	editing       bool
	draft         string
	renamePending bool

	renameDone chan renameResult
}

func New(docID string, meta MetadataWatcher, engine ContentEngine, ren Renamer, notif notify.Notifier) *Session {
	return &Session{
		docID:      docID,
		meta:       meta,
		engine:     engine,
		ren:        ren,
		notif:      notif,
		content:    ContentLoading,
		renameDone: make(chan renameResult, 1),
	}
}

// Start begins consuming the metadata and content watches. The session stops
// when ctx is cancelled; resolutions of requests issued before cancellation
// are discarded instead of applied.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	metaCh := s.meta.WatchDocument(s.ctx, s.docID)
	contentCh := s.engine.WatchContent(s.ctx, s.docID)
	go s.run(metaCh, contentCh)
}

// Close discards the session, including any in-progress title edit.
func (s *Session) Close() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Session) run(metaCh <-chan model.DocumentUpdate, contentCh <-chan ContentUpdate) {
	for {
		select {
		case u, ok := <-metaCh:
			if !ok {
				metaCh = nil
				continue
			}
			s.applyMetadata(u)
		case u, ok := <-contentCh:
			if !ok {
				contentCh = nil
				continue
			}
			s.applyContent(u)
		case res := <-s.renameDone:
			// Checked against the session's own lifetime: a resolution
			// arriving after destruction must not mutate a stale instance.
			if s.ctx.Err() != nil {
				return
			}
			s.applyRenameResult(res)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) applyMetadata(u model.DocumentUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.notFound {
		return
	}
	if u.Summary == nil {
		s.notFound = true
		s.doc = nil
		logger.Sugar.Infof("Document %s resolved absent", s.docID)
		return
	}

	next := *u.Summary
	// A pending rename must not be visibly overwritten by a snapshot that
	// predates its resolution; the title settles when the write does.
	if s.renamePending && s.doc != nil {
		next.Title = s.doc.Title
	}
	s.doc = &next
}

func (s *Session) applyContent(u ContentUpdate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = u.State
	s.handle = u.Handle
}

func (s *Session) applyRenameResult(res renameResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.renamePending = false
	s.editing = false
	if res.err != nil {
		if s.doc != nil {
			s.draft = s.doc.Title
		}
		s.notif.Failure("Failed to update title")
		return
	}
	if s.doc != nil {
		s.doc.Title = res.title
	}
	s.draft = res.title
	s.notif.Success("Title updated")
}

// DocumentID returns the id this session is bound to.
func (s *Session) DocumentID() string {
	return s.docID
}

// State resolves the current machine state from both streams. NotFound is
// terminal for this instance.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.notFound:
		return StateNotFound
	case s.doc == nil || s.content == ContentLoading:
		return StateLoading
	case s.content == ContentNotCreated:
		return StateEmpty
	default:
		return StateReady
	}
}

// Document returns a copy of the last committed metadata, or nil while
// loading or absent.
func (s *Session) Document() *model.DocumentSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc == nil {
		return nil
	}
	doc := *s.doc
	return &doc
}

// Handle returns the editor handle once content is available.
func (s *Session) Handle() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// CreateContent asks the sync engine to create the collaborative payload.
// This is the only user-triggered way out of Empty; the transition itself
// arrives through the content watch.
func (s *Session) CreateContent() {
	s.mu.Lock()
	if s.stateLocked() != StateEmpty {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	go func() {
		if err := s.engine.CreateContent(s.ctx, s.docID); err != nil {
			if s.ctx.Err() != nil {
				return
			}
			logger.Sugar.Warnf("Content create for %s failed: %v", s.docID, err)
			s.notif.Failure("Failed to create document content")
		}
	}()
}

// BeginTitleEdit enters title editing, seeding the draft from the committed
// title. Only meaningful in Ready.
func (s *Session) BeginTitleEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateLocked() != StateReady || s.editing {
		return
	}
	s.editing = true
	s.draft = s.doc.Title
}

// SetDraft replaces the in-progress draft text.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editing {
		s.draft = text
	}
}

// Draft reports the draft text and whether editing is active.
func (s *Session) Draft() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft, s.editing
}

// RenamePending reports whether a rename write is in flight.
func (s *Session) RenamePending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renamePending
}

// CancelTitleEdit reverts the draft and exits editing without a write.
func (s *Session) CancelTitleEdit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.editing || s.renamePending {
		return
	}
	s.editing = false
	if s.doc != nil {
		s.draft = s.doc.Title
	}
}

// SubmitTitle commits the draft. An empty or unchanged trimmed draft reverts
// silently without a write. Otherwise the rename is dispatched and editing
// exits when the write resolves, success or failure. A submit while one is
// already in flight is ignored.
func (s *Session) SubmitTitle() {
	s.mu.Lock()
	if !s.editing || s.renamePending || s.doc == nil {
		s.mu.Unlock()
		return
	}

	trimmed := strings.TrimSpace(s.draft)
	committed := s.doc.Title
	if trimmed == "" || trimmed == committed {
		s.editing = false
		s.draft = committed
		s.mu.Unlock()
		return
	}

	s.renamePending = true
	s.mu.Unlock()

	go func() {
		err := s.ren.Rename(s.ctx, s.docID, trimmed)
		select {
		case s.renameDone <- renameResult{title: trimmed, err: err}:
		case <-s.ctx.Done():
			// The session was destroyed while the write was in flight;
			// the resolution must not touch a discarded instance.
		}
	}()
}
