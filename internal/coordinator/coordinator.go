package coordinator

import (
	"context"
	"sync"
	"time"

	"codraft/internal/notify"
	"codraft/internal/presence"
	"codraft/internal/session"
	"codraft/pkg/logger"
)

// Deps are the collaborators a coordinator hands to each per-document
// instance it constructs.
type Deps struct {
	Metadata          session.MetadataWatcher
	Engine            session.ContentEngine
	Renamer           session.Renamer
	Presence          presence.Feed
	Notifier          notify.Notifier
	UserID            string
	HeartbeatInterval time.Duration
}

// Coordinator owns the selection state: which document, if any, is open.
// Changing the selection is identity replacement, never patching — the old
// session and presence view are destroyed and fresh ones constructed, even
// when re-opening the same document.
type Coordinator struct {
	deps Deps
	ctx  context.Context

	mu         sync.Mutex
	selectedID string
	generation uint64
	sess       *session.Session
	pres       *presence.View
	cancel     context.CancelFunc
}

func New(deps Deps) *Coordinator {
	if deps.HeartbeatInterval <= 0 {
		deps.HeartbeatInterval = 10 * time.Second
	}
	return &Coordinator{deps: deps}
}

// Start binds the coordinator's lifetime. Nothing is selected initially.
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx = ctx
}

// Select opens the document with the given id. Any previously open session
// is torn down first, including its title-edit draft and in-flight requests;
// the new session always starts from Loading.
func (c *Coordinator) Select(docID string) {
	if docID == "" {
		c.ClearSelection()
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.teardownLocked()
	c.generation++
	c.selectedID = docID

	sctx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel

	c.sess = session.New(docID, c.deps.Metadata, c.deps.Engine, c.deps.Renamer, c.deps.Notifier)
	c.sess.Start(sctx)
	c.pres = presence.Observe(sctx, c.deps.Presence, docID, c.deps.UserID, c.deps.HeartbeatInterval)

	logger.Sugar.Infof("Opened document %s (generation %d)", docID, c.generation)
}

// ClearSelection closes whatever is open. The caller renders the
// "no document open" placeholder from the resulting empty snapshot.
func (c *Coordinator) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// DocumentDeleted propagates a successful delete. Selection clears only if
// the deleted document is the one open, and at most once.
func (c *Coordinator) DocumentDeleted(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selectedID != docID {
		return
	}
	c.teardownLocked()
	logger.Sugar.Infof("Selection cleared: document %s deleted", docID)
}

func (c *Coordinator) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.sess != nil {
		c.sess.Close()
		c.sess = nil
	}
	c.pres = nil
	c.selectedID = ""
}

// Selected reports the open document id, if any.
func (c *Coordinator) Selected() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedID, c.selectedID != ""
}

// Session returns the live session for the open document, or nil.
func (c *Coordinator) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// Presence returns the live presence view for the open document, or nil.
func (c *Coordinator) Presence() *presence.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pres
}

// Generation counts selection replacements; each Select constructs new
// instances under a new generation.
func (c *Coordinator) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}
