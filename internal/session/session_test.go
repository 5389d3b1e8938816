package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"codraft/internal/document/model"
	"codraft/internal/notify"
	"codraft/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.Init()
}

type fakeMeta struct {
	ch chan model.DocumentUpdate
}

func (f *fakeMeta) WatchDocument(ctx context.Context, docID string) <-chan model.DocumentUpdate {
	return f.ch
}

type fakeEngine struct {
	ch        chan ContentUpdate
	mu        sync.Mutex
	createErr error
	created   []string
}

func (f *fakeEngine) WatchContent(ctx context.Context, docID string) <-chan ContentUpdate {
	return f.ch
}

func (f *fakeEngine) CreateContent(ctx context.Context, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, docID)
	return f.createErr
}

func (f *fakeEngine) createdDocs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

type fakeRenamer struct {
	mu      sync.Mutex
	calls   []string
	err     error
	release chan struct{} // nil means resolve immediately
}

func (f *fakeRenamer) Rename(ctx context.Context, docID, title string) error {
	f.mu.Lock()
	f.calls = append(f.calls, title)
	release := f.release
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func (f *fakeRenamer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type harness struct {
	sess    *Session
	meta    *fakeMeta
	engine  *fakeEngine
	renamer *fakeRenamer
	rec     *notify.Recorder
	cancel  context.CancelFunc
}

func newHarness(t *testing.T, docID string) *harness {
	t.Helper()
	h := &harness{
		meta:    &fakeMeta{ch: make(chan model.DocumentUpdate, 4)},
		engine:  &fakeEngine{ch: make(chan ContentUpdate, 4)},
		renamer: &fakeRenamer{},
		rec:     &notify.Recorder{},
	}
	h.sess = New(docID, h.meta, h.engine, h.renamer, h.rec)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.sess.Start(ctx)
	t.Cleanup(cancel)
	return h
}

func (h *harness) pushDoc(title string) {
	h.meta.ch <- model.DocumentUpdate{Summary: &model.DocumentSummary{
		ID: h.sess.DocumentID(), Title: title, OwnerID: "user-1", LastModifiedAt: time.Now(),
	}}
}

func (h *harness) pushContent(state ContentState) {
	u := ContentUpdate{State: state}
	if state == ContentReady {
		u.Handle = &Handle{DocumentID: h.sess.DocumentID()}
	}
	h.engine.ch <- u
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want },
		time.Second, 5*time.Millisecond, "expected state %v", want)
}

func TestLoadingToEmptyToReady(t *testing.T) {
	h := newHarness(t, "d1")
	assert.Equal(t, StateLoading, h.sess.State())

	h.pushDoc("Roadmap")
	// Metadata alone is not enough; content is still unresolved.
	assert.Equal(t, StateLoading, h.sess.State())

	h.pushContent(ContentNotCreated)
	waitState(t, h.sess, StateEmpty)

	h.sess.CreateContent()
	require.Eventually(t, func() bool { return len(h.engine.createdDocs()) == 1 },
		time.Second, 5*time.Millisecond)

	// The engine acknowledges through its own watch.
	h.pushContent(ContentReady)
	waitState(t, h.sess, StateReady)
	require.NotNil(t, h.sess.Handle())
	assert.Equal(t, "d1", h.sess.Handle().DocumentID)
}

func TestLoadingToNotFoundIsTerminal(t *testing.T) {
	h := newHarness(t, "d1")
	h.meta.ch <- model.DocumentUpdate{}
	waitState(t, h.sess, StateNotFound)

	// A later snapshot cannot resurrect a not-found session.
	h.pushDoc("Ghost")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateNotFound, h.sess.State())
	assert.Nil(t, h.sess.Document())
}

func TestCreateContentIgnoredOutsideEmpty(t *testing.T) {
	h := newHarness(t, "d1")
	h.sess.CreateContent() // still Loading
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.engine.createdDocs())
}

func readySession(t *testing.T, title string) *harness {
	t.Helper()
	h := newHarness(t, "d1")
	h.pushDoc(title)
	h.pushContent(ContentReady)
	waitState(t, h.sess, StateReady)
	return h
}

func TestRenameUnchangedTitleIsSilentRevert(t *testing.T) {
	h := readySession(t, "Roadmap")

	h.sess.BeginTitleEdit()
	draft, editing := h.sess.Draft()
	require.True(t, editing)
	assert.Equal(t, "Roadmap", draft)

	h.sess.SetDraft("  Roadmap  ")
	h.sess.SubmitTitle()

	_, editing = h.sess.Draft()
	assert.False(t, editing, "unchanged submit returns to viewing immediately")
	assert.Zero(t, h.renamer.callCount(), "no backend write for an unchanged title")
	assert.Empty(t, h.rec.Successes())
}

func TestRenameEmptyDraftIsSilentRevert(t *testing.T) {
	h := readySession(t, "Roadmap")

	h.sess.BeginTitleEdit()
	h.sess.SetDraft("   ")
	h.sess.SubmitTitle()

	draft, editing := h.sess.Draft()
	assert.False(t, editing)
	assert.Equal(t, "Roadmap", draft)
	assert.Zero(t, h.renamer.callCount())
}

func TestRenameSuccessCommitsAndExitsEditing(t *testing.T) {
	h := readySession(t, "Roadmap")

	h.sess.BeginTitleEdit()
	h.sess.SetDraft("Roadmap Q3")
	h.sess.SubmitTitle()

	require.Eventually(t, func() bool {
		_, editing := h.sess.Draft()
		return !editing
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "Roadmap Q3", h.sess.Document().Title)
	assert.Equal(t, []string{"Title updated"}, h.rec.Successes())
	assert.False(t, h.sess.RenamePending())
}

func TestRenameFailureRevertsToCommittedTitle(t *testing.T) {
	h := readySession(t, "Roadmap")
	h.renamer.err = model.ErrWriteRejected

	h.sess.BeginTitleEdit()
	h.sess.SetDraft("Roadmap Q3")
	h.sess.SubmitTitle()

	require.Eventually(t, func() bool {
		_, editing := h.sess.Draft()
		return !editing
	}, time.Second, 5*time.Millisecond)

	draft, _ := h.sess.Draft()
	assert.Equal(t, "Roadmap", draft, "rejected draft must not linger")
	assert.Equal(t, "Roadmap", h.sess.Document().Title)
	assert.Equal(t, []string{"Failed to update title"}, h.rec.Failures())
}

func TestReentrantSubmitSuppressed(t *testing.T) {
	h := readySession(t, "Roadmap")
	h.renamer.release = make(chan struct{})

	h.sess.BeginTitleEdit()
	h.sess.SetDraft("Roadmap Q3")
	h.sess.SubmitTitle()
	require.Eventually(t, func() bool { return h.sess.RenamePending() },
		time.Second, 5*time.Millisecond)

	h.sess.SubmitTitle() // second submit while in flight
	h.sess.SubmitTitle()
	close(h.renamer.release)

	require.Eventually(t, func() bool { return !h.sess.RenamePending() },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.renamer.callCount(), "exactly one rename in flight per submit burst")
}

func TestStaleSnapshotDoesNotOverwritePendingRename(t *testing.T) {
	h := readySession(t, "Roadmap")
	h.renamer.release = make(chan struct{})

	h.sess.BeginTitleEdit()
	h.sess.SetDraft("Roadmap Q3")
	h.sess.SubmitTitle()
	require.Eventually(t, func() bool { return h.sess.RenamePending() },
		time.Second, 5*time.Millisecond)

	// A snapshot from before the rename resolves lands now.
	h.pushDoc("Roadmap")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, "Roadmap", h.sess.Document().Title)

	close(h.renamer.release)
	require.Eventually(t, func() bool { return h.sess.Document().Title == "Roadmap Q3" },
		time.Second, 5*time.Millisecond)
}

func TestCancelEditRevertsWithoutDispatch(t *testing.T) {
	h := readySession(t, "Roadmap")

	h.sess.BeginTitleEdit()
	h.sess.SetDraft("half-typed")
	h.sess.CancelTitleEdit()

	draft, editing := h.sess.Draft()
	assert.False(t, editing)
	assert.Equal(t, "Roadmap", draft)
	assert.Zero(t, h.renamer.callCount())
}

func TestRenameResolvingAfterCloseIsDiscarded(t *testing.T) {
	h := readySession(t, "Roadmap")
	h.renamer.release = make(chan struct{})

	h.sess.BeginTitleEdit()
	h.sess.SetDraft("Roadmap Q3")
	h.sess.SubmitTitle()
	require.Eventually(t, func() bool { return h.renamer.callCount() == 1 },
		time.Second, 5*time.Millisecond)

	h.sess.Close()
	close(h.renamer.release)

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, h.rec.Successes(), "a discarded session must not surface results")
	assert.Empty(t, h.rec.Failures())
}
