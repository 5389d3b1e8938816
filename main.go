package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codraft/config"
	"codraft/internal/coordinator"
	"codraft/internal/directory"
	"codraft/internal/document/repository"
	"codraft/internal/identity"
	"codraft/internal/notify"
	"codraft/internal/session"
	"codraft/pkg/logger"
	"codraft/socket"
)

// Headless collaboration client: keeps a document session alive against the
// backend, mirroring what the browser client does minus the rendering.
// Useful for soak-testing a backend and for driving the session core from
// scripts.
func main() {
	logger.Init()
	defer logger.Log.Sync()

	// 1. Configuration and identity come first; presence and ownership
	// checks mean nothing without a user id.
	cfg := config.Load()
	ident, err := identity.FromToken(cfg.AccessToken)
	if err != nil {
		logger.Sugar.Fatalf("Bad access token: %v", err)
	}
	userID, authed := ident.CurrentUserID()
	if !authed {
		logger.Sugar.Warn("No access token configured; running unauthenticated, presence disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. One repository for writes, one feed connection for every watch.
	repo := repository.NewDocumentRepository(cfg.BackendURL, cfg.AccessToken)
	feed, err := socket.Dial(ctx, cfg.WSURL, cfg.AccessToken)
	if err != nil {
		logger.Sugar.Fatalf("Failed to connect to feed at %s: %v", cfg.WSURL, err)
	}
	defer feed.Close()

	notifier := &notify.LogNotifier{Log: logger.Sugar}
	engine := &socket.ContentEngine{Feed: feed, Creator: repo}

	// 3. The directory owns the list/search views and the write intents;
	// the coordinator owns which document is open.
	dir := directory.New(repo, feed, notifier, userID)
	coord := coordinator.New(coordinator.Deps{
		Metadata:          feed,
		Engine:            engine,
		Renamer:           repo,
		Presence:          feed,
		Notifier:          notifier,
		UserID:            userID,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})

	dir.Start(ctx)
	coord.Start(ctx)
	// A successful delete of the open document must clear the selection.
	dir.OnDeleted = coord.DocumentDeleted

	if docID := strings.TrimSpace(os.Getenv("OPEN_DOCUMENT_ID")); docID != "" {
		coord.Select(docID)
	}

	logger.Sugar.Infof("Client connected to %s", cfg.BackendURL)
	watchLoop(ctx, dir, coord)
}

// watchLoop logs the observable session state until shutdown.
func watchLoop(ctx context.Context, dir *directory.Directory, coord *coordinator.Coordinator) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var lastState session.State = -1
	var lastCount = -1

	for {
		select {
		case <-ticker.C:
			docs, view, loaded := dir.Displayed()
			if loaded && view == directory.ViewList {
				logger.Sugar.Debugf("Directory: %d documents", len(docs))
			}

			sess := coord.Session()
			if sess == nil {
				continue
			}
			if state := sess.State(); state != lastState {
				lastState = state
				logger.Sugar.Infof("Document %s: %s", sess.DocumentID(), state)
			}
			if pres := coord.Presence(); pres != nil && pres.Visible() {
				if count := pres.OnlineCount(); count != lastCount {
					lastCount = count
					logger.Sugar.Infof("Document %s: %d online", sess.DocumentID(), count)
				}
			}
		case <-ctx.Done():
			logger.Sugar.Info("Shutting down")
			return
		}
	}
}
