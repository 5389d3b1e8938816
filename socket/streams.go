package socket

import (
	"context"
	"encoding/json"
	"time"

	"codraft/internal/document/model"
	"codraft/internal/session"
	"codraft/pkg/logger"
)

// Typed watch adapters over the raw feed. Each one owns a subscription for
// the lifetime of its context and closes its output channel on teardown.

// WatchList streams full snapshots of the user's document list.
func (f *Feed) WatchList(ctx context.Context) <-chan []model.DocumentSummary {
	return f.watchDocs(ctx, TopicList, "")
}

// WatchSearch streams full result sets for one query. The query is fixed for
// the watch's lifetime; a changed query is a new watch.
func (f *Feed) WatchSearch(ctx context.Context, query string) <-chan []model.DocumentSummary {
	return f.watchDocs(ctx, TopicSearch, query)
}

func (f *Feed) watchDocs(ctx context.Context, topic, query string) <-chan []model.DocumentSummary {
	sub := f.Subscribe(topic, "", query)
	out := make(chan []model.DocumentSummary, 1)
	go func() {
		defer close(out)
		defer sub.Cancel()
		for {
			select {
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				var docs []model.DocumentSummary
				if err := json.Unmarshal(msg.Payload, &docs); err != nil {
					logger.Sugar.Warnf("Bad %s payload: %v", msg.Type, err)
					continue
				}
				select {
				case out <- docs:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// WatchDocument streams metadata updates for one document. A DOC_GONE frame
// becomes an absent update.
func (f *Feed) WatchDocument(ctx context.Context, docID string) <-chan model.DocumentUpdate {
	sub := f.Subscribe(TopicDocument, docID, "")
	out := make(chan model.DocumentUpdate, 1)
	go func() {
		defer close(out)
		defer sub.Cancel()
		for {
			select {
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				var update model.DocumentUpdate
				if msg.Type == DocMetadataType {
					var summary model.DocumentSummary
					if err := json.Unmarshal(msg.Payload, &summary); err != nil {
						logger.Sugar.Warnf("Bad metadata payload for %s: %v", docID, err)
						continue
					}
					update.Summary = &summary
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// WatchPresence streams presence snapshots for one document and keeps the
// local user's heartbeat going at the given interval while the watch lives.
func (f *Feed) WatchPresence(ctx context.Context, docID, userID string, interval time.Duration) <-chan []model.PresenceEntry {
	sub := f.Subscribe(TopicPresence, docID, "")
	out := make(chan []model.PresenceEntry, 1)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		f.Send(Message{Type: HeartbeatType, DocID: docID, UserID: userID})
		for {
			select {
			case <-ticker.C:
				f.Send(Message{Type: HeartbeatType, DocID: docID, UserID: userID})
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		defer close(out)
		defer sub.Cancel()
		for {
			select {
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				var entries []model.PresenceEntry
				if err := json.Unmarshal(msg.Payload, &entries); err != nil {
					logger.Sugar.Warnf("Bad presence payload for %s: %v", docID, err)
					continue
				}
				select {
				case out <- entries:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// ContentCreator is the write half of the content engine; the feed supplies
// the watch half.
type ContentCreator interface {
	CreateContent(ctx context.Context, docID string) error
}

// ContentEngine adapts the feed plus the repository into the sync-engine
// contract the session consumes.
type ContentEngine struct {
	Feed    *Feed
	Creator ContentCreator
}

func (e *ContentEngine) CreateContent(ctx context.Context, docID string) error {
	return e.Creator.CreateContent(ctx, docID)
}

func (e *ContentEngine) WatchContent(ctx context.Context, docID string) <-chan session.ContentUpdate {
	sub := e.Feed.Subscribe(TopicContent, docID, "")
	out := make(chan session.ContentUpdate, 1)
	go func() {
		defer close(out)
		defer sub.Cancel()
		for {
			select {
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				var payload ContentStatePayload
				if err := json.Unmarshal(msg.Payload, &payload); err != nil {
					logger.Sugar.Warnf("Bad content-state payload for %s: %v", docID, err)
					continue
				}
				update := session.ContentUpdate{State: session.ContentNotCreated}
				if payload.State == ContentStateReady {
					update.State = session.ContentReady
					update.Handle = &session.Handle{DocumentID: docID}
				}
				select {
				case out <- update:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
