package socket

import (
	"context"
	"sync"
	"time"

	"codraft/pkg/logger"

	"github.com/gorilla/websocket"
)

// Feed is one websocket connection to the backend carrying every
// subscription the client holds. Incoming frames are routed to the
// subscriptions registered for their topic; outgoing frames (subscribe,
// unsubscribe, heartbeat) go through a single write pump.
type Feed struct {
	conn *websocket.Conn
	send chan Message

	mu   sync.Mutex
	subs map[subKey]map[*Subscription]bool

	closed    chan struct{}
	closeOnce sync.Once
}

// Subscription is one active watch. C delivers frames until the
// subscription is cancelled or the feed dies, then closes.
type Subscription struct {
	feed *Feed
	key  subKey
	C    chan Message
	once sync.Once
}

// Dial connects to the backend feed. The token travels in the query string
// because the browser WebSocket API the backend was built for cannot set
// headers.
func Dial(ctx context.Context, wsURL, token string) (*Feed, error) {
	target := wsURL
	if token != "" {
		target += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}

	f := &Feed{
		conn:   conn,
		send:   make(chan Message, 64),
		subs:   make(map[subKey]map[*Subscription]bool),
		closed: make(chan struct{}),
	}
	go f.readPump()
	go f.writePump()
	return f, nil
}

// Subscribe registers a watch and asks the server to start pushing it. The
// returned channel is buffered; a lagging consumer loses intermediate
// snapshots, not the subscription.
func (f *Feed) Subscribe(topic, docID, query string) *Subscription {
	sub := &Subscription{
		feed: f,
		key:  subKey{topic: topic, docID: docID, query: query},
		C:    make(chan Message, 16),
	}

	f.mu.Lock()
	if f.subs[sub.key] == nil {
		f.subs[sub.key] = make(map[*Subscription]bool)
	}
	f.subs[sub.key][sub] = true
	f.mu.Unlock()

	f.Send(Message{Type: SubscribeType, Topic: topic, DocID: docID, Query: query})
	return sub
}

// Cancel stops the watch and closes C. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.feed.mu.Lock()
		if set, ok := s.feed.subs[s.key]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.feed.subs, s.key)
			}
		}
		s.feed.mu.Unlock()
		close(s.C)
		s.feed.Send(Message{Type: UnsubscribeType, Topic: s.key.topic, DocID: s.key.docID, Query: s.key.query})
	})
}

// Send enqueues a frame for the write pump. Frames enqueued after the feed
// has died are discarded.
func (f *Feed) Send(msg Message) {
	select {
	case f.send <- msg:
	case <-f.closed:
	default:
		logger.Sugar.Warn("Feed send buffer full, dropping outgoing frame")
	}
}

// Close tears the connection down. All subscription channels close shortly
// after.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		close(f.closed)
		f.conn.Close()
	})
}

func (f *Feed) readPump() {
	defer func() {
		f.Close()
		// Closing subscriber channels tells every watcher the feed is gone.
		f.mu.Lock()
		for key, set := range f.subs {
			for sub := range set {
				sub.once.Do(func() { close(sub.C) })
			}
			delete(f.subs, key)
		}
		f.mu.Unlock()
	}()

	for {
		var msg Message
		if err := f.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Sugar.Errorf("Feed read error: %v", err)
			}
			return
		}

		key, ok := routeKey(msg)
		if !ok {
			logger.Sugar.Warnf("Unknown frame type %q from feed", msg.Type)
			continue
		}

		f.mu.Lock()
		targets := make([]*Subscription, 0, len(f.subs[key]))
		for sub := range f.subs[key] {
			targets = append(targets, sub)
		}
		f.mu.Unlock()

		for _, sub := range targets {
			select {
			case sub.C <- msg:
			default:
				// Snapshot semantics make dropping safe: the next frame
				// carries the full state again.
				logger.Sugar.Debugf("Subscriber for %s lagging, dropping frame", key.topic)
			}
		}
	}
}

func (f *Feed) writePump() {
	ticker := time.NewTicker(30 * time.Second) // Send ping every 30s
	defer ticker.Stop()

	for {
		select {
		case msg := <-f.send:
			if err := f.conn.WriteJSON(msg); err != nil {
				logger.Sugar.Errorf("Feed write error: %v", err)
				f.Close()
				return
			}
		case <-ticker.C:
			if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.Close()
				return // Connection is dead
			}
		case <-f.closed:
			return
		}
	}
}
