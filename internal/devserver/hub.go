package devserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"codraft/internal/document/model"
	"codraft/pkg/logger"
	"codraft/socket"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CheckOrigin allows connections from a local dev frontend
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	presenceTTL   = 45 * time.Second
	janitorPeriod = 15 * time.Second
)

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	done   chan struct{}   // closed on unregister; send stays open forever
	joined map[string]bool // documents this connection heartbeats on
}

// Hub fans feed frames out to connected clients. Each watch topic keeps the
// set of clients subscribed to it; mutations arriving through the REST
// handlers re-query the store and push fresh snapshots.
type Hub struct {
	store      *Store
	Register   chan *client
	Unregister chan *client

	mu           sync.Mutex
	conns        map[*client]bool
	docSubs      map[string]map[*client]bool
	contentSubs  map[string]map[*client]bool
	listSubs     map[*client]bool
	searchSubs   map[*client]string
	presence     map[string]map[string]model.PresenceEntry // docID -> userID -> entry
	presenceSubs map[string]map[*client]bool
}

func NewHub(store *Store) *Hub {
	return &Hub{
		store:        store,
		Register:     make(chan *client),
		Unregister:   make(chan *client),
		conns:        make(map[*client]bool),
		docSubs:      make(map[string]map[*client]bool),
		contentSubs:  make(map[string]map[*client]bool),
		listSubs:     make(map[*client]bool),
		searchSubs:   make(map[*client]string),
		presence:     make(map[string]map[string]model.PresenceEntry),
		presenceSubs: make(map[string]map[*client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case c := <-h.Register:
			h.mu.Lock()
			h.conns[c] = true
			h.mu.Unlock()

		case c := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.conns[c]; !ok {
				h.mu.Unlock()
				continue
			}
			delete(h.conns, c)
			delete(h.listSubs, c)
			delete(h.searchSubs, c)
			for _, subs := range h.docSubs {
				delete(subs, c)
			}
			for _, subs := range h.contentSubs {
				delete(subs, c)
			}
			for _, subs := range h.presenceSubs {
				delete(subs, c)
			}
			departed := make([]string, 0, len(c.joined))
			for docID := range c.joined {
				if room, ok := h.presence[docID]; ok {
					delete(room, c.userID)
					departed = append(departed, docID)
				}
			}
			// Never close c.send: a broadcast may have collected this client
			// as a target already and would panic sending on it. The done
			// channel stops the write pump instead.
			close(c.done)
			h.mu.Unlock()

			for _, docID := range departed {
				h.broadcastPresence(docID)
			}
		}
	}
}

// Janitor prunes presence entries whose heartbeats stopped without a clean
// disconnect.
func (h *Hub) Janitor() {
	ticker := time.NewTicker(janitorPeriod)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-presenceTTL)
		var stale []string

		h.mu.Lock()
		for docID, room := range h.presence {
			changed := false
			for userID, entry := range room {
				if entry.LastSeenAt.Before(cutoff) {
					delete(room, userID)
					changed = true
				}
			}
			if changed {
				stale = append(stale, docID)
			}
		}
		h.mu.Unlock()

		for _, docID := range stale {
			h.broadcastPresence(docID)
		}
	}
}

// ServeWs upgrades the request and registers the connection. userID comes
// from the auth middleware.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Sugar.Error(err)
		return
	}

	c := &client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		joined: make(map[string]bool),
	}
	hub.Register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Sugar.Errorf("error: %v", err)
			}
			break
		}

		var msg socket.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Sugar.Errorf("Error unmarshalling message: %v", err)
			continue
		}
		// Server-authoritative identity, never trusted from the frame.
		msg.UserID = c.userID

		switch msg.Type {
		case socket.SubscribeType:
			c.hub.subscribe(c, msg)
		case socket.UnsubscribeType:
			c.hub.unsubscribe(c, msg)
		case socket.HeartbeatType:
			c.hub.heartbeat(c, msg.DocID)
		default:
			logger.Sugar.Warnf("Unknown frame type %q from user %s", msg.Type, c.userID)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second) // Send ping every 30s
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			c.conn.WriteMessage(websocket.TextMessage, message)
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return // Connection is dead
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) subscribe(c *client, msg socket.Message) {
	switch msg.Topic {
	case socket.TopicList:
		h.mu.Lock()
		h.listSubs[c] = true
		h.mu.Unlock()
		h.pushList(c)

	case socket.TopicSearch:
		h.mu.Lock()
		h.searchSubs[c] = msg.Query
		h.mu.Unlock()
		h.pushSearch(c, msg.Query)

	case socket.TopicDocument:
		h.mu.Lock()
		if h.docSubs[msg.DocID] == nil {
			h.docSubs[msg.DocID] = make(map[*client]bool)
		}
		h.docSubs[msg.DocID][c] = true
		h.mu.Unlock()
		h.pushDocument(c, msg.DocID)

	case socket.TopicContent:
		h.mu.Lock()
		if h.contentSubs[msg.DocID] == nil {
			h.contentSubs[msg.DocID] = make(map[*client]bool)
		}
		h.contentSubs[msg.DocID][c] = true
		h.mu.Unlock()
		h.pushContentState(c, msg.DocID)

	case socket.TopicPresence:
		h.mu.Lock()
		if h.presenceSubs[msg.DocID] == nil {
			h.presenceSubs[msg.DocID] = make(map[*client]bool)
		}
		h.presenceSubs[msg.DocID][c] = true
		entries := h.presenceEntriesLocked(msg.DocID)
		h.mu.Unlock()
		h.sendFrame(c, presenceFrame(msg.DocID, entries))
	}
}

func (h *Hub) unsubscribe(c *client, msg socket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch msg.Topic {
	case socket.TopicList:
		delete(h.listSubs, c)
	case socket.TopicSearch:
		delete(h.searchSubs, c)
	case socket.TopicDocument:
		delete(h.docSubs[msg.DocID], c)
	case socket.TopicContent:
		delete(h.contentSubs[msg.DocID], c)
	case socket.TopicPresence:
		delete(h.presenceSubs[msg.DocID], c)
	}
}

func (h *Hub) heartbeat(c *client, docID string) {
	if docID == "" {
		return
	}
	h.mu.Lock()
	if h.presence[docID] == nil {
		h.presence[docID] = make(map[string]model.PresenceEntry)
	}
	h.presence[docID][c.userID] = model.PresenceEntry{UserID: c.userID, LastSeenAt: time.Now()}
	c.joined[docID] = true
	h.mu.Unlock()

	h.broadcastPresence(docID)
}

// DocumentChanged pushes a fresh metadata snapshot to the document's
// watchers and refreshes every list/search view.
func (h *Hub) DocumentChanged(docID string) {
	doc, err := h.store.Get(docID)
	if err != nil || doc == nil {
		return
	}
	payload, _ := json.Marshal(doc)
	frame := socket.Message{Type: socket.DocMetadataType, DocID: docID, Payload: payload}

	h.mu.Lock()
	targets := clientsOf(h.docSubs[docID])
	h.mu.Unlock()
	h.sendAll(targets, frame)

	h.RefreshLists()
}

// DocumentDeleted tells watchers the document is gone and drops its rooms.
func (h *Hub) DocumentDeleted(docID string) {
	frame := socket.Message{Type: socket.DocGoneType, DocID: docID}

	h.mu.Lock()
	targets := clientsOf(h.docSubs[docID])
	delete(h.docSubs, docID)
	delete(h.contentSubs, docID)
	delete(h.presence, docID)
	delete(h.presenceSubs, docID)
	h.mu.Unlock()
	h.sendAll(targets, frame)

	h.RefreshLists()
}

// ContentCreated flips the content state for the document's watchers.
func (h *Hub) ContentCreated(docID string) {
	payload, _ := json.Marshal(socket.ContentStatePayload{State: socket.ContentStateReady})
	frame := socket.Message{Type: socket.ContentStateType, DocID: docID, Payload: payload}

	h.mu.Lock()
	targets := clientsOf(h.contentSubs[docID])
	h.mu.Unlock()
	h.sendAll(targets, frame)
}

// RefreshLists re-queries and re-pushes every list and search view.
func (h *Hub) RefreshLists() {
	h.mu.Lock()
	listTargets := clientsOf(h.listSubs)
	searchTargets := make(map[*client]string, len(h.searchSubs))
	for c, q := range h.searchSubs {
		searchTargets[c] = q
	}
	h.mu.Unlock()

	for _, c := range listTargets {
		h.pushList(c)
	}
	for c, q := range searchTargets {
		h.pushSearch(c, q)
	}
}

func (h *Hub) pushList(c *client) {
	docs, err := h.store.ListForUser(c.userID)
	if err != nil {
		return
	}
	payload, _ := json.Marshal(docs)
	h.sendFrame(c, socket.Message{Type: socket.ListSnapshotType, Payload: payload})
}

func (h *Hub) pushSearch(c *client, query string) {
	docs, err := h.store.Search(c.userID, query)
	if err != nil {
		return
	}
	payload, _ := json.Marshal(docs)
	h.sendFrame(c, socket.Message{Type: socket.SearchSnapshotType, Query: query, Payload: payload})
}

func (h *Hub) pushDocument(c *client, docID string) {
	doc, err := h.store.Get(docID)
	if err != nil {
		return
	}
	if doc == nil {
		h.sendFrame(c, socket.Message{Type: socket.DocGoneType, DocID: docID})
		return
	}
	payload, _ := json.Marshal(doc)
	h.sendFrame(c, socket.Message{Type: socket.DocMetadataType, DocID: docID, Payload: payload})
}

func (h *Hub) pushContentState(c *client, docID string) {
	exists, err := h.store.HasContent(docID)
	if err != nil {
		return
	}
	state := socket.ContentStateNotCreated
	if exists {
		state = socket.ContentStateReady
	}
	payload, _ := json.Marshal(socket.ContentStatePayload{State: state})
	h.sendFrame(c, socket.Message{Type: socket.ContentStateType, DocID: docID, Payload: payload})
}

func (h *Hub) broadcastPresence(docID string) {
	h.mu.Lock()
	entries := h.presenceEntriesLocked(docID)
	targets := clientsOf(h.presenceSubs[docID])
	h.mu.Unlock()

	frame := presenceFrame(docID, entries)
	h.sendAll(targets, frame)
}

func (h *Hub) presenceEntriesLocked(docID string) []model.PresenceEntry {
	entries := make([]model.PresenceEntry, 0, len(h.presence[docID]))
	for _, entry := range h.presence[docID] {
		entries = append(entries, entry)
	}
	return entries
}

func presenceFrame(docID string, entries []model.PresenceEntry) socket.Message {
	payload, _ := json.Marshal(entries)
	return socket.Message{Type: socket.PresenceSnapshotType, DocID: docID, Payload: payload}
}

func clientsOf(set map[*client]bool) []*client {
	out := make([]*client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (h *Hub) sendAll(targets []*client, frame socket.Message) {
	for _, c := range targets {
		h.sendFrame(c, frame)
	}
}

func (h *Hub) sendFrame(c *client, frame socket.Message) {
	raw, err := json.Marshal(frame)
	if err != nil {
		logger.Sugar.Errorf("Error marshalling %s frame: %v", frame.Type, err)
		return
	}
	select {
	case c.send <- raw:
	case <-c.done:
		// The client unregistered after being collected as a target.
	default:
		// If the send buffer is full, the client is lagging; the pumps will
		// reap it on the next dead ping.
		logger.Sugar.Warnf("Client %s's send buffer is full, dropping frame.", c.userID)
	}
}
