package devserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codraft/internal/document/model"
	"codraft/socket"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper function to read frames from a WebSocket connection with a timeout.
func readFrame(t *testing.T, conn *websocket.Conn) socket.Message {
	t.Helper()
	var msg socket.Message
	// Set a deadline to avoid tests hanging forever.
	conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	_, p, err := conn.ReadMessage()
	require.NoError(t, err, "Failed to read frame from WebSocket")
	err = json.Unmarshal(p, &msg)
	require.NoError(t, err, "Failed to unmarshal frame JSON")
	return msg
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg socket.Message) {
	t.Helper()
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func TestHubIntegration(t *testing.T) {
	// 1. Setup Mock DB and Hub
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hub := NewHub(NewStore(db))
	go hub.Run()

	// 2. Setup Test HTTP Server. The user id comes straight from the query
	// string here; auth middleware has its own tests.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		ServeWs(hub, w, r, userID)
	}))
	defer server.Close()

	wsBase := "ws" + strings.TrimPrefix(server.URL, "http")

	// --- Test Scenario ---

	docID := "doc-1"
	now := time.Now()

	// 3. Client 1 subscribes to the document's metadata.
	mock.ExpectQuery("SELECT id, title, is_public, owner_id, updated_at FROM documents WHERE id = \\$1").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "is_public", "owner_id", "updated_at"}).
			AddRow(docID, "Roadmap", false, "user1", now))

	conn1, _, err := websocket.DefaultDialer.Dial(wsBase+"/ws?user_id=user1", nil)
	require.NoError(t, err, "Client 1 failed to connect")
	defer conn1.Close()

	writeFrame(t, conn1, socket.Message{Type: socket.SubscribeType, Topic: socket.TopicDocument, DocID: docID})

	metaMsg := readFrame(t, conn1)
	assert.Equal(t, socket.DocMetadataType, metaMsg.Type)
	assert.Equal(t, docID, metaMsg.DocID)
	var summary model.DocumentSummary
	require.NoError(t, json.Unmarshal(metaMsg.Payload, &summary))
	assert.Equal(t, "Roadmap", summary.Title)
	assert.Equal(t, "user1", summary.OwnerID)

	// 4. Client 1 watches presence and announces itself.
	writeFrame(t, conn1, socket.Message{Type: socket.SubscribeType, Topic: socket.TopicPresence, DocID: docID})
	emptySnapshot := readFrame(t, conn1)
	assert.Equal(t, socket.PresenceSnapshotType, emptySnapshot.Type)
	var entries []model.PresenceEntry
	require.NoError(t, json.Unmarshal(emptySnapshot.Payload, &entries))
	assert.Empty(t, entries, "no one is present before the first heartbeat")

	writeFrame(t, conn1, socket.Message{Type: socket.HeartbeatType, DocID: docID})
	selfSnapshot := readFrame(t, conn1)
	require.NoError(t, json.Unmarshal(selfSnapshot.Payload, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "user1", entries[0].UserID)

	// 5. Client 2 joins the same document.
	conn2, _, err := websocket.DefaultDialer.Dial(wsBase+"/ws?user_id=user2", nil)
	require.NoError(t, err, "Client 2 failed to connect")
	defer conn2.Close()

	writeFrame(t, conn2, socket.Message{Type: socket.HeartbeatType, DocID: docID})

	// Client 1 sees the new arrival.
	joinedSnapshot := readFrame(t, conn1)
	assert.Equal(t, socket.PresenceSnapshotType, joinedSnapshot.Type)
	require.NoError(t, json.Unmarshal(joinedSnapshot.Payload, &entries))
	require.Len(t, entries, 2)
	userIDs := []string{entries[0].UserID, entries[1].UserID}
	assert.Contains(t, userIDs, "user1")
	assert.Contains(t, userIDs, "user2")

	// 6. Client 2 disconnects; client 1 sees them leave.
	conn2.Close()
	leftSnapshot := readFrame(t, conn1)
	require.NoError(t, json.Unmarshal(leftSnapshot.Payload, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "user1", entries[0].UserID)

	// Ensure all mock expectations were met.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newTestClient(hub *Hub, userID string) *client {
	return &client{
		hub:    hub,
		userID: userID,
		send:   make(chan []byte, 1),
		done:   make(chan struct{}),
		joined: make(map[string]bool),
	}
}

func TestBroadcastRacingDisconnectDoesNotPanic(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hub := NewHub(NewStore(db))
	go hub.Run()

	sender := newTestClient(hub, "sender")
	hub.Register <- sender

	// A watcher unregistering while a presence broadcast is fanning out must
	// not kill the process; the broadcast collects its targets before the
	// unregister can remove them.
	for i := 0; i < 100; i++ {
		watcher := newTestClient(hub, "watcher")
		hub.Register <- watcher
		hub.subscribe(watcher, socket.Message{Type: socket.SubscribeType, Topic: socket.TopicPresence, DocID: "d1"})

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.Unregister <- watcher
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				hub.heartbeat(sender, "d1")
			}
		}()
		wg.Wait()
	}
}

func TestHubContentLifecycle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	hub := NewHub(NewStore(db))
	go hub.Run()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r, r.URL.Query().Get("user_id"))
	}))
	defer server.Close()

	docID := "doc-1"
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM document_content WHERE document_id = \\$1\\)").
		WithArgs(docID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws?user_id=user1", nil)
	require.NoError(t, err)
	defer conn.Close()

	// The watch starts with the stored state: nothing created yet.
	writeFrame(t, conn, socket.Message{Type: socket.SubscribeType, Topic: socket.TopicContent, DocID: docID})
	frame := readFrame(t, conn)
	assert.Equal(t, socket.ContentStateType, frame.Type)
	var payload socket.ContentStatePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, socket.ContentStateNotCreated, payload.State)

	// The REST handler reports creation; watchers flip to ready.
	hub.ContentCreated(docID)
	frame = readFrame(t, conn)
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.Equal(t, socket.ContentStateReady, payload.State)

	assert.NoError(t, mock.ExpectationsWereMet())
}
