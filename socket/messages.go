package socket

import "encoding/json"

// Frame types exchanged with the backend feed. Snapshots always carry the
// full current state of their topic, never deltas, so a dropped frame is
// recovered by the next one.
const (
	SubscribeType   = "SUBSCRIBE"   // client -> server: start a watch
	UnsubscribeType = "UNSUBSCRIBE" // client -> server: stop a watch
	HeartbeatType   = "HEARTBEAT"   // client -> server: presence keepalive

	ListSnapshotType     = "LIST_SNAPSHOT"     // full document list for the user
	SearchSnapshotType   = "SEARCH_SNAPSHOT"   // full result set for a query
	DocMetadataType      = "DOC_METADATA"      // current summary of one document
	DocGoneType          = "DOC_GONE"          // document deleted or inaccessible
	ContentStateType     = "CONTENT_STATE"     // collaborative content availability
	PresenceSnapshotType = "PRESENCE_SNAPSHOT" // everyone present on a document
)

// Watch topics.
const (
	TopicList     = "list"
	TopicSearch   = "search"
	TopicDocument = "document"
	TopicContent  = "content"
	TopicPresence = "presence"
)

// Content availability values carried in a CONTENT_STATE payload.
const (
	ContentStateNotCreated = "not_created"
	ContentStateReady      = "ready"
)

type Message struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	DocID   string          `json:"document_id,omitempty"`
	UserID  string          `json:"user_id,omitempty"`
	Query   string          `json:"query,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ContentStatePayload is the payload of a CONTENT_STATE frame.
type ContentStatePayload struct {
	State string `json:"state"`
}

// routing key for incoming frames; one key per active watch.
type subKey struct {
	topic string
	docID string
	query string
}

func routeKey(msg Message) (subKey, bool) {
	switch msg.Type {
	case ListSnapshotType:
		return subKey{topic: TopicList}, true
	case SearchSnapshotType:
		return subKey{topic: TopicSearch, query: msg.Query}, true
	case DocMetadataType, DocGoneType:
		return subKey{topic: TopicDocument, docID: msg.DocID}, true
	case ContentStateType:
		return subKey{topic: TopicContent, docID: msg.DocID}, true
	case PresenceSnapshotType:
		return subKey{topic: TopicPresence, docID: msg.DocID}, true
	}
	return subKey{}, false
}
