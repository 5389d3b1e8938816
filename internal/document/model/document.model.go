package model

import "time"

// DocumentSummary is the metadata view of a document as the backend reports
// it. ID is immutable; Title and IsPublic change only through explicit
// intents; LastModifiedAt is server-assigned and advances monotonically.
type DocumentSummary struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	IsPublic       bool      `json:"is_public"`
	OwnerID        string    `json:"owner_id"`
	LastModifiedAt time.Time `json:"last_modified_at"`
}

// DocumentUpdate is one tick of a metadata subscription. A nil Summary means
// the document is absent: deleted, or not visible to the current user. The
// backend does not distinguish the two cases.
type DocumentUpdate struct {
	Summary *DocumentSummary
}

// PresenceEntry is one user currently present on a document. Entries are
// ephemeral; the feed resends the full set on every change.
type PresenceEntry struct {
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen"`
	Name       string    `json:"name,omitempty"`
	Avatar     string    `json:"avatar,omitempty"`
}

type CreateDocRequest struct {
	Title    string `json:"title"`
	IsPublic bool   `json:"is_public"`
}

type CreateDocResponse struct {
	DocID string `json:"document_id"`
}

type RenameDocRequest struct {
	Title string `json:"title"`
}
