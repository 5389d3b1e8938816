package devserver

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"codraft/internal/document/model"
	"codraft/pkg/logger"
)

// Handlers is the REST side of the reference backend: the one-shot writes
// the client repository issues. Reads travel over the hub.
type Handlers struct {
	Store *Store
	Hub   *Hub
}

func NewHandlers(store *Store, hub *Hub) *Handlers {
	return &Handlers{Store: store, Hub: hub}
}

// Mux assembles the full backend surface behind the auth middleware.
func Mux(store *Store, hub *Hub) http.Handler {
	h := NewHandlers(store, hub)
	mux := http.NewServeMux()

	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(UserIDKey).(string)
		ServeWs(hub, w, r, userID)
	})
	mux.Handle("/ws", AuthMiddleware(wsHandler))

	mux.Handle("/api/documents/create", AuthMiddleware(http.HandlerFunc(h.CreateDocument)))
	mux.Handle("/api/documents/update", AuthMiddleware(http.HandlerFunc(h.RenameDocument)))
	mux.Handle("/api/documents/visibility", AuthMiddleware(http.HandlerFunc(h.ToggleVisibility)))
	mux.Handle("/api/documents/delete", AuthMiddleware(http.HandlerFunc(h.DeleteDocument)))
	mux.Handle("/api/documents/content/create", AuthMiddleware(http.HandlerFunc(h.CreateContent)))

	return mux
}

func (h *Handlers) CreateDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.Context().Value(UserIDKey).(string)

	var req model.CreateDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		http.Error(w, "Title must not be empty", http.StatusBadRequest)
		return
	}

	docID := generateDocID()
	if docID == "" {
		http.Error(w, "Failed to generate document ID", http.StatusInternalServerError)
		return
	}
	if err := h.Store.Create(docID, title, req.IsPublic, userID); err != nil {
		http.Error(w, "Failed to create document", http.StatusInternalServerError)
		return
	}
	h.Hub.RefreshLists()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(model.CreateDocResponse{DocID: docID})
}

func (h *Handlers) RenameDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}
	userID := r.Context().Value(UserIDKey).(string)

	var req model.RenameDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Title) == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	rows, err := h.Store.Rename(docID, strings.TrimSpace(req.Title), userID)
	if err != nil {
		http.Error(w, "Failed to rename document", http.StatusInternalServerError)
		return
	}
	if rows == 0 {
		http.Error(w, "Document not found or not owned by you", http.StatusForbidden)
		return
	}
	h.Hub.DocumentChanged(docID)
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) ToggleVisibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}
	userID := r.Context().Value(UserIDKey).(string)

	rows, err := h.Store.ToggleVisibility(docID, userID)
	if err != nil {
		http.Error(w, "Failed to update document", http.StatusInternalServerError)
		return
	}
	if rows == 0 {
		http.Error(w, "Document not found or not owned by you", http.StatusForbidden)
		return
	}
	h.Hub.DocumentChanged(docID)
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}
	userID := r.Context().Value(UserIDKey).(string)

	rows, err := h.Store.Delete(docID, userID)
	if err != nil {
		http.Error(w, "Failed to delete document", http.StatusInternalServerError)
		return
	}
	if rows == 0 {
		http.Error(w, "Document not found or not owned by you", http.StatusForbidden)
		return
	}
	logger.Sugar.Infof("Document %s deleted by %s", docID, userID)
	h.Hub.DocumentDeleted(docID)
	w.WriteHeader(http.StatusOK)
}

func (h *Handlers) CreateContent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	docID := r.URL.Query().Get("docId")
	if docID == "" {
		http.Error(w, "Missing docId parameter", http.StatusBadRequest)
		return
	}

	doc, err := h.Store.Get(docID)
	if err != nil {
		http.Error(w, "Failed to load document", http.StatusInternalServerError)
		return
	}
	if doc == nil {
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	}

	if err := h.Store.CreateContent(docID); err != nil {
		http.Error(w, "Failed to create content", http.StatusInternalServerError)
		return
	}
	h.Hub.ContentCreated(docID)
	w.WriteHeader(http.StatusOK)
}

func generateDocID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:])
}
