package devserver

import (
	"database/sql"

	"codraft/internal/document/model"
	"codraft/pkg/logger"
)

// Store is the postgres persistence for the reference backend. Owner checks
// live in the WHERE clauses: a mutation by a non-owner affects zero rows and
// the handler turns that into a rejection.
type Store struct {
	DB *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) Create(id, title string, isPublic bool, ownerID string) error {
	_, err := s.DB.Exec(`INSERT INTO documents (id, title, is_public, owner_id, updated_at) VALUES ($1, $2, $3, $4, NOW())`,
		id, title, isPublic, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to create document: %v", err)
	}
	return err
}

// Get returns the document summary, or nil when it does not exist.
func (s *Store) Get(docID string) (*model.DocumentSummary, error) {
	var doc model.DocumentSummary
	err := s.DB.QueryRow(`SELECT id, title, is_public, owner_id, updated_at FROM documents WHERE id = $1`, docID).
		Scan(&doc.ID, &doc.Title, &doc.IsPublic, &doc.OwnerID, &doc.LastModifiedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		logger.Sugar.Errorf("Failed to get document %s: %v", docID, err)
		return nil, err
	}
	return &doc, nil
}

// ListForUser returns the documents reachable by userID: their own plus
// public ones, most recently modified first.
func (s *Store) ListForUser(userID string) ([]model.DocumentSummary, error) {
	rows, err := s.DB.Query(`SELECT id, title, is_public, owner_id, updated_at FROM documents WHERE owner_id = $1 OR is_public ORDER BY updated_at DESC`, userID)
	if err != nil {
		logger.Sugar.Errorf("Failed to list documents for user %s: %v", userID, err)
		return nil, err
	}
	return scanSummaries(rows)
}

// Search runs the backend-side title search over the same reachable set.
func (s *Store) Search(userID, query string) ([]model.DocumentSummary, error) {
	rows, err := s.DB.Query(`SELECT id, title, is_public, owner_id, updated_at FROM documents WHERE (owner_id = $1 OR is_public) AND title ILIKE '%' || $2 || '%' ORDER BY updated_at DESC`,
		userID, query)
	if err != nil {
		logger.Sugar.Errorf("Failed to search documents for user %s: %v", userID, err)
		return nil, err
	}
	return scanSummaries(rows)
}

func scanSummaries(rows *sql.Rows) ([]model.DocumentSummary, error) {
	defer rows.Close()
	docs := []model.DocumentSummary{}
	for rows.Next() {
		var doc model.DocumentSummary
		if err := rows.Scan(&doc.ID, &doc.Title, &doc.IsPublic, &doc.OwnerID, &doc.LastModifiedAt); err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *Store) Rename(docID, title, ownerID string) (int64, error) {
	result, err := s.DB.Exec(`UPDATE documents SET title = $1, updated_at = NOW() WHERE id = $2 AND owner_id = $3`, title, docID, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to rename doc %s: %v", docID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) ToggleVisibility(docID, ownerID string) (int64, error) {
	result, err := s.DB.Exec(`UPDATE documents SET is_public = NOT is_public, updated_at = NOW() WHERE id = $1 AND owner_id = $2`, docID, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to toggle visibility for doc %s: %v", docID, err)
		return 0, err
	}
	return result.RowsAffected()
}

func (s *Store) Delete(docID, ownerID string) (int64, error) {
	result, err := s.DB.Exec(`DELETE FROM documents WHERE id = $1 AND owner_id = $2`, docID, ownerID)
	if err != nil {
		logger.Sugar.Errorf("Failed to delete doc %s: %v", docID, err)
		return 0, err
	}
	return result.RowsAffected()
}

// HasContent reports whether the collaborative payload exists yet. A missing
// row is the "not created" state the client sees.
func (s *Store) HasContent(docID string) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(`SELECT EXISTS(SELECT 1 FROM document_content WHERE document_id = $1)`, docID).Scan(&exists)
	if err != nil {
		logger.Sugar.Errorf("Failed to check content for doc %s: %v", docID, err)
	}
	return exists, err
}

func (s *Store) CreateContent(docID string) error {
	_, err := s.DB.Exec(`INSERT INTO document_content (document_id, content, updated_at) VALUES ($1, '{"type":"doc","content":[]}', NOW()) ON CONFLICT (document_id) DO NOTHING`, docID)
	if err != nil {
		logger.Sugar.Errorf("Failed to create content for doc %s: %v", docID, err)
	}
	return err
}
