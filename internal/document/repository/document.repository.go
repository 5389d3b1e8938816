package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"codraft/internal/document/model"
	"codraft/pkg/logger"
)

// DocumentRepository issues one-shot writes against the backend's REST
// surface. Reads arrive over the feed, not through here; the only GET is
// absent on purpose.
type DocumentRepository struct {
	BaseURL string
	Token   string
	Client  *http.Client
	// Timeout bounds every request so a hung backend cannot leave an
	// intent pending forever.
	Timeout time.Duration
}

const defaultTimeout = 10 * time.Second

func NewDocumentRepository(baseURL, token string) *DocumentRepository {
	return &DocumentRepository{
		BaseURL: baseURL,
		Token:   token,
		Client:  &http.Client{},
		Timeout: defaultTimeout,
	}
}

func (r *DocumentRepository) Create(ctx context.Context, title string, isPublic bool) (string, error) {
	body, _ := json.Marshal(model.CreateDocRequest{Title: title, IsPublic: isPublic})
	resp, err := r.do(ctx, http.MethodPost, "/api/documents/create", "", body)
	if err != nil {
		return "", err
	}
	var out model.CreateDocResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return "", fmt.Errorf("create: decoding response: %w", model.ErrUnavailable)
	}
	return out.DocID, nil
}

func (r *DocumentRepository) Rename(ctx context.Context, docID, title string) error {
	body, _ := json.Marshal(model.RenameDocRequest{Title: title})
	_, err := r.do(ctx, http.MethodPut, "/api/documents/update", docID, body)
	return err
}

func (r *DocumentRepository) ToggleVisibility(ctx context.Context, docID string) error {
	_, err := r.do(ctx, http.MethodPost, "/api/documents/visibility", docID, nil)
	return err
}

func (r *DocumentRepository) Delete(ctx context.Context, docID string) error {
	_, err := r.do(ctx, http.MethodDelete, "/api/documents/delete", docID, nil)
	return err
}

func (r *DocumentRepository) CreateContent(ctx context.Context, docID string) error {
	_, err := r.do(ctx, http.MethodPost, "/api/documents/content/create", docID, nil)
	return err
}

func (r *DocumentRepository) do(ctx context.Context, method, path, docID string, body []byte) ([]byte, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	target := r.BaseURL + path
	if docID != "" {
		target += "?docId=" + url.QueryEscape(docID)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, model.ErrUnavailable)
	}
	req.Header.Set("Authorization", "Bearer "+r.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		logger.Sugar.Errorf("Request %s %s failed: %v", method, path, err)
		return nil, fmt.Errorf("%s %s: %w", method, path, model.ErrUnavailable)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode < 300:
		return payload, nil
	case resp.StatusCode >= 500:
		logger.Sugar.Errorf("Backend error on %s %s: %d", method, path, resp.StatusCode)
		return nil, fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, model.ErrUnavailable)
	default:
		// 4xx: the backend understood us and said no. Authorization is
		// enforced here, not in the client's advisory owner checks.
		logger.Sugar.Warnf("Write rejected on %s %s: %d %s", method, path, resp.StatusCode, bytes.TrimSpace(payload))
		return nil, fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, model.ErrWriteRejected)
	}
}
