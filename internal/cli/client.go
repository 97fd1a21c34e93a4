package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/pdfinsight/internal/models"
)

// APIError is a non-2xx reply from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running pdfinsight server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL. A zero timeout means none.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Upload sends the PDF at path as a multipart "file" field.
func (c *Client) Upload(ctx context.Context, path string) (*models.UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out models.UploadResponse
	if err := c.do(req, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask posts a question. A zero TopK lets the server apply its default.
func (c *Client) Ask(ctx context.Context, ask models.AskRequest) (*models.AskResponse, error) {
	var out models.AskResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/api/v1/ask", ask, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Documents lists indexed documents.
func (c *Client) Documents(ctx context.Context) ([]*models.Manifest, error) {
	var out struct {
		Docs []*models.Manifest `json:"docs"`
	}
	if err := c.sendJSON(ctx, http.MethodGet, "/api/v1/documents", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Docs, nil
}

// Status returns the server status document as generic JSON.
func (c *Client) Status(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := c.sendJSON(ctx, http.MethodGet, "/api/v1/status", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClearSession forgets the conversation for one (document, session) pair.
func (c *Client) ClearSession(ctx context.Context, docID, sessionID string) error {
	path := "/api/v1/sessions/" + url.PathEscape(docID) + "/" + url.PathEscape(sessionID)
	return c.sendJSON(ctx, http.MethodDelete, path, nil, http.StatusOK, nil)
}

// WatchDirectories lists the inbox directories.
func (c *Client) WatchDirectories(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.sendJSON(ctx, http.MethodGet, "/api/v1/watch/directories", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

// AddWatchDirectory adds an inbox directory and ingests the PDFs already in it.
func (c *Client) AddWatchDirectory(ctx context.Context, path string) error {
	body := map[string]interface{}{"path": path, "sync": true}
	return c.sendJSON(ctx, http.MethodPost, "/api/v1/watch/directories", body, http.StatusCreated, nil)
}

// RemoveWatchDirectory stops watching an inbox directory.
func (c *Client) RemoveWatchDirectory(ctx context.Context, path string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(path), nil, http.StatusOK, nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in interface{}, want int, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, want, out)
}

func (c *Client) do(req *http.Request, want int, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(b))}
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			apiErr.Message = e.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
