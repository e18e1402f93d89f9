// Package ingest is the HTTP client for the document ingestion backend.
// The backend turns URLs and PDFs into queryable collections and prices both
// the ingestion and subsequent queries.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	. "github.com/onegate/onegate/internal/logging"
)

// Client talks to the ingestion backend.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client. baseURL has no trailing slash.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// AddDocumentRequest registers a source for ingestion. Exactly one of URL or
// PDFURL is set.
type AddDocumentRequest struct {
	ChatID   int64  `json:"chatId"`
	URL      string `json:"url,omitempty"`
	PDFURL   string `json:"pdfUrl,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type addDocumentResponse struct {
	CollectionName string `json:"collectionName"`
}

// AddDocument registers a document and returns the backend's collection name.
func (c *Client) AddDocument(ctx context.Context, req *AddDocumentRequest) (string, error) {
	var resp addDocumentResponse
	if err := c.post(ctx, "/collections/document", req, &resp); err != nil {
		return "", fmt.Errorf("add document: %w", err)
	}
	L_debug("ingest: document registered", "collection", resp.CollectionName, "chatID", req.ChatID)
	return resp.CollectionName, nil
}

type statusResponse struct {
	Price float64 `json:"price"`
}

// CheckStatus polls ingestion progress for a collection. The returned price
// encodes the state: positive means ingestion finished and the value is the
// one-time fee, zero means still processing, negative means the source was
// rejected.
func (c *Client) CheckStatus(ctx context.Context, collectionName string) (float64, error) {
	url := c.baseURL + "/collections/document/" + collectionName

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, fmt.Errorf("check status: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return 0, fmt.Errorf("check status: backend returned %d: %s", httpResp.StatusCode, body)
	}

	var resp statusResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return 0, fmt.Errorf("check status: decode: %w", err)
	}
	return resp.Price, nil
}

// QueryMessage is one conversation turn forwarded with a query.
type QueryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// QueryRequest runs a prompt against an ingested collection.
type QueryRequest struct {
	CollectionName string         `json:"collectionName"`
	Prompt         string         `json:"prompt"`
	Conversation   []QueryMessage `json:"conversation,omitempty"`
}

// QueryResult is the backend's answer plus the query fee.
type QueryResult struct {
	Completion string  `json:"completion"`
	Price      float64 `json:"price"`
}

// Query runs a prompt against a collection.
func (c *Client) Query(ctx context.Context, req *QueryRequest) (*QueryResult, error) {
	var resp QueryResult
	if err := c.post(ctx, "/collections/query", req, &resp); err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	return &resp, nil
}

// DeleteCollection removes a collection from the backend.
func (c *Client) DeleteCollection(ctx context.Context, collectionName string) error {
	url := c.baseURL + "/collections/document/" + collectionName

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete collection: backend returned %d", httpResp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return fmt.Errorf("backend returned %d: %s", httpResp.StatusCode, respBody)
	}

	return json.NewDecoder(httpResp.Body).Decode(out)
}
