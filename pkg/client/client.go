// Package client is a thin HTTP client for the karen chat API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultTimeout = 5 * time.Minute // ingestion of a large PDF is slow

// Client talks to a karen server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithAPIKey sets the Bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the given base URL (e.g. "http://localhost:8080").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StartChat creates a new conversation.
func (c *Client) StartChat(ctx context.Context) (Chat, error) {
	var chat Chat
	err := c.do(ctx, http.MethodPost, "/api/chats", nil, &chat)
	return chat, err
}

// ListChats returns every conversation, newest first.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	var list chatList
	if err := c.do(ctx, http.MethodGet, "/api/chats", nil, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// DeleteChat removes a conversation and its ingested documents.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chats/"+chatID, nil, nil)
}

// History returns the messages of a conversation in order.
func (c *Client) History(ctx context.Context, chatID string) ([]Message, error) {
	var list messageList
	if err := c.do(ctx, http.MethodGet, "/api/chats/"+chatID+"/messages", nil, &list); err != nil {
		return nil, err
	}
	return list.Items, nil
}

// SendMessage posts one user message and returns the assistant answer. The
// returned ChatID may differ from the given one when the server had to
// create a fresh conversation.
func (c *Client) SendMessage(ctx context.Context, chatID, message string) (Answer, error) {
	var ans Answer
	err := c.do(ctx, http.MethodPost, "/api/chats/"+chatID+"/messages",
		map[string]string{"message": message}, &ans)
	return ans, err
}

// UploadDocument ingests a local file into a conversation. An empty chatID
// uploads without a conversation; the server creates one and reports its ID.
func (c *Client) UploadDocument(ctx context.Context, chatID, path string) (Upload, error) {
	endpoint := "/api/documents"
	if chatID != "" {
		endpoint = "/api/chats/" + chatID + "/documents"
	}

	f, err := os.Open(path)
	if err != nil {
		return Upload{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return Upload{}, fmt.Errorf("build multipart form: %w", err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return Upload{}, fmt.Errorf("read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return Upload{}, fmt.Errorf("finish multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return Upload{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var up Upload
	err = c.send(req, &up)
	return up, err
}

// HealthCheck returns the server health report. A degraded server still
// answers, so the report comes back alongside a nil error even on HTTP 503.
func (c *Client) HealthCheck(ctx context.Context) (Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", http.NoBody)
	if err != nil {
		return Health{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Health{}, fmt.Errorf("karen api: %w", err)
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("decode health report: %w", err)
	}
	return h, nil
}

// do runs one JSON round trip. out may be nil for responses without a body.
func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("karen api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "UNKNOWN"}
		_ = json.NewDecoder(resp.Body).Decode(apiErr)
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
