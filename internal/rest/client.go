package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoToken is returned before any request is issued when no credential
// is available. Auth acquisition is outside the engine; we only fail fast.
var ErrNoToken = errors.New("rest: no auth token")

// Fixed per-call budgets. Control calls get 15s, uploads 30s.
const (
	controlTimeout = 15 * time.Second
	uploadTimeout  = 30 * time.Second
)

// Client talks to the remote service's request/response API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates an API client. baseURL has no trailing slash.
func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{},
		logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, timeout time.Duration) ([]byte, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return data, nil
}

// ListChats fetches the chat list for a user. A response that fails to
// parse is treated as an empty list, never an error.
func (c *Client) ListChats(ctx context.Context, userID string) ([]ChatRecord, error) {
	data, err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(userID), nil, controlTimeout)
	if err != nil {
		return nil, err
	}
	var chats []ChatRecord
	if err := json.Unmarshal(data, &chats); err != nil {
		c.logger.Warn("malformed chat list response, treating as empty", zap.Error(err))
		return []ChatRecord{}, nil
	}
	return chats, nil
}

// ListMessages fetches the message history for a chat. Malformed payloads
// degrade to an empty list.
func (c *Client) ListMessages(ctx context.Context, chatID string) ([]MessageRecord, error) {
	data, err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(chatID)+"/messages", nil, controlTimeout)
	if err != nil {
		return nil, err
	}
	var msgs []MessageRecord
	if err := json.Unmarshal(data, &msgs); err != nil {
		c.logger.Warn("malformed message list response, treating as empty",
			zap.String("chat", chatID), zap.Error(err))
		return []MessageRecord{}, nil
	}
	return msgs, nil
}

// MarkRead tells the service the user has read a chat.
func (c *Client) MarkRead(ctx context.Context, chatID string) error {
	_, err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/mark-read", nil, controlTimeout)
	return err
}

// DeleteChat asks the service to delete a chat for this user. The caller
// has already removed it locally; failures here are logged, not reverted.
func (c *Client) DeleteChat(ctx context.Context, chatID string) error {
	_, err := c.do(ctx, http.MethodPost, "/chats/"+url.PathEscape(chatID)+"/delete", nil, controlTimeout)
	return err
}

// BlockUser blocks another user.
func (c *Client) BlockUser(ctx context.Context, userID string) error {
	_, err := c.do(ctx, http.MethodPost, "/users/"+url.PathEscape(userID)+"/block", nil, controlTimeout)
	return err
}

// Upload sends a file as multipart form data and returns the stored
// resource locator. Uploads get a wider budget than control calls.
func (c *Client) Upload(ctx context.Context, fileName string, content io.Reader) (*UploadResult, error) {
	if c.token == "" {
		return nil, ErrNoToken
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("write file data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("upload: status %d", resp.StatusCode)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if !result.OK {
		return nil, errors.New("upload: service reported failure")
	}
	return &result, nil
}
