// Package client is the HTTP client for the hosted chat service. Every
// request carries the bearer token of an explicit session.Session; a
// rejected token is reported back to that session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/logger"
	"github.com/papercomputeco/ggchat/pkg/session"
)

// DefaultTimeout bounds the non-streaming requests.
const DefaultTimeout = 30 * time.Second

// Config configures a Client.
type Config struct {
	// BaseURL is the service root, e.g. "https://chat.example.com/api".
	BaseURL string

	// Session supplies the bearer token. Required.
	Session *session.Session

	// HTTPClient is used for every request. Streams must not be bounded by
	// a client-wide timeout, so the default client has none; non-streaming
	// calls are bounded by Timeout instead.
	HTTPClient *http.Client

	// Timeout bounds each non-streaming request. Zero means DefaultTimeout.
	Timeout time.Duration

	Logger *slog.Logger
}

// Client talks to the chat service.
type Client struct {
	baseURL    string
	session    *session.Session
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Session == nil {
		return nil, errors.New("client: session is required")
	}

	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		session:    cfg.Session,
		httpClient: httpClient,
		timeout:    timeout,
		logger:     logger.OrNop(cfg.Logger),
	}, nil
}

// BaseURL returns the normalized service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OpenStream opens the token stream for one turn. On success the caller owns
// the returned body and must close it. Non-2xx responses are returned as a
// *StatusError with the body already drained and closed.
func (c *Client) OpenStream(ctx context.Context, turn chat.TurnContext) (io.ReadCloser, error) {
	path := fmt.Sprintf("/chats/%d/stream?%s", turn.ChatID, turn.Query().Encode())

	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// PostMessage stores a user message and returns it as confirmed by the
// service.
func (c *Client) PostMessage(ctx context.Context, chatID int64, content string) (chat.Message, error) {
	var out chat.MessageOut
	body := map[string]string{"content": content}
	if err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/chats/%d/messages", chatID), body, &out); err != nil {
		return chat.Message{}, fmt.Errorf("posting message: %w", err)
	}
	return out.ToMessage(), nil
}

// GetChat fetches the authoritative transcript of a chat.
func (c *Client) GetChat(ctx context.Context, chatID int64) (chat.Transcript, error) {
	var out chat.ChatDetail
	if err := c.doJSON(ctx, http.MethodGet, "/chats/"+strconv.FormatInt(chatID, 10), nil, &out); err != nil {
		return chat.Transcript{}, fmt.Errorf("fetching chat %d: %w", chatID, err)
	}
	return out.ToTranscript(), nil
}

// ListChats returns the chats visible to the session.
func (c *Client) ListChats(ctx context.Context) ([]chat.Chat, error) {
	var out []chat.ChatOut
	if err := c.doJSON(ctx, http.MethodGet, "/chats", nil, &out); err != nil {
		return nil, fmt.Errorf("listing chats: %w", err)
	}

	chats := make([]chat.Chat, 0, len(out))
	for _, co := range out {
		chats = append(chats, co.ToChat())
	}
	return chats, nil
}

// CreateChat starts a new chat against a model.
func (c *Client) CreateChat(ctx context.Context, modelID int64, title string) (chat.Chat, error) {
	var out chat.ChatOut
	body := struct {
		ModelID int64  `json:"model_id"`
		Title   string `json:"title"`
	}{ModelID: modelID, Title: title}

	if err := c.doJSON(ctx, http.MethodPost, "/chats", body, &out); err != nil {
		return chat.Chat{}, fmt.Errorf("creating chat: %w", err)
	}
	return out.ToChat(), nil
}

// RemoveChat deletes a chat.
func (c *Client) RemoveChat(ctx context.Context, chatID int64) error {
	body := struct {
		ChatID int64 `json:"chat_id"`
	}{ChatID: chatID}

	if err := c.doJSON(ctx, http.MethodPost, "/chats/remove", body, nil); err != nil {
		return fmt.Errorf("removing chat %d: %w", chatID, err)
	}
	return nil
}

// ListJobs fetches the current snapshot of model download jobs.
func (c *Client) ListJobs(ctx context.Context) ([]chat.DownloadJob, error) {
	var out []chat.ModelDownloadJobOut
	if err := c.doJSON(ctx, http.MethodGet, "/models/jobs", nil, &out); err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}

	jobs := make([]chat.DownloadJob, 0, len(out))
	for _, j := range out {
		jobs = append(jobs, j.ToJob())
	}
	return jobs, nil
}

// doJSON performs a bounded request, encoding in as the body when non-nil
// and decoding the response into out when non-nil.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	token, err := c.session.Token()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// send executes req. Any non-2xx response is converted to a *StatusError and
// its body closed; a 401 or 403 is also reported to the session.
func (c *Client) send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	c.logger.Debug("service request",
		"method", req.Method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	serr := newStatusError(resp)
	resp.Body.Close()

	if isAuthStatus(serr.StatusCode) {
		c.logger.Warn("service rejected credential", "status", serr.StatusCode)
		c.session.AuthFailed(serr)
	}
	return nil, serr
}
