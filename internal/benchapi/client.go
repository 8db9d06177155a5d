// Package benchapi is the HTTP client for the benchmark server.
package benchapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tOgg1/pocketbench/internal/logging"
	"github.com/tOgg1/pocketbench/internal/models"
)

// Endpoint paths.
const (
	PathRun         = "/api/run"
	PathStop        = "/api/stop"
	PathLogsList    = "/api/logs_list"
	PathLogsContent = "/api/logs_content"
	PathLogsDelete  = "/api/logs_delete"
	PathTasks       = "/api/tasks"
	PathSearch      = "/api/search"
	PathFiles       = "/api/files"
	PathLocalModels = "/api/local_models"
	PathDeleteModel = "/api/delete_model"
	PathSystemInfo  = "/api/system_info"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// The log content endpoint answers a missing or unreadable file with status
// 200 and one of these plain-text bodies.
const (
	logReadErrorPrefix = "Error reading log:"
	logNoFilenameBody  = "No filename"
)

// FallbackTasks is offered when the task catalogue cannot be fetched.
var FallbackTasks = []string{"mmlu", "gsm8k"}

// StatusError is a non-2xx reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.Code)
	}
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Body)
}

// Client talks to one benchmark server.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	stream  *http.Client
	logger  zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the client used for request/response calls. The
// run stream uses the same transport without a timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the timeout of request/response calls. A client passed
// through WithHTTPClient is copied, not modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.http
			hc.Timeout = d
			c.http = &hc
		}
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("server url is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("server url %q: scheme must be http or https", logging.RedactURL(baseURL))
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	c := &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logging.Component("benchapi"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stream = &http.Client{Transport: c.http.Transport}
	return c, nil
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Run posts the run request and returns the streaming response body. The
// caller owns the body and must close it. Cancelling ctx aborts the transfer.
func (c *Client) Run(ctx context.Context, req models.RunRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode run request: %w", err)
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, PathRun, nil, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	c.logger.Debug().Int("jobs", len(req.Jobs)).Str("url", logging.RedactURL(httpReq.URL.String())).Msg("starting run")
	resp, err := c.stream.Do(httpReq)
	if err != nil {
		return nil, &models.TransportError{Op: "run", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &models.TransportError{Op: "run", Err: readStatusError(resp)}
	}
	return resp.Body, nil
}

// Stop asks the server to kill the running process.
func (c *Client) Stop(ctx context.Context) (models.StopResponse, error) {
	var out models.StopResponse
	if err := c.doJSON(ctx, "stop", http.MethodPost, PathStop, nil, nil, &out); err != nil {
		return models.StopResponse{}, err
	}
	return out, nil
}

// ListLogs returns the log history in server order.
func (c *Client) ListLogs(ctx context.Context) ([]models.LogHistoryEntry, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, "list logs", http.MethodGet, PathLogsList, nil, nil, &raw); err != nil {
		return nil, err
	}

	// A failing listing is reported as {"error": "..."} with status 200.
	var failure struct {
		Error string `json:"error"`
	}
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &failure); err == nil && failure.Error != "" {
			return nil, &models.TransportError{Op: "list logs", Err: errors.New(failure.Error)}
		}
	}

	var entries []models.LogHistoryEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &models.TransportError{Op: "list logs", Err: fmt.Errorf("decode response: %w", err)}
	}
	return entries, nil
}

// LogContent returns the raw text of a persisted log.
func (c *Client) LogContent(ctx context.Context, filename string) (string, error) {
	query := url.Values{"filename": []string{filename}}
	req, err := c.newRequest(ctx, http.MethodGet, PathLogsContent, query, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", &models.TransportError{Op: "log content", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		status := readStatusError(resp)
		return "", &models.NotFoundError{Filename: filename, Message: status.Body}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &models.TransportError{Op: "log content", Err: readStatusError(resp)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &models.TransportError{Op: "log content", Err: err}
	}
	content := string(data)
	if isLogContentFailure(content) {
		return "", &models.NotFoundError{Filename: filename, Message: strings.TrimSpace(content)}
	}
	return content, nil
}

func isLogContentFailure(body string) bool {
	if strings.HasPrefix(body, logReadErrorPrefix) {
		return true
	}
	return strings.TrimSpace(body) == logNoFilenameBody
}

// DeleteLog removes a persisted log. A non-success reply becomes a
// DeleteError carrying the server message.
func (c *Client) DeleteLog(ctx context.Context, filename string) error {
	var out models.StatusResponse
	payload := map[string]string{"filename": filename}
	if err := c.doJSON(ctx, "delete log", http.MethodPost, PathLogsDelete, nil, payload, &out); err != nil {
		return err
	}
	if !out.OK() {
		return &models.DeleteError{Filename: filename, Message: out.Msg}
	}
	return nil
}

// FetchTasks returns the server task catalogue.
func (c *Client) FetchTasks(ctx context.Context) ([]string, error) {
	var tasks []string
	if err := c.doJSON(ctx, "tasks", http.MethodGet, PathTasks, nil, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// Tasks returns the task catalogue, or FallbackTasks when it cannot be fetched.
func (c *Client) Tasks(ctx context.Context) []string {
	tasks, err := c.FetchTasks(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("task catalogue unavailable, using fallback")
		return append([]string(nil), FallbackTasks...)
	}
	return tasks
}

// Search queries the model hub. An empty query returns no results.
func (c *Client) Search(ctx context.Context, q string) ([]models.SearchResult, error) {
	if strings.TrimSpace(q) == "" {
		return nil, nil
	}
	var out []models.SearchResult
	err := c.doJSON(ctx, "search", http.MethodGet, PathSearch, url.Values{"q": []string{q}}, nil, &out)
	return out, err
}

// Files lists the artifact files of a hub repository.
func (c *Client) Files(ctx context.Context, repo string) ([]models.RepoFile, error) {
	if strings.TrimSpace(repo) == "" {
		return nil, nil
	}
	var out []models.RepoFile
	err := c.doJSON(ctx, "files", http.MethodGet, PathFiles, url.Values{"repo": []string{repo}}, nil, &out)
	return out, err
}

// LocalModels lists artifacts cached on the server.
func (c *Client) LocalModels(ctx context.Context) ([]models.LocalModel, error) {
	var out []models.LocalModel
	err := c.doJSON(ctx, "local models", http.MethodGet, PathLocalModels, nil, nil, &out)
	return out, err
}

// DeleteModel removes a cached artifact from the server.
func (c *Client) DeleteModel(ctx context.Context, req models.DeleteModelRequest) (models.StatusResponse, error) {
	var out models.StatusResponse
	if err := c.doJSON(ctx, "delete model", http.MethodPost, PathDeleteModel, nil, req, &out); err != nil {
		return models.StatusResponse{}, err
	}
	return out, nil
}

// SystemInfo describes the server host.
func (c *Client) SystemInfo(ctx context.Context) (models.SystemInfo, error) {
	var out models.SystemInfo
	err := c.doJSON(ctx, "system info", http.MethodGet, PathSystemInfo, nil, nil, &out)
	return out, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &models.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &models.TransportError{Op: op, Err: readStatusError(resp)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func readStatusError(resp *http.Response) *StatusError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
}
