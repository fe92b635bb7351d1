package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bookshelf/internal/config"
)

// ErrDaemonUnavailable reports that nothing is listening on the API address.
var ErrDaemonUnavailable = errors.New("bookshelf daemon is not running")

// Error is a non-2xx reply decoded from the {"error": ...} envelope.
type Error struct {
	StatusCode int
	Message    string
	// Scan is set on 409 replies to a scan request.
	Scan *ScanStatus
}

func (e *Error) Error() string {
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to the daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient returns a client for baseURL. Requests carry token as a bearer
// credential when it is non-empty. Streams are not subject to a timeout; the
// caller's context bounds them.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{},
	}
}

// NewClientFromConfig targets the configured API bind address.
func NewClientFromConfig(cfg *config.Config) *Client {
	return NewClient(BaseURL(cfg.Paths.APIBind), cfg.Paths.APIToken)
}

// BaseURL converts a listen address into a URL a local client can dial.
// Wildcard hosts are replaced with the loopback address.
func BaseURL(bind string) string {
	host, port, err := net.SplitHostPort(strings.TrimSpace(bind))
	if err != nil {
		return "http://" + strings.TrimSpace(bind)
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Health fetches daemon and model readiness.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	return &resp, c.call(ctx, http.MethodGet, "/api/health", nil, &resp)
}

// Books lists items matching query and the optional year range.
func (c *Client) Books(ctx context.Context, query string, yearStart, yearEnd int) (*BookListResponse, error) {
	params := url.Values{}
	if q := strings.TrimSpace(query); q != "" {
		params.Set("q", q)
	}
	if yearStart > 0 {
		params.Set("year_start", strconv.Itoa(yearStart))
	}
	if yearEnd > 0 {
		params.Set("year_end", strconv.Itoa(yearEnd))
	}
	path := "/api/books"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp BookListResponse
	return &resp, c.call(ctx, http.MethodGet, path, nil, &resp)
}

// RegisterBook adds a file to the library.
func (c *Client) RegisterBook(ctx context.Context, req RegisterBookRequest) (*RegisterBookResponse, error) {
	var resp RegisterBookResponse
	return &resp, c.call(ctx, http.MethodPost, "/api/books", req, &resp)
}

// UpdateBook edits a manually maintained field.
func (c *Client) UpdateBook(ctx context.Context, req UpdateBookRequest) error {
	return c.call(ctx, http.MethodPost, "/api/books/update", req, &ActionResponse{})
}

// ResetFailed re-queues items scanned without tags.
func (c *Client) ResetFailed(ctx context.Context) (int, error) {
	var resp CountResponse
	err := c.call(ctx, http.MethodPost, "/api/books/reset-failed", nil, &resp)
	return resp.Count, err
}

// ExportErrors writes the scan error report on the daemon host.
func (c *Client) ExportErrors(ctx context.Context) (*ExportErrorsResponse, error) {
	var resp ExportErrorsResponse
	return &resp, c.call(ctx, http.MethodPost, "/api/books/export-errors", nil, &resp)
}

// ScanStatus fetches the content scan descriptor.
func (c *Client) ScanStatus(ctx context.Context) (*ScanStatus, error) {
	var resp ScanStatus
	return &resp, c.call(ctx, http.MethodGet, "/api/scan-content/status", nil, &resp)
}

// StopScan asks the running scan to stop at the next batch boundary.
func (c *Client) StopScan(ctx context.Context) (*ActionResponse, error) {
	var resp ActionResponse
	return &resp, c.call(ctx, http.MethodPost, "/api/scan-content/stop", nil, &resp)
}

// Scan starts a content scan and streams its events to fn. Returning from
// Scan early does not stop the job on the daemon. A nil targets slice scans the whole library; a non-nil one, even
// empty, limits the scan to those files.
func (c *Client) Scan(ctx context.Context, targets []string, fn func(Event) error) error {
	return c.stream(ctx, "/api/scan-content", ScanRequest{TargetFilepaths: targets}, fn)
}

// SyncTaxonomy runs a taxonomy sync and streams its events to fn.
func (c *Client) SyncTaxonomy(ctx context.Context, fn func(Event) error) error {
	return c.stream(ctx, "/api/taxonomy/sync", nil, fn)
}

// ReEvaluate re-queues every item carrying tag.
func (c *Client) ReEvaluate(ctx context.Context, tag string) (int, error) {
	var resp CountResponse
	err := c.call(ctx, http.MethodPost, "/api/taxonomy/re-eval", ReEvalRequest{Tag: tag}, &resp)
	return resp.Count, err
}

// ApplyImplications applies the implication rules from the rules file.
func (c *Client) ApplyImplications(ctx context.Context) (*ImplicationsResponse, error) {
	var resp ImplicationsResponse
	return &resp, c.call(ctx, http.MethodPost, "/api/taxonomy/apply-implications", nil, &resp)
}

// Rules fetches the tagging rules markdown.
func (c *Client) Rules(ctx context.Context) (string, error) {
	var resp RulesDocument
	err := c.call(ctx, http.MethodGet, "/api/taxonomy/rules", nil, &resp)
	return resp.Content, err
}

// SaveRules replaces the tagging rules markdown.
func (c *Client) SaveRules(ctx context.Context, content string) error {
	return c.call(ctx, http.MethodPost, "/api/taxonomy/rules", RulesDocument{Content: content}, &ActionResponse{})
}

// Mapping fetches the learned taxonomy.
func (c *Client) Mapping(ctx context.Context) (map[string]string, error) {
	var resp MappingResponse
	err := c.call(ctx, http.MethodGet, "/api/taxonomy/mapping", nil, &resp)
	return resp.Mapping, err
}

// Models lists local model files.
func (c *Client) Models(ctx context.Context) (*ModelListResponse, error) {
	var resp ModelListResponse
	return &resp, c.call(ctx, http.MethodGet, "/api/models", nil, &resp)
}

// SelectModel makes path the active model.
func (c *Client) SelectModel(ctx context.Context, path string) (*ActionResponse, error) {
	var resp ActionResponse
	return &resp, c.call(ctx, http.MethodPost, "/api/models/active", SelectModelRequest{Path: path}, &resp)
}

// Logs fetches log events after since. With follow the daemon holds the
// request open until new events arrive.
func (c *Client) Logs(ctx context.Context, since uint64, limit int, follow bool) (*LogStreamResponse, error) {
	params := url.Values{}
	params.Set("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if follow {
		params.Set("follow", "1")
	}
	var resp LogStreamResponse
	return &resp, c.call(ctx, http.MethodGet, "/api/logs?"+params.Encode(), nil, &resp)
}

// TailLogs returns the most recent limit log events.
func (c *Client) TailLogs(ctx context.Context, limit int) (*LogStreamResponse, error) {
	params := url.Values{}
	params.Set("tail", "1")
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp LogStreamResponse
	return &resp, c.call(ctx, http.MethodGet, "/api/logs?"+params.Encode(), nil, &resp)
}

func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) stream(ctx context.Context, path string, body any, fn func(Event) error) error {
	resp, err := c.do(ctx, http.MethodPost, path, body, "text/event-stream")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return err
	}
	err = ReadEvents(resp.Body, fn)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("%w at %s; start it with `bookshelf daemon`", ErrDaemonUnavailable, c.baseURL)
		}
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	apiErr := &Error{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	var envelope ConflictResponse
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Error != "" {
		apiErr.Message = envelope.Error
		apiErr.Scan = envelope.Status
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// defaultCallTimeout bounds request/response calls made by the CLI.
const defaultCallTimeout = 30 * time.Second

// WithTimeout derives a context bounded by the default call timeout.
func WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultCallTimeout)
}
