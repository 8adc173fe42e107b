// Package remote talks to a StoryNest server over its HTTP API. Client
// implements library.RemoteStore, so a synchronizer can mirror the server's
// books from any process that holds an API token.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/mrlokans/storynest/internal/library"
	"github.com/mrlokans/storynest/internal/wire"
)

var (
	// ErrNotFound is library.ErrRemoteNotFound, matched by every 404 from a
	// book endpoint.
	ErrNotFound = library.ErrRemoteNotFound

	ErrUnauthorized        = errors.New("not signed in or token expired")
	ErrContentTypeMismatch = errors.New("content type mismatch")
)

const (
	// clientRateLimitPerSecond is the max requests per second the client will make
	clientRateLimitPerSecond = 20
	clientRateLimitBurst     = 40

	contentTypeJSON = "application/json"
)

// HTTPError represents an HTTP error response from the server.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf(`response %d %s "%s"`, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf(`response %d "%s"`, e.StatusCode, e.Message)
}

// Is lets errors.Is match 404s against ErrNotFound and 401s against
// ErrUnauthorized.
func (e *HTTPError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// rateLimitedTransport wraps an http.RoundTripper with rate limiting.
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.transport.RoundTrip(req)
}

// Options configures a Client.
type Options struct {
	ServerURL string
	Token     string
	// Transport defaults to http.DefaultTransport. Requests are rate limited
	// on top of it.
	Transport http.RoundTripper
	UserAgent string
}

// Client is an API client bound to one server.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client

	mu    sync.RWMutex
	token string
}

// New creates a client for the server at opts.ServerURL.
func New(opts Options) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(opts.ServerURL))
	if err != nil {
		return nil, errors.Wrap(err, "parsing server url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("server url must be http or https, got %q", opts.ServerURL)
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	interval := time.Second / time.Duration(clientRateLimitPerSecond)
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "storynest-cli"
	}

	return &Client{
		baseURL:   strings.TrimRight(u.String(), "/"),
		userAgent: userAgent,
		token:     opts.Token,
		// No client timeout: change streams stay open. Callers bound every
		// other request through its context.
		http: &http.Client{
			Transport: &rateLimitedTransport{
				transport: transport,
				limiter:   rate.NewLimiter(rate.Every(interval), clientRateLimitBurst),
			},
		},
	}, nil
}

// ServerURL returns the base URL requests are sent to.
func (c *Client) ServerURL() string {
	return c.baseURL
}

// Token returns the API token currently in use.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the API token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, "constructing http request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// do sends req and returns the response when its status is below 400.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	res, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "making http request")
	}
	if err := checkRespErr(res); err != nil {
		res.Body.Close()
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	return res, nil
}

// doJSON sends in (if non-nil) as JSON and decodes the response into out (if
// non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		body = bytes.NewReader(data)
		contentType = contentTypeJSON
	}

	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", contentTypeJSON)

	res, err := c.do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if out == nil {
		return nil
	}
	if got := res.Header.Get("Content-Type"); !strings.HasPrefix(got, contentTypeJSON) {
		return errors.Wrapf(ErrContentTypeMismatch, "got: '%s' want: '%s'. Is the server URL correct?", got, contentTypeJSON)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}

// checkRespErr turns a response with status 400 or above into an *HTTPError.
func checkRespErr(res *http.Response) error {
	if res.StatusCode < 400 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return errors.Wrapf(err, "server responded with %d but client could not read the response body", res.StatusCode)
	}

	httpErr := &HTTPError{StatusCode: res.StatusCode}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		httpErr.Message = payload.Error
		httpErr.Code = payload.Code
	} else {
		httpErr.Message = strings.TrimRight(string(body), "\n")
	}
	return httpErr
}

type bookList struct {
	Books []wire.Record `json:"books"`
	Count int           `json:"count"`
}

// Query lists one partition of the caller's books. The server scopes every
// request to the token's owner, so q.Owner only documents intent.
func (c *Client) Query(ctx context.Context, q library.Query) ([]wire.Record, error) {
	path := "/api/books"
	if q.Trashed {
		path += "?trashed=true"
	}
	var list bookList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, errors.Wrap(err, "listing books")
	}
	return list.Books, nil
}

// Get fetches one book. A missing book yields an error matching ErrNotFound.
func (c *Client) Get(ctx context.Context, owner, id string) (wire.Record, error) {
	var rec wire.Record
	if err := c.doJSON(ctx, http.MethodGet, "/api/books/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, errors.Wrapf(err, "getting book %s", id)
	}
	return rec, nil
}

// Insert creates a book and returns the stored record.
func (c *Client) Insert(ctx context.Context, owner string, r wire.Record) (wire.Record, error) {
	var rec wire.Record
	if err := c.doJSON(ctx, http.MethodPost, "/api/books", r, &rec); err != nil {
		return nil, errors.Wrap(err, "creating book")
	}
	return rec, nil
}

// Update sends a partial update.
func (c *Client) Update(ctx context.Context, owner, id string, patch wire.Record) error {
	if err := c.doJSON(ctx, http.MethodPatch, "/api/books/"+url.PathEscape(id), patch, nil); err != nil {
		return errors.Wrapf(err, "updating book %s", id)
	}
	return nil
}

// Delete permanently removes the listed books in one request.
func (c *Client) Delete(ctx context.Context, owner string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/api/books?"+q.Encode(), nil, nil); err != nil {
		return errors.Wrap(err, "deleting books")
	}
	return nil
}

// DeleteTrashed permanently removes the listed books that are still in the
// trash and returns the ids the server removed.
func (c *Client) DeleteTrashed(ctx context.Context, owner string, ids ...string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := url.Values{}
	q.Set("trashed", "true")
	for _, id := range ids {
		q.Add("id", id)
	}
	var resp struct {
		Deleted []string `json:"deleted"`
	}
	if err := c.doJSON(ctx, http.MethodDelete, "/api/books?"+q.Encode(), nil, &resp); err != nil {
		return nil, errors.Wrap(err, "deleting trashed books")
	}
	return resp.Deleted, nil
}

var _ library.RemoteStore = (*Client)(nil)
