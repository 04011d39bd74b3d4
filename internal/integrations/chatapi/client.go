package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"chat-client/internal/csrf"
	"chat-client/internal/domain"
)

const (
	chatPath       = "/get_response/"
	dataSourcePath = "/add_data_source/"

	correlationHeader = "X-Correlation-Id"

	maxErrorBody = 4096
	maxReplyBody = 8 << 20
)

// HTTPStatusError captures non-2xx responses whose body is not a JSON reply.
// Error reports the status only; URL and Body are kept for logs.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return fmt.Sprintf("unexpected status %d %s", e.StatusCode, text)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// ResponseBody returns the truncated body the server sent.
func (e *HTTPStatusError) ResponseBody() string {
	return e.Body
}

// Client talks to the chat backend. It owns a cookie jar so the csrftoken
// cookie set by the backend is available to the default token source.
type Client struct {
	baseURL     string
	origin      *url.URL
	httpClient  *http.Client
	jar         http.CookieJar
	tokens      csrf.Source
	projectName string
	newID       func() string

	bootOnce sync.Once
	bootErr  error
}

type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Jar, when set, becomes the
// client's cookie jar.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenSource sets where the CSRF token comes from. The cookie jar is
// always consulted after it.
func WithTokenSource(src csrf.Source) Option {
	return func(c *Client) {
		c.tokens = src
	}
}

func WithProjectName(name string) Option {
	return func(c *Client) {
		c.projectName = strings.TrimSpace(name)
	}
}

// NewClient creates a Client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chatapi: base URL must not be empty")
	}
	origin, err := url.Parse(baseURL + "/")
	if err != nil {
		return nil, fmt.Errorf("chatapi: parse base URL: %w", err)
	}
	if origin.Scheme != "http" && origin.Scheme != "https" {
		return nil, fmt.Errorf("chatapi: base URL must be http or https, got %q", origin.Scheme)
	}

	c := &Client{
		baseURL: baseURL,
		origin:  origin,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("chatapi: create cookie jar: %w", err)
		}
		c.httpClient = &http.Client{Jar: jar}
	}
	c.jar = c.httpClient.Jar
	c.tokens = csrf.First(c.tokens, csrf.Jar(c.jar, c.origin))
	return c, nil
}

func endpointURL(baseURL, path string) string {
	return strings.TrimRight(baseURL, "/") + path
}

// Bootstrap loads the backend's home page once so it can set the csrftoken
// cookie. Later calls return the first result.
func (c *Client) Bootstrap(ctx context.Context) error {
	c.bootOnce.Do(func() {
		c.bootErr = c.bootstrap(ctx)
	})
	return c.bootErr
}

func (c *Client) bootstrap(ctx context.Context) error {
	u := c.origin.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("chatapi: create bootstrap request: %w", err)
	}
	res, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatapi: bootstrap request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxReplyBody))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("chatapi: bootstrap: %w", &HTTPStatusError{StatusCode: res.StatusCode, URL: u})
	}
	return nil
}

// Send posts one chat message. A non-2xx status whose body decodes as a
// reply is returned as a reply, not an error: the backend reports its own
// failures as {"error": ...} with 4xx/5xx codes.
func (c *Client) Send(ctx context.Context, message string) (domain.ChatReply, error) {
	if strings.TrimSpace(message) == "" {
		return domain.ChatReply{}, errors.New("chatapi: message must not be empty")
	}
	var reply domain.ChatReply
	err := c.postJSON(ctx, chatPath, domain.ChatRequest{
		Message:     message,
		ProjectName: c.projectName,
	}, &reply)
	if err != nil {
		return domain.ChatReply{}, err
	}
	return reply, nil
}

// AddDataSource asks the backend to index the schema of project, falling
// back to the configured project. With neither, project_name is omitted and
// the backend uses its default project.
func (c *Client) AddDataSource(ctx context.Context, project string) (domain.DataSourceReply, error) {
	project = strings.TrimSpace(project)
	if project == "" {
		project = c.projectName
	}
	var reply domain.DataSourceReply
	if err := c.postJSON(ctx, dataSourcePath, domain.DataSourceRequest{ProjectName: project}, &reply); err != nil {
		return domain.DataSourceReply{}, err
	}
	return reply, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("chatapi: marshal request: %w", err)
	}

	u := endpointURL(c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("chatapi: create request: %w", err)
	}
	token, _ := c.tokens.Token(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	// Set directly so the header keeps its X-CSRFToken spelling.
	req.Header[csrf.HeaderName] = []string{token}
	req.Header.Set(correlationHeader, c.newID())

	if err := c.doJSONRequest(req, u, out); err != nil {
		return fmt.Errorf("chatapi: request failed: %w", err)
	}
	return nil
}

func (c *Client) doJSONRequest(req *http.Request, u string, out any) error {
	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	ok := res.StatusCode >= 200 && res.StatusCode < 300
	limit := int64(maxReplyBody)
	if !ok {
		limit = maxErrorBody
	}
	buf, err := io.ReadAll(io.LimitReader(res.Body, limit))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if decErr := decodeObject(buf, out); decErr != nil {
		if !ok {
			return &HTTPStatusError{StatusCode: res.StatusCode, URL: u, Body: string(buf)}
		}
		return fmt.Errorf("decode response: %w", decErr)
	}
	return nil
}

// decodeObject requires a JSON object; arrays and scalars are not replies.
func decodeObject(buf []byte, out any) error {
	trimmed := bytes.TrimSpace(buf)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errors.New("response body is not a JSON object")
	}
	return json.Unmarshal(trimmed, out)
}
