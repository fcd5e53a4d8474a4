package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// droppedHeaders are never copied from the inbound request. Authorization is
// dropped because the pooled key is sent as a query parameter instead.
// Accept-Encoding is left to the transport so relayed bodies are always
// decoded; only Content-Type is echoed back to the caller.
var droppedHeaders = map[string]struct{}{
	"Host":            {},
	"Content-Length":  {},
	"Connection":      {},
	"Authorization":   {},
	"Accept-Encoding": {},
}

// Request is an inbound call to be replayed against the upstream
type Request struct {
	Method string
	Path   string // already stripped of any local prefix
	Query  url.Values
	Header http.Header
	Body   []byte
}

// Response is a fully read upstream reply
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client sends requests to a single upstream, authenticating with a pooled key
type Client struct {
	httpClient *http.Client
	baseURL    string
	keyParam   string
}

// NewClient creates an upstream client. A zero timeout waits indefinitely.
func NewClient(baseURL, keyParam string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:  strings.TrimRight(baseURL, "/"),
		keyParam: keyParam,
	}
}

// BuildURL composes the upstream URL, replacing any inbound key parameter
// with the given key.
func (c *Client) BuildURL(path string, query url.Values, key string) string {
	q := url.Values{}
	for k, v := range query {
		q[k] = append([]string(nil), v...)
	}
	q.Set(c.keyParam, key)

	if path == "" {
		path = "/"
	} else if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path + "?" + q.Encode()
}

// Do sends req upstream using key and reads the whole response. Any HTTP
// status is returned as a Response; an error means no response was received.
func (c *Client) Do(ctx context.Context, req Request, key string) (*Response, error) {
	var body io.Reader
	if req.Method != http.MethodGet && len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.BuildURL(req.Path, req.Query, key), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for name, values := range req.Header {
		if _, drop := droppedHeaders[http.CanonicalHeaderKey(name)]; drop {
			continue
		}
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// url.Error embeds the full URL, which carries the key
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}
