package httpclient

import (
	"net/http"
	"time"
)

// Client defines an interface for making HTTP requests
// This allows for easy mocking and testing of HTTP calls
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures NewStandardClient.
type Options struct {
	// Timeout bounds a whole request including the body read. Zero means 30s.
	Timeout time.Duration
	// Jar stores cookies between requests. The session client shares one jar
	// between the auth API and every other call so the gateway sees the
	// current access cookie.
	Jar http.CookieJar
}

// StandardHTTPClient wraps the standard http.Client
type StandardHTTPClient struct {
	client *http.Client
}

// NewStandardClient creates a new HTTP client
func NewStandardClient(opts Options) *StandardHTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &StandardHTTPClient{
		client: &http.Client{Timeout: opts.Timeout, Jar: opts.Jar},
	}
}

// Do executes an HTTP request
func (c *StandardHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// Jar returns the cookie jar, or nil when none was configured.
func (c *StandardHTTPClient) Jar() http.CookieJar {
	return c.client.Jar
}
