package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Paths under the repository root. The tracking API is the one the
// repository exposes to its own index trackers; the public API serves
// search queries and renditions.
const (
	trackingAPIPath = "/alfresco/service/api/solr/"
	publicAPIPath   = "/alfresco/api/-default-/public/alfresco/versions/1"
	searchAPIPath   = "/alfresco/api/-default-/public/search/versions/1/search"
)

// ClientConfig configures the repository HTTP client.
type ClientConfig struct {
	URL      string
	Username string
	Password string

	// SecretHeader and Secret authenticate tracking API calls. The
	// repository rejects tracker requests without the shared secret.
	SecretHeader string
	Secret       string

	Timeout  time.Duration
	PoolSize int
}

// Client is the HTTP client shared by both change-source strategies.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	username     string
	password     string
	secretHeader string
	secret       string
	timeout      time.Duration
}

// NewClient creates a repository client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	return &Client{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        cfg.PoolSize,
				MaxIdleConnsPerHost: cfg.PoolSize,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		baseURL:      strings.TrimSuffix(cfg.URL, "/"),
		username:     cfg.Username,
		password:     cfg.Password,
		secretHeader: cfg.SecretHeader,
		secret:       cfg.Secret,
		timeout:      cfg.Timeout,
	}
}

// trackingGet performs a GET against the tracking API, returning the raw
// body. The tracking API authenticates by shared secret, not basic auth.
func (c *Client) trackingGet(ctx context.Context, endpoint string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+trackingAPIPath+endpoint, nil, true)
}

// trackingPost performs a POST against the tracking API.
func (c *Client) trackingPost(ctx context.Context, endpoint string, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+trackingAPIPath+endpoint, body, true)
}

// publicGet performs a GET against the public API with basic auth.
func (c *Client) publicGet(ctx context.Context, path string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+publicAPIPath+path, nil, false)
}

// publicPost performs a POST against the public API with basic auth.
func (c *Client) publicPost(ctx context.Context, path string, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+publicAPIPath+path, body, false)
}

// searchPost performs a search query against the search API.
func (c *Client) searchPost(ctx context.Context, body any) ([]byte, error) {
	return c.do(ctx, http.MethodPost, c.baseURL+searchAPIPath, body, false)
}

func (c *Client) do(ctx context.Context, method, fullURL string, body any, tracking bool) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tracking {
		if c.secretHeader != "" {
			req.Header.Set(c.secretHeader, c.secret)
		}
	} else if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, fullURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: repository returned status %d", method, fullURL, resp.StatusCode)
	}
	return data, nil
}

// Close releases idle connections.
func (c *Client) Close() {
	if t, ok := c.httpClient.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
