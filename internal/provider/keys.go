package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// keyFetchTimeout is the maximum duration of a key endpoint call.
const keyFetchTimeout = 5 * time.Second

// ErrEmptyKey is returned when the key endpoint answers without a key.
var ErrEmptyKey = errors.New("provider: empty API key")

// KeyFetcher obtains the provider API key, optionally for a region.
type KeyFetcher interface {
	FetchKey(ctx context.Context, region string) (string, error)
}

// KeyFetcherFunc adapts a function to KeyFetcher.
type KeyFetcherFunc func(ctx context.Context, region string) (string, error)

func (f KeyFetcherFunc) FetchKey(ctx context.Context, region string) (string, error) {
	return f(ctx, region)
}

// KeyCache keeps the API key in memory after the first successful fetch.
// Concurrent misses share a single fetch. Failures are not cached.
type KeyCache struct {
	fetcher KeyFetcher
	region  string
	group   singleflight.Group

	mu  sync.RWMutex
	key string
}

// NewKeyCache creates a KeyCache that fetches keys for region.
func NewKeyCache(fetcher KeyFetcher, region string) *KeyCache {
	return &KeyCache{fetcher: fetcher, region: region}
}

// Get returns the cached key or fetches it.
func (c *KeyCache) Get(ctx context.Context) (string, error) {
	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()
	if key != "" {
		return key, nil
	}

	v, err, _ := c.group.Do(c.region, func() (any, error) {
		k, err := c.fetcher.FetchKey(ctx, c.region)
		if err != nil {
			return "", err
		}
		if k == "" {
			return "", ErrEmptyKey
		}
		c.mu.Lock()
		c.key = k
		c.mu.Unlock()
		return k, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// HTTPKeyFetcher calls the backend key endpoint.
type HTTPKeyFetcher struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewHTTPKeyFetcher creates a fetcher for endpoint (for example
// "https://api.example.com/api/v1/maps/key"). token is sent as a bearer token.
func NewHTTPKeyFetcher(endpoint, token string) *HTTPKeyFetcher {
	return &HTTPKeyFetcher{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{Timeout: keyFetchTimeout},
	}
}

type keyResponse struct {
	Key   string `json:"key"`
	Error string `json:"error"`
}

// FetchKey performs GET endpoint?region=... and decodes {"key"} or {"error"}.
func (f *HTTPKeyFetcher) FetchKey(ctx context.Context, region string) (string, error) {
	u, err := url.Parse(f.endpoint)
	if err != nil {
		return "", fmt.Errorf("provider: key endpoint: parse url: %w", err)
	}
	if region != "" {
		q := u.Query()
		q.Set("region", region)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("provider: key endpoint: create request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("provider: key endpoint: http: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("provider: key endpoint: read response: %w", err)
	}

	var kr keyResponse
	if err := json.Unmarshal(body, &kr); err != nil {
		return "", fmt.Errorf("provider: key endpoint: status %d: unmarshal: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if kr.Error == "" {
			kr.Error = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("provider: key endpoint: status %d: %s", resp.StatusCode, kr.Error)
	}
	if kr.Key == "" {
		return "", ErrEmptyKey
	}
	return kr.Key, nil
}
