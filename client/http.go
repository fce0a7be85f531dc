package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// HTTPClient wraps an http.Client with the token cache. Every request
// carries the current access token; a 401 response triggers exactly one
// silent refresh and retry before the failure is surfaced.
type HTTPClient struct {
	cache *Cache
	inner *http.Client
}

// NewHTTPClient wraps inner with the cache. A nil inner uses
// http.DefaultClient.
func NewHTTPClient(cache *Cache, inner *http.Client) *HTTPClient {
	if inner == nil {
		inner = http.DefaultClient
	}
	return &HTTPClient{cache: cache, inner: inner}
}

// Do sends the request with the access token attached. Requests that may
// be retried need a GetBody (http.NewRequest sets it for common body
// types).
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	token, err := c.cache.AccessToken()
	if err != nil {
		return nil, err
	}

	resp, err := c.send(req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// One silent refresh, then one retry.
	resp.Body.Close()
	next, err := c.cache.RefreshIfStale(req.Context(), token)
	if err != nil {
		return nil, err
	}
	return c.send(req, next)
}

func (c *HTTPClient) send(req *http.Request, token string) (*http.Response, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("rewind request body: %w", err)
		}
		clone.Body = body
	}
	clone.Header.Set("Authorization", "Bearer "+token)
	return c.inner.Do(clone)
}

// RefreshEndpoint builds a [RefreshFunc] that calls the engine's refresh
// endpoint at baseURL, e.g. "https://auth.example.org".
func RefreshEndpoint(inner *http.Client, baseURL string) RefreshFunc {
	if inner == nil {
		inner = http.DefaultClient
	}
	url := strings.TrimRight(baseURL, "/") + "/v1/auth/refresh"

	return func(ctx context.Context, refreshToken string) (TokenPair, error) {
		body, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
		if err != nil {
			return TokenPair{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return TokenPair{}, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := inner.Do(req)
		if err != nil {
			return TokenPair{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			// Only a 4xx means the server looked at the token and said
			// no; a 5xx is the server's problem and worth retrying.
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return TokenPair{}, fmt.Errorf("%w: status %d", ErrRefreshRejected, resp.StatusCode)
			}
			return TokenPair{}, fmt.Errorf("refresh failed: status %d", resp.StatusCode)
		}

		var pair TokenPair
		if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
			return TokenPair{}, fmt.Errorf("decode refresh response: %w", err)
		}
		return pair, nil
	}
}
