package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrLoggedOut signals that no usable tokens remain. The only recovery is
// a full re-login via [Cache.SetPair].
var ErrLoggedOut = errors.New("logged out")

// ErrRefreshRejected marks a refresh the server refused. Only a rejection
// invalidates the stored pair; transient failures leave it for retry.
var ErrRefreshRejected = errors.New("refresh rejected")

// refreshTimeout bounds the shared refresh call once it is detached from
// the triggering caller's context.
const refreshTimeout = 30 * time.Second

// RefreshFunc exchanges a refresh token for a new pair. Implementations
// typically call the /v1/auth/refresh endpoint and must return an error
// wrapping [ErrRefreshRejected] when the server refused the token, as
// opposed to failing to reach it.
type RefreshFunc func(ctx context.Context, refreshToken string) (TokenPair, error)

// Cache holds the live token pair backed by a [TokenStore] and mediates
// silent refresh. All methods are safe for concurrent use.
type Cache struct {
	store   TokenStore
	refresh RefreshFunc

	mu     sync.Mutex
	pair   TokenPair
	loaded bool

	group singleflight.Group
}

// NewCache creates a cache over the store. A previously persisted pair is
// picked up immediately, matching a page-reload restoring a session.
func NewCache(store TokenStore, refresh RefreshFunc) (*Cache, error) {
	if store == nil {
		return nil, errors.New("nil token store")
	}
	if refresh == nil {
		return nil, errors.New("nil refresh func")
	}

	c := &Cache{store: store, refresh: refresh}
	pair, err := store.Load()
	switch {
	case err == nil:
		c.pair = pair
		c.loaded = true
	case errors.Is(err, ErrNoTokens):
	default:
		return nil, err
	}
	return c, nil
}

// AccessToken returns the current access token, or [ErrLoggedOut] when no
// pair is held.
func (c *Cache) AccessToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		return "", ErrLoggedOut
	}
	return c.pair.AccessToken, nil
}

// SetPair installs a fresh pair, typically after login, and persists it.
func (c *Cache) SetPair(pair TokenPair) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Save(pair); err != nil {
		return err
	}
	c.pair = pair
	c.loaded = true
	return nil
}

// Logout drops the pair locally. The server-side session is not touched;
// callers revoke it through the logout endpoint separately.
func (c *Cache) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pair = TokenPair{}
	c.loaded = false
	return c.store.Clear()
}

// RefreshIfStale performs the silent-refresh step after a request was
// rejected with staleAccess attached. Concurrent callers for the same
// stale token share one refresh call; callers whose token was already
// replaced get the new token without any network traffic. A server
// rejection clears the stored pair and returns [ErrLoggedOut]; a
// transient failure keeps the pair so a later call can retry.
func (c *Cache) RefreshIfStale(ctx context.Context, staleAccess string) (string, error) {
	c.mu.Lock()
	if !c.loaded {
		c.mu.Unlock()
		return "", ErrLoggedOut
	}
	if c.pair.AccessToken != staleAccess {
		// A sibling already refreshed.
		token := c.pair.AccessToken
		c.mu.Unlock()
		return token, nil
	}
	refreshToken := c.pair.RefreshToken
	c.mu.Unlock()

	// Key by the refresh token so a later failure cycle is a new flight.
	result, err, _ := c.group.Do(refreshToken, func() (any, error) {
		// The flight serves every waiter, so it must not die with the
		// first caller's context. Detached but bounded.
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		next, err := c.refresh(flightCtx, refreshToken)
		if err != nil {
			if !errors.Is(err, ErrRefreshRejected) {
				return nil, err
			}
			c.mu.Lock()
			c.pair = TokenPair{}
			c.loaded = false
			c.mu.Unlock()
			_ = c.store.Clear()
			return nil, ErrLoggedOut
		}

		c.mu.Lock()
		c.pair = next
		c.loaded = true
		c.mu.Unlock()
		if saveErr := c.store.Save(next); saveErr != nil {
			return next, saveErr
		}
		return next, nil
	})
	if err != nil {
		if errors.Is(err, ErrLoggedOut) {
			return "", ErrLoggedOut
		}
		return "", err
	}
	return result.(TokenPair).AccessToken, nil
}
