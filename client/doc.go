// Package client implements the consumer side of the token lifecycle:
// a durable token cache that attaches access tokens to outgoing requests
// and recovers from authentication failures with exactly one silent
// refresh before surfacing a logged-out state.
//
// Concurrent failures coalesce into a single refresh call through a
// single-flight group, so a burst of rejected requests cannot rotate the
// refresh token more than once.
package client
