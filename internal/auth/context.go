// Package auth provides caller identity and context helpers.
//
// This package is imported by both middleware and handler packages without
// causing import cycles.
package auth

import (
	"context"
	"net/http"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// callerContextKey is the key used to store the authenticated caller in context.
	callerContextKey contextKey = "caller"
)

// Caller is the identity a reseller gateway vouches for.
type Caller struct {
	// ID is the stable ledger key derived from the API key. The raw key is
	// never stored or logged.
	ID string

	// Host is the X-RapidAPI-Host value sent with the request.
	Host string
}

// ShortID returns a log-safe prefix of the caller ID.
func (c *Caller) ShortID() string {
	if len(c.ID) > 12 {
		return c.ID[:12]
	}
	return c.ID
}

// GetCaller retrieves the authenticated caller from the context.
//
// Returns nil if the request did not pass caller authentication.
func GetCaller(ctx context.Context) *Caller {
	caller, ok := ctx.Value(callerContextKey).(*Caller)
	if !ok {
		return nil
	}
	return caller
}

// GetCallerFromRequest is a convenience wrapper around GetCaller.
func GetCallerFromRequest(r *http.Request) *Caller {
	return GetCaller(r.Context())
}

// SetCaller stores a caller in the context.
func SetCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}
