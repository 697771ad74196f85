package proxy

import (
	"context"
	"strings"

	"verge-hq/verge/pkg/store"
)

// Router resolves a (host, path) pair to a mapping through the store's
// longest-prefix lookup.
type Router struct {
	store *store.Store
}

// NewRouter creates a router backed by the given mapping store.
func NewRouter(s *store.Store) *Router {
	return &Router{store: s}
}

// Resolve strips any port suffix from the Host header and looks up the
// routing rule for the path. It returns a MappingNotFoundError (matching
// ErrNoMapping) when no rule exists, and a store error when the lookup
// itself fails.
func (r *Router) Resolve(ctx context.Context, hostHeader, path string) (*store.Mapping, error) {
	host := StripPort(hostHeader)

	m, err := r.store.FindMapping(ctx, host, path)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &MappingNotFoundError{Host: host, Path: path}
	}
	return m, nil
}

// StripPort removes a :port suffix from a Host header value.
func StripPort(host string) string {
	if i := strings.Index(host, ":"); i >= 0 {
		return host[:i]
	}
	return host
}
