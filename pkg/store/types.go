package store

import "strings"

// Mapping is a persisted routing rule associating a domain and front path
// prefix with a backend port, path prefix, and optional base URL.
type Mapping struct {
	// ID is an opaque unique identifier, generated on creation, immutable.
	ID string

	// Domain is the host the rule applies to, matched exactly.
	Domain string

	// FrontURI is the client-facing path prefix, stored without leading or
	// trailing slashes. Empty matches any path.
	FrontURI string

	// BackPort is the backend port, always appended to the backend URL.
	BackPort int

	// BackURI is the path prefix prepended before forwarding, stored
	// without leading or trailing slashes.
	BackURI string

	// Backend is an optional base URL for the backend. Empty means the
	// proxy targets http://localhost.
	Backend string

	// CreatedAt and UpdatedAt are server-set timestamps in SQLite
	// DATETIME text form. Kept as strings so the synchronization tool can
	// compare them lexically, which matches their fixed format.
	CreatedAt string
	UpdatedAt string
}

// MappingUpdate describes a partial update to a mapping. Nil fields are left
// unchanged. A MappingUpdate with all fields nil is a no-op.
type MappingUpdate struct {
	FrontURI *string
	BackURI  *string
	BackPort *int
	Backend  *string
}

// IsEmpty reports whether the update carries no fields.
func (u MappingUpdate) IsEmpty() bool {
	return u.FrontURI == nil && u.BackURI == nil && u.BackPort == nil && u.Backend == nil
}

// NormalizeURI strips leading and trailing slashes from a front or back URI.
// Mappings always store URIs in this form.
func NormalizeURI(uri string) string {
	return strings.Trim(uri, "/")
}
