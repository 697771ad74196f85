// Package store implements the persisted mapping table that backs routing
// decisions.
//
// A mapping associates a (domain, front_uri) pair with a backend port, a
// back_uri path prefix, and an optional external backend base URL. Lookup
// uses longest-prefix matching on front_uri: among all rows for a domain
// whose front_uri is empty or a prefix of the request path, the row with the
// longest front_uri wins.
//
// The schema enforces no uniqueness on (domain, front_uri): duplicate rows
// may coexist, and which duplicate a lookup returns is undefined beyond the
// longest-prefix rule.
//
// Store serializes all access to the single SQLite connection through an
// internal mutex; callers cannot reach the connection except through the
// exported operations.
package store
