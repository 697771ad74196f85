// Package syncdb implements one-way replication of mapping rows between two
// SQLite databases.
//
// A run reads every source row whose updated_at is newer than the watermark
// stored in a .lastsync file, then reconciles each against the target by its
// (domain, front_uri) pair: missing rows are inserted under a fresh id,
// diverged rows are updated in place. Target-only rows survive untouched,
// which makes the replication safe to point at a live proxy database.
//
// Timestamps are compared as strings; SQLite's CURRENT_TIMESTAMP format
// sorts lexically in timestamp order, so no parsing is needed.
package syncdb
