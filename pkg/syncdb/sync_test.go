package syncdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"verge-hq/verge/pkg/store"
)

func createTestDB(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	db, err := openDB(path)
	if err != nil {
		t.Fatalf("openDB failed: %v", err)
	}
	db.Close()
	return path
}

func insertTestMapping(t *testing.T, path, id, domain, frontURI string, backPort int, backURI, backend, createdAt, updatedAt string) {
	t.Helper()
	db, err := openDB(path)
	if err != nil {
		t.Fatalf("openDB failed: %v", err)
	}
	defer db.Close()

	_, err = db.Exec(
		"INSERT INTO mappings ("+mappingColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		id, domain, frontURI, backPort, backURI, nullableBackend(backend), createdAt, updatedAt)
	if err != nil {
		t.Fatalf("inserting test mapping: %v", err)
	}
}

func countMappings(t *testing.T, path string) int {
	t.Helper()
	db, err := openDB(path)
	if err != nil {
		t.Fatalf("openDB failed: %v", err)
	}
	defer db.Close()

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM mappings").Scan(&count); err != nil {
		t.Fatalf("counting mappings: %v", err)
	}
	return count
}

func getMapping(t *testing.T, path, domain, frontURI string) *store.Mapping {
	t.Helper()
	db, err := openDB(path)
	if err != nil {
		t.Fatalf("openDB failed: %v", err)
	}
	defer db.Close()

	m, err := findByDomainAndURI(context.Background(), db, domain, frontURI)
	if err != nil {
		t.Fatalf("finding mapping: %v", err)
	}
	return m
}

func TestFirstSyncCopiesAllRecords(t *testing.T) {
	dir := t.TempDir()
	source := createTestDB(t, dir, "source.db")
	target := createTestDB(t, dir, "target.db")

	insertTestMapping(t, source, "id1", "example.com", "api/v1", 3000, "v1", "",
		"2024-01-01 00:00:00", "2024-01-01 00:00:00")
	insertTestMapping(t, source, "id2", "test.com", "api/v2", 4000, "v2", "http://backend.com",
		"2024-01-02 00:00:00", "2024-01-02 00:00:00")

	res, err := Sync(context.Background(), target, source, dir)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Inserted != 2 || res.Updated != 0 {
		t.Errorf("result = %+v, want 2 inserted 0 updated", res)
	}
	if n := countMappings(t, target); n != 2 {
		t.Errorf("target has %d mappings, want 2", n)
	}

	m1 := getMapping(t, target, "example.com", "api/v1")
	if m1 == nil {
		t.Fatal("first mapping missing from target")
	}
	if m1.BackPort != 3000 || m1.BackURI != "v1" || m1.Backend != "" {
		t.Errorf("first mapping fields wrong: %+v", m1)
	}
	if m1.ID == "id1" {
		t.Error("inserted row kept the source id")
	}

	m2 := getMapping(t, target, "test.com", "api/v2")
	if m2 == nil || m2.Backend != "http://backend.com" {
		t.Errorf("second mapping = %+v, want external backend preserved", m2)
	}

	if _, err := os.Stat(filepath.Join(dir, MarkerFilename)); err != nil {
		t.Errorf("marker file not written: %v", err)
	}
}

func TestSyncSkipsRecordsOlderThanMarker(t *testing.T) {
	dir := t.TempDir()
	source := createTestDB(t, dir, "source.db")
	target := createTestDB(t, dir, "target.db")

	insertTestMapping(t, source, "id1", "old.com", "api", 3000, "api", "",
		"2024-01-01 00:00:00", "2024-01-01 00:00:00")
	insertTestMapping(t, source, "id2", "new.com", "api", 4000, "api", "",
		"2024-06-01 00:00:00", "2024-06-01 00:00:00")

	if err := writeMarker(dir, "2024-03-01 00:00:00"); err != nil {
		t.Fatalf("writeMarker failed: %v", err)
	}

	res, err := Sync(context.Background(), target, source, dir)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Inserted != 1 || res.Updated != 0 {
		t.Errorf("result = %+v, want 1 inserted", res)
	}
	if getMapping(t, target, "old.com", "api") != nil {
		t.Error("row older than the marker was copied")
	}
	if getMapping(t, target, "new.com", "api") == nil {
		t.Error("row newer than the marker was not copied")
	}
}

func TestSyncUpdatesDivergedRecord(t *testing.T) {
	dir := t.TempDir()
	source := createTestDB(t, dir, "source.db")
	target := createTestDB(t, dir, "target.db")

	insertTestMapping(t, source, "src-id", "example.com", "api", 5000, "new-api", "http://new-backend.com",
		"2024-01-01 00:00:00", "2024-06-01 00:00:00")
	insertTestMapping(t, target, "tgt-id", "example.com", "api", 3000, "old-api", "",
		"2024-01-01 00:00:00", "2024-01-01 00:00:00")

	res, err := Sync(context.Background(), target, source, dir)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 1 {
		t.Errorf("result = %+v, want 1 updated", res)
	}

	m := getMapping(t, target, "example.com", "api")
	if m == nil {
		t.Fatal("mapping missing after update")
	}
	if m.ID != "tgt-id" {
		t.Errorf("update replaced the target id: %q", m.ID)
	}
	if m.BackPort != 5000 || m.BackURI != "new-api" || m.Backend != "http://new-backend.com" {
		t.Errorf("routing fields not updated: %+v", m)
	}
	if m.UpdatedAt != "2024-06-01 00:00:00" {
		t.Errorf("updated_at = %q, want the source timestamp", m.UpdatedAt)
	}
}

func TestSyncLeavesIdenticalRecordsAlone(t *testing.T) {
	dir := t.TempDir()
	source := createTestDB(t, dir, "source.db")
	target := createTestDB(t, dir, "target.db")

	insertTestMapping(t, source, "src-id", "example.com", "api", 3000, "api", "",
		"2024-01-01 00:00:00", "2024-06-01 00:00:00")
	insertTestMapping(t, target, "tgt-id", "example.com", "api", 3000, "api", "",
		"2024-01-01 00:00:00", "2024-01-01 00:00:00")

	res, err := Sync(context.Background(), target, source, dir)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 0 {
		t.Errorf("result = %+v, want no changes", res)
	}
	if m := getMapping(t, target, "example.com", "api"); m.ID != "tgt-id" {
		t.Errorf("target id changed: %q", m.ID)
	}
}

func TestSyncPreservesTargetOnlyRecords(t *testing.T) {
	dir := t.TempDir()
	source := createTestDB(t, dir, "source.db")
	target := createTestDB(t, dir, "target.db")

	insertTestMapping(t, target, "tgt-only", "target-only.com", "api", 8080, "api", "",
		"2024-01-01 00:00:00", "2024-01-01 00:00:00")
	insertTestMapping(t, source, "src-only", "source-only.com", "api", 9090, "api", "",
		"2024-01-01 00:00:00", "2024-06-01 00:00:00")

	res, err := Sync(context.Background(), target, source, dir)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Inserted != 1 {
		t.Errorf("result = %+v, want 1 inserted", res)
	}
	if getMapping(t, target, "target-only.com", "api") == nil {
		t.Error("target-only row was lost")
	}
	if getMapping(t, target, "source-only.com", "api") == nil {
		t.Error("source-only row was not copied")
	}
}

func TestSecondSyncIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	source := createTestDB(t, dir, "source.db")
	target := createTestDB(t, dir, "target.db")

	insertTestMapping(t, source, "id1", "first.com", "api", 3000, "api", "",
		"2024-01-01 00:00:00", "2024-01-01 00:00:00")

	ctx := context.Background()
	res, err := Sync(ctx, target, source, dir)
	if err != nil {
		t.Fatalf("first Sync failed: %v", err)
	}
	if res.Inserted != 1 {
		t.Fatalf("first run: %+v, want 1 inserted", res)
	}

	res, err = Sync(ctx, target, source, dir)
	if err != nil {
		t.Fatalf("second Sync failed: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 0 {
		t.Errorf("second run: %+v, want no changes", res)
	}

	// A row updated past the new marker is picked up by a later run.
	insertTestMapping(t, source, "id2", "second.com", "api", 4000, "api", "",
		"2099-01-01 00:00:00", "2099-01-01 00:00:00")
	res, err = Sync(ctx, target, source, dir)
	if err != nil {
		t.Fatalf("third Sync failed: %v", err)
	}
	if res.Inserted != 1 || res.Updated != 0 {
		t.Errorf("third run: %+v, want 1 inserted", res)
	}
	if n := countMappings(t, target); n != 2 {
		t.Errorf("target has %d mappings, want 2", n)
	}
}

func TestSyncEmptySource(t *testing.T) {
	dir := t.TempDir()
	source := createTestDB(t, dir, "source.db")
	target := createTestDB(t, dir, "target.db")

	res, err := Sync(context.Background(), target, source, dir)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Inserted != 0 || res.Updated != 0 {
		t.Errorf("result = %+v, want no changes", res)
	}
	if n := countMappings(t, target); n != 0 {
		t.Errorf("target has %d mappings, want 0", n)
	}
}

func TestMarkerWrittenWithCurrentTime(t *testing.T) {
	dir := t.TempDir()
	source := createTestDB(t, dir, "source.db")
	target := createTestDB(t, dir, "target.db")

	before := time.Now().UTC().Format(markerLayout)
	if _, err := Sync(context.Background(), target, source, dir); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	after := time.Now().UTC().Format(markerLayout)

	marker, err := readMarker(dir)
	if err != nil {
		t.Fatalf("readMarker failed: %v", err)
	}
	if marker < before || marker > after {
		t.Errorf("marker = %q, want between %q and %q", marker, before, after)
	}
}

func TestReadMarkerDefaultsToEpoch(t *testing.T) {
	marker, err := readMarker(t.TempDir())
	if err != nil {
		t.Fatalf("readMarker failed: %v", err)
	}
	if marker != Epoch {
		t.Errorf("marker = %q, want epoch", marker)
	}
}

func TestReadMarkerTrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, MarkerFilename), []byte("2024-06-15 12:30:00\n"), 0644); err != nil {
		t.Fatalf("writing marker: %v", err)
	}
	marker, err := readMarker(dir)
	if err != nil {
		t.Fatalf("readMarker failed: %v", err)
	}
	if marker != "2024-06-15 12:30:00" {
		t.Errorf("marker = %q", marker)
	}
}

func TestNeedsUpdate(t *testing.T) {
	base := store.Mapping{
		ID:        "id",
		Domain:    "example.com",
		FrontURI:  "api",
		BackPort:  3000,
		BackURI:   "api",
		CreatedAt: "2024-01-01 00:00:00",
		UpdatedAt: "2024-01-01 00:00:00",
	}

	tests := []struct {
		name   string
		change func(m *store.Mapping)
		want   bool
	}{
		{"identical", func(m *store.Mapping) {}, false},
		{"port", func(m *store.Mapping) { m.BackPort = 9999 }, true},
		{"back uri", func(m *store.Mapping) { m.BackURI = "different" }, true},
		{"backend", func(m *store.Mapping) { m.Backend = "http://backend.com" }, true},
		{"domain", func(m *store.Mapping) { m.Domain = "other.com" }, true},
		{"front uri", func(m *store.Mapping) { m.FrontURI = "other" }, true},
		{"id only", func(m *store.Mapping) { m.ID = "different-id" }, false},
		{"timestamps only", func(m *store.Mapping) {
			m.CreatedAt = "2025-01-01 00:00:00"
			m.UpdatedAt = "2025-01-01 00:00:00"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			other := base
			tt.change(&other)
			if got := needsUpdate(&base, &other); got != tt.want {
				t.Errorf("needsUpdate = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestSyncAgainstStoreDatabase verifies the sync tool and the mapping store
// agree on the schema by syncing into a database the store created.
func TestSyncAgainstStoreDatabase(t *testing.T) {
	dir := t.TempDir()
	source := createTestDB(t, dir, "source.db")
	targetPath := filepath.Join(dir, "target.db")

	s, err := store.Open(targetPath)
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	if _, err := s.AddMapping(context.Background(), "local.test", "app", 3000, "", ""); err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}
	s.Close()

	insertTestMapping(t, source, "id1", "synced.test", "api", 4000, "v1", "",
		"2024-01-01 00:00:00", "2024-06-01 00:00:00")

	res, err := Sync(context.Background(), targetPath, source, dir)
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if res.Inserted != 1 {
		t.Errorf("result = %+v, want 1 inserted", res)
	}

	s, err = store.Open(targetPath)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer s.Close()

	m, err := s.FindMapping(context.Background(), "synced.test", "/api/users")
	if err != nil {
		t.Fatalf("FindMapping failed: %v", err)
	}
	if m == nil || m.BackPort != 4000 {
		t.Errorf("synced row not routable through the store: %+v", m)
	}
	local, err := s.FindByDomainAndURI(context.Background(), "local.test", "app")
	if err != nil {
		t.Fatalf("FindByDomainAndURI failed: %v", err)
	}
	if local == nil {
		t.Error("pre-existing store row lost after sync")
	}
}
