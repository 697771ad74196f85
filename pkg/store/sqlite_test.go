package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// TestAddAndFindMapping tests the basic add/lookup round trip.
func TestAddAndFindMapping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddMapping(ctx, "example.com", "api/v1", 3000, "v1", "")
	if err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}
	if added.ID == "" {
		t.Error("Expected generated id")
	}
	if added.CreatedAt == "" || added.UpdatedAt == "" {
		t.Error("Expected server-set timestamps")
	}

	m, err := s.FindMapping(ctx, "example.com", "/api/v1/users")
	if err != nil {
		t.Fatalf("FindMapping failed: %v", err)
	}
	if m == nil {
		t.Fatal("Expected mapping, got nil")
	}
	if m.Domain != "example.com" {
		t.Errorf("Expected domain example.com, got %s", m.Domain)
	}
	if m.FrontURI != "api/v1" {
		t.Errorf("Expected front_uri api/v1, got %s", m.FrontURI)
	}
	if m.BackPort != 3000 {
		t.Errorf("Expected back_port 3000, got %d", m.BackPort)
	}
}

// TestFindMapping_LongestMatchFirst tests the longest-prefix tie-break.
func TestFindMapping_LongestMatchFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddMapping(ctx, "example.com", "api", 3000, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddMapping(ctx, "example.com", "api/v1", 3001, "v1", ""); err != nil {
		t.Fatal(err)
	}

	m, err := s.FindMapping(ctx, "example.com", "/api/v1/users")
	if err != nil {
		t.Fatalf("FindMapping failed: %v", err)
	}
	if m == nil || m.BackPort != 3001 {
		t.Errorf("Expected longer match (port 3001), got %+v", m)
	}

	m, err = s.FindMapping(ctx, "example.com", "/api/v2/users")
	if err != nil {
		t.Fatalf("FindMapping failed: %v", err)
	}
	if m == nil || m.BackPort != 3000 {
		t.Errorf("Expected shorter match (port 3000), got %+v", m)
	}
}

// TestFindMapping_EmptyFrontURI tests that an empty front_uri matches any path.
func TestFindMapping_EmptyFrontURI(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddMapping(ctx, "example.com", "", 4000, "", ""); err != nil {
		t.Fatal(err)
	}

	m, err := s.FindMapping(ctx, "example.com", "/anything/at/all")
	if err != nil {
		t.Fatalf("FindMapping failed: %v", err)
	}
	if m == nil || m.BackPort != 4000 {
		t.Errorf("Expected catch-all mapping, got %+v", m)
	}
}

// TestFindMapping_NoMatch tests absence of a match is not an error.
func TestFindMapping_NoMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.FindMapping(ctx, "unknown.example", "/")
	if err != nil {
		t.Fatalf("FindMapping failed: %v", err)
	}
	if m != nil {
		t.Errorf("Expected nil for unmapped host, got %+v", m)
	}
}

// TestAddMapping_NormalizesURIs tests leading/trailing slash stripping.
func TestAddMapping_NormalizesURIs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m, err := s.AddMapping(ctx, "example.com", "/api/v1/", 3000, "/v1/", "")
	if err != nil {
		t.Fatalf("AddMapping failed: %v", err)
	}
	if m.FrontURI != "api/v1" {
		t.Errorf("Expected normalized front_uri api/v1, got %q", m.FrontURI)
	}
	if m.BackURI != "v1" {
		t.Errorf("Expected normalized back_uri v1, got %q", m.BackURI)
	}
}

// TestAddMapping_Backend tests external backend persistence.
func TestAddMapping_Backend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddMapping(ctx, "example.com", "", 8080, "", "https://api.external.com"); err != nil {
		t.Fatal(err)
	}

	m, err := s.FindMapping(ctx, "example.com", "/users")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil || m.Backend != "https://api.external.com" {
		t.Errorf("Expected backend https://api.external.com, got %+v", m)
	}
}

// TestUpdateMapping tests partial updates.
func TestUpdateMapping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddMapping(ctx, "example.com", "api", 3000, "", "")
	if err != nil {
		t.Fatal(err)
	}

	port := 4000
	updated, err := s.UpdateMapping(ctx, added.ID, MappingUpdate{BackPort: &port})
	if err != nil {
		t.Fatalf("UpdateMapping failed: %v", err)
	}
	if !updated {
		t.Error("Expected update to be applied")
	}

	m, err := s.GetMappingByID(ctx, added.ID)
	if err != nil {
		t.Fatal(err)
	}
	if m.BackPort != 4000 {
		t.Errorf("Expected back_port 4000, got %d", m.BackPort)
	}
	if m.FrontURI != "api" {
		t.Errorf("Unsupplied field changed: front_uri %q", m.FrontURI)
	}
}

// TestUpdateMapping_Empty tests that a no-op update is a no-op, not an error.
func TestUpdateMapping_Empty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddMapping(ctx, "example.com", "api", 3000, "", "")
	if err != nil {
		t.Fatal(err)
	}

	updated, err := s.UpdateMapping(ctx, added.ID, MappingUpdate{})
	if err != nil {
		t.Fatalf("UpdateMapping failed: %v", err)
	}
	if updated {
		t.Error("Expected empty update to report false")
	}
}

// TestDeleteMappings covers domain-wide and exact deletion plus DomainExists.
func TestDeleteMappings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddMapping(ctx, "example.com", "api", 3000, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddMapping(ctx, "example.com", "web", 3001, "", ""); err != nil {
		t.Fatal(err)
	}

	frontURI := "api"
	n, err := s.DeleteMappings(ctx, "example.com", &frontURI)
	if err != nil {
		t.Fatalf("DeleteMappings failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 row deleted, got %d", n)
	}

	exists, err := s.DomainExists(ctx, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("Expected domain to still exist")
	}

	n, err = s.DeleteMappings(ctx, "example.com", nil)
	if err != nil {
		t.Fatalf("DeleteMappings failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected 1 remaining row deleted, got %d", n)
	}

	exists, err = s.DomainExists(ctx, "example.com")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("Expected domain to be gone after last row removed")
	}

	mappings, err := s.ListMappings(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 0 {
		t.Errorf("Expected empty list, got %d rows", len(mappings))
	}
}

// TestListMappings_Ordering tests (domain, front_uri) ordering and filtering.
func TestListMappings_Ordering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, row := range []struct {
		domain, front string
		port          int
	}{
		{"b.example", "x", 1},
		{"a.example", "z", 2},
		{"a.example", "a", 3},
	} {
		if _, err := s.AddMapping(ctx, row.domain, row.front, row.port, "", ""); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.ListMappings(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 mappings, got %d", len(all))
	}
	want := []string{"a.example/a", "a.example/z", "b.example/x"}
	for i, m := range all {
		got := m.Domain + "/" + m.FrontURI
		if got != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i, want[i], got)
		}
	}

	filtered, err := s.ListMappings(ctx, "a.example")
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 2 {
		t.Errorf("Expected 2 mappings for a.example, got %d", len(filtered))
	}
}

// TestDuplicateRows verifies duplicate (domain, front_uri) rows are permitted.
func TestDuplicateRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AddMapping(ctx, "example.com", "api", 3000, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddMapping(ctx, "example.com", "api", 3001, "", ""); err != nil {
		t.Fatalf("Expected duplicate row to be accepted: %v", err)
	}

	// Lookup returns one of the duplicates; which one is undefined.
	m, err := s.FindMapping(ctx, "example.com", "/api/users")
	if err != nil {
		t.Fatal(err)
	}
	if m == nil {
		t.Fatal("Expected a mapping")
	}
	if m.BackPort != 3000 && m.BackPort != 3001 {
		t.Errorf("Expected one of the duplicate rows, got port %d", m.BackPort)
	}
}
