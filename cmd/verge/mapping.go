package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"verge-hq/verge/pkg/store"
)

var mappingFlags struct {
	dbPath          string
	frontend        string
	backend         string
	both            string
	server          string
	currentFrontend string
	domain          string
	jsonOutput      bool
}

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage domain mappings",
	Long: `Manage the routing rules the proxy consults on every request.

Mappings are stored in a SQLite database shared with the running proxy, so
changes apply immediately without a restart.`,
}

var mappingAddCmd = &cobra.Command{
	Use:   "add <domain> <port>",
	Short: "Add a new domain mapping",
	Long: `Add a new domain mapping.

Examples:
  # Route api.example.com to localhost:3000
  verge mapping add api.example.com 3000

  # Strip /api from incoming paths, prepend /v1 before forwarding
  verge mapping add api.example.com 3000 --frontend api --backend v1

  # Use the same prefix on both sides
  verge mapping add api.example.com 3000 --both api

  # Route to an external server
  verge mapping add api.example.com 8080 --server https://api.external.com`,
	Args: cobra.ExactArgs(2),
	RunE: runMappingAdd,
}

var mappingUpdateCmd = &cobra.Command{
	Use:   "update <domain> [port]",
	Short: "Update an existing mapping",
	Long: `Update an existing mapping, identified by domain and frontend URI.

Use --current-frontend to select the mapping when changing its frontend URI.

Examples:
  # Change the backend port
  verge mapping update api.example.com 4000

  # Move the mapping to a new frontend prefix
  verge mapping update api.example.com --current-frontend api --frontend api/v2`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMappingUpdate,
}

var mappingDeleteCmd = &cobra.Command{
	Use:   "delete <domain>",
	Short: "Delete domain mappings",
	Long: `Delete mappings for a domain.

Without --frontend every mapping for the domain is removed; with it only the
mapping with that exact frontend URI is.`,
	Args: cobra.ExactArgs(1),
	RunE: runMappingDelete,
}

var mappingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List mappings",
	Args:  cobra.NoArgs,
	RunE:  runMappingList,
}

func init() {
	rootCmd.AddCommand(mappingCmd)
	mappingCmd.AddCommand(mappingAddCmd, mappingUpdateCmd, mappingDeleteCmd, mappingListCmd)

	mappingCmd.PersistentFlags().StringVar(&mappingFlags.dbPath, "db-path", defaultDBPath(), "mapping database path")

	for _, c := range []*cobra.Command{mappingAddCmd, mappingUpdateCmd} {
		c.Flags().StringVarP(&mappingFlags.frontend, "frontend", "f", "", "frontend URI path (without leading slash)")
		c.Flags().StringVarP(&mappingFlags.backend, "backend", "b", "", "backend URI path (without leading slash)")
		c.Flags().StringVar(&mappingFlags.both, "both", "", "set frontend and backend URI to the same value")
		c.Flags().StringVarP(&mappingFlags.server, "server", "s", "", "external backend server URL (e.g. https://api.external.com)")
	}
	mappingUpdateCmd.Flags().StringVar(&mappingFlags.currentFrontend, "current-frontend", "", "current frontend URI identifying the mapping")

	mappingDeleteCmd.Flags().StringVarP(&mappingFlags.frontend, "frontend", "f", "", "frontend URI of the mapping to delete")

	mappingListCmd.Flags().StringVarP(&mappingFlags.domain, "domain", "d", "", "filter by domain")
	mappingListCmd.Flags().BoolVar(&mappingFlags.jsonOutput, "json", false, "output as JSON")
}

// defaultDBPath resolves the mapping database path from the environment,
// matching the default the proxy itself uses.
func defaultDBPath() string {
	if p := os.Getenv("DB_PATH"); p != "" {
		return p
	}
	return "./data/current.db"
}

func openMappingStore() (*store.Store, error) {
	s, err := store.Open(mappingFlags.dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open mapping database %s: %w", mappingFlags.dbPath, err)
	}
	return s, nil
}

func parsePort(arg string) (int, error) {
	port, err := strconv.Atoi(arg)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", arg)
	}
	return port, nil
}

func runMappingAdd(cmd *cobra.Command, args []string) error {
	domain := args[0]
	port, err := parsePort(args[1])
	if err != nil {
		return err
	}

	frontURI := mappingFlags.frontend
	backURI := mappingFlags.backend
	if mappingFlags.both != "" {
		frontURI = mappingFlags.both
		backURI = mappingFlags.both
	}

	s, err := openMappingStore()
	if err != nil {
		return err
	}
	defer s.Close()

	m, err := s.AddMapping(cmd.Context(), domain, frontURI, port, backURI, mappingFlags.server)
	if err != nil {
		return err
	}

	fmt.Println("Added mapping:")
	printMapping(m)
	return nil
}

func runMappingUpdate(cmd *cobra.Command, args []string) error {
	domain := args[0]

	s, err := openMappingStore()
	if err != nil {
		return err
	}
	defer s.Close()

	lookupURI := mappingFlags.currentFrontend
	if lookupURI == "" {
		lookupURI = mappingFlags.frontend
	}

	existing, err := s.FindByDomainAndURI(cmd.Context(), domain, lookupURI)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("no mapping found for %s with frontend URI %q", domain, lookupURI)
	}

	var upd store.MappingUpdate
	if len(args) == 2 {
		port, err := parsePort(args[1])
		if err != nil {
			return err
		}
		upd.BackPort = &port
	}
	if mappingFlags.both != "" {
		upd.FrontURI = &mappingFlags.both
		upd.BackURI = &mappingFlags.both
	} else {
		if cmd.Flags().Changed("frontend") {
			upd.FrontURI = &mappingFlags.frontend
		}
		if cmd.Flags().Changed("backend") {
			upd.BackURI = &mappingFlags.backend
		}
	}
	// --server "" clears the backend URL, reverting to localhost.
	if cmd.Flags().Changed("server") {
		upd.Backend = &mappingFlags.server
	}

	changed, err := s.UpdateMapping(cmd.Context(), existing.ID, upd)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Println("Nothing to update")
		return nil
	}

	fmt.Printf("Updated mapping for %s (%s)\n", domain, lookupURI)
	return nil
}

func runMappingDelete(cmd *cobra.Command, args []string) error {
	domain := args[0]

	s, err := openMappingStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var frontURI *string
	if cmd.Flags().Changed("frontend") {
		frontURI = &mappingFlags.frontend
	}

	deleted, err := s.DeleteMappings(cmd.Context(), domain, frontURI)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return fmt.Errorf("no mappings found for %s", domain)
	}

	fmt.Printf("Deleted %d mapping(s) for %s\n", deleted, domain)
	return nil
}

func runMappingList(cmd *cobra.Command, args []string) error {
	s, err := openMappingStore()
	if err != nil {
		return err
	}
	defer s.Close()

	mappings, err := s.ListMappings(cmd.Context(), mappingFlags.domain)
	if err != nil {
		return err
	}

	if len(mappings) == 0 {
		if mappingFlags.domain != "" {
			fmt.Printf("No mappings found for domain: %s\n", mappingFlags.domain)
		} else {
			fmt.Println("No mappings found")
		}
		return nil
	}

	if mappingFlags.jsonOutput {
		return printMappingsJSON(mappings)
	}

	fmt.Printf("%-40s %-15s %-8s %-15s %-30s\n", "DOMAIN", "FRONT_URI", "PORT", "BACK_URI", "BACKEND")
	fmt.Println(strings.Repeat("-", 108))
	for _, m := range mappings {
		fmt.Printf("%-40s %-15s %-8d %-15s %-30s\n",
			m.Domain, orSlash(m.FrontURI), m.BackPort, orSlash(m.BackURI), orDefault(m.Backend, "localhost"))
	}
	fmt.Printf("\nTotal: %d mapping(s)\n", len(mappings))
	return nil
}

// mappingJSON mirrors the database column names; a missing backend is
// rendered as null rather than an empty string.
type mappingJSON struct {
	ID        string  `json:"id"`
	Domain    string  `json:"domain"`
	FrontURI  string  `json:"front_uri"`
	BackPort  int     `json:"back_port"`
	BackURI   string  `json:"back_uri"`
	Backend   *string `json:"backend"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

func printMappingsJSON(mappings []*store.Mapping) error {
	out := make([]mappingJSON, 0, len(mappings))
	for _, m := range mappings {
		j := mappingJSON{
			ID:        m.ID,
			Domain:    m.Domain,
			FrontURI:  m.FrontURI,
			BackPort:  m.BackPort,
			BackURI:   m.BackURI,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		}
		if m.Backend != "" {
			backend := m.Backend
			j.Backend = &backend
		}
		out = append(out, j)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printMapping(m *store.Mapping) {
	fmt.Printf("  ID:        %s\n", m.ID)
	fmt.Printf("  Domain:    %s\n", m.Domain)
	fmt.Printf("  Frontend:  %s\n", orSlash(m.FrontURI))
	fmt.Printf("  Port:      %d\n", m.BackPort)
	fmt.Printf("  Backend:   %s\n", orSlash(m.BackURI))
	fmt.Printf("  Server:    %s\n", orDefault(m.Backend, "localhost"))
}

func orSlash(uri string) string {
	if uri == "" {
		return "/"
	}
	return uri
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
