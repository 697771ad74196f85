package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"verge-hq/verge/pkg/syncdb"
)

var syncFlags struct {
	markerDir string
}

var syncCmd = &cobra.Command{
	Use:   "sync <target-db> <source-db>",
	Short: "Sync mappings from another database",
	Long: `Sync mapping rows from a source database into a target database.

Only rows changed since the last sync run are considered; the watermark is
kept in a ` + syncdb.MarkerFilename + ` file in the marker directory. Rows are matched by
(domain, frontend URI): missing rows are inserted, diverged rows updated.
Rows present only in the target are left alone.

Examples:
  # Pull exported mappings into the live proxy database
  verge sync ./data/current.db ./export.db`,
	Args: cobra.ExactArgs(2),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().StringVar(&syncFlags.markerDir, "marker-dir", ".", "directory holding the last-sync marker file")
}

func runSync(cmd *cobra.Command, args []string) error {
	targetPath, sourcePath := args[0], args[1]

	for _, path := range []string{targetPath, sourcePath} {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("database %s does not exist", path)
		}
	}

	res, err := syncdb.Sync(cmd.Context(), targetPath, sourcePath, syncFlags.markerDir)
	if err != nil {
		return err
	}

	fmt.Printf("Sync complete: %d inserted, %d updated\n", res.Inserted, res.Updated)
	return nil
}
