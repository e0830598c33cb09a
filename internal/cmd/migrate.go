package cmd

import (
	"database/sql"
	"fmt"

	"silk-catalog/internal/config"
	"silk-catalog/internal/database"
	"silk-catalog/internal/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the postgres document schema",
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List embedded migrations and whether each is applied",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		states, current, err := database.MigrationStatus(db)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "database version %d\n", current)
		for _, s := range states {
			status := "pending"
			if s.Applied {
				status = "applied"
			}
			fmt.Fprintf(out, "%-8s %s\n", status, s.Source)
		}
		return nil
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply every pending migration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		return database.RunMigrations(db, logger.NewCLI(verbose))
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd, migrateUpCmd)
	rootCmd.AddCommand(migrateCmd)
}

// openDatabase connects to the configured postgres database regardless
// of STORAGE_BACKEND
func openDatabase(cmd *cobra.Command) (*sql.DB, error) {
	cfg := config.Load()
	return database.New(cmd.Context(), cfg.Database)
}
