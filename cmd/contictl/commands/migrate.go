package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"conti/internal/backend"
)

func migrateCmd() *cobra.Command {
	var (
		backendType string
		sqlitePath  string
		databaseURL string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations to the configured database",
		Long: `Opens the sqlite or postgres backend, which applies any pending
migrations, and closes it again. Flags override DATA_BACKEND,
SQLITE_DB_PATH and DATABASE_URL.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			bc, err := backend.FromAppConfig(cfg)
			if err != nil {
				return err
			}
			if backendType != "" {
				bc.Type = backend.BackendType(backendType)
			}
			if sqlitePath != "" {
				bc.SQLiteDBPath = sqlitePath
			}
			if databaseURL != "" {
				bc.DatabaseURL = databaseURL
			}
			if bc.Type == backend.MemoryBackend {
				return errors.New("the memory backend has no schema; set --backend sqlite or postgres")
			}

			result, err := backend.NewFactory(logger).CreateBackend(cmd.Context(), bc)
			if err != nil {
				return err
			}
			if err := result.Cleanup(); err != nil {
				return fmt.Errorf("close backend: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", bc.Type)
			return nil
		},
	}
	cmd.Flags().StringVar(&backendType, "backend", "", "sqlite or postgres")
	cmd.Flags().StringVar(&sqlitePath, "sqlite-path", "", "SQLite database file")
	cmd.Flags().StringVar(&databaseURL, "database-url", "", "postgres:// connection URL")
	return cmd
}
