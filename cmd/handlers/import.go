package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"marketbrief/internal/config"
	"marketbrief/internal/store"
)

// NewImportCmd creates the import command
func NewImportCmd() *cobra.Command {
	var driver, dsn string

	cmd := &cobra.Command{
		Use:   "import <articles.json>",
		Short: "Load an article export into the article store",
		Long: `Insert the articles of a JSON or YAML export into the database. Links
already stored are skipped.

Examples:
  marketbrief import articles.json
  marketbrief import articles.yaml --driver postgres --dsn "postgres://localhost/news?sslmode=disable"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			st, err := openStore(cmd.Context(), cfg, sourceOptions{Driver: driver, DSN: dsn})
			if err != nil {
				return err
			}
			defer st.Close()

			file, err := store.LoadFile(args[0], cfg.Location())
			if err != nil {
				return err
			}
			return runImport(cmd.Context(), cmd.OutOrStdout(), st, file)
		},
	}

	cmd.Flags().StringVar(&driver, "driver", "", "Database driver: sqlite3 or postgres (default from config)")
	cmd.Flags().StringVar(&dsn, "dsn", "", "Database DSN (default from config)")

	return cmd
}

func runImport(ctx context.Context, out io.Writer, st *store.Store, file *store.FileSource) error {
	articles := file.All()
	n, err := st.SaveAll(ctx, articles)
	if err != nil {
		return fmt.Errorf("import stopped after %d articles: %w", n, err)
	}
	fmt.Fprintf(out, "✅ Imported %d articles (links already stored are skipped)\n", n)
	return nil
}
