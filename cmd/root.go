package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reidsanders/danbooru-utility/internal/store"
)

var (
	// DB is the optional provenance store shared by subcommands.
	// It stays nil when no database is configured.
	DB *store.Store
	// dbURL is the connection string
	dbURL string
)

// Version is the application version.
const Version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:     "danbooru-utility",
	Short:   "Danbooru dataset preparation pipeline",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// If no flag was provided, try to build the connection string from the environment
		url := dbURL
		if url == "" {
			if host := os.Getenv("POSTGRES_HOST"); host != "" {
				user := os.Getenv("POSTGRES_USER")
				pass := os.Getenv("POSTGRES_PASSWORD")
				name := os.Getenv("POSTGRES_DB")
				port := os.Getenv("POSTGRES_PORT")
				if port == "" {
					port = "5432"
				}
				url = fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
			}
		}
		// No database configured: the JSON index is the only output.
		if url == "" {
			return nil
		}

		var err error
		DB, err = store.New(cmd.Context(), url)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled
			// already (due to Ctrl+C) and the connection still needs closing.
			DB.Close(context.Background())
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// fail is the unified exit strategy: a formatted error box on stderr, then exit.
func fail(context string, err error) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for run provenance (optional)")
}
