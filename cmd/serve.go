package cmd

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/formstat/formstat/internal/server"
	"github.com/formstat/formstat/internal/storage"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the database over a JSON HTTP API",
	Long: `Start an HTTP server exposing the store:

  GET /api/health
  GET /api/entities?type=
  GET /api/entities/{id}/aggregate?cutoff=&alpha=&policy=
  GET /api/entities/{id}/latent?model=&cutoff=
  GET /api/teams/{team}/form?date=&window=&alpha=`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	fmt.Fprintf(os.Stderr, "formstat API listening on %s\n", serveAddr)
	if err := http.ListenAndServe(serveAddr, server.New(db)); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
