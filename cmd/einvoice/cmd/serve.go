package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/einvoice/internal/gateway"
	"github.com/rezonia/einvoice/internal/lifecycle"
	"github.com/rezonia/einvoice/internal/numbering"
	"github.com/rezonia/einvoice/internal/server"
	"github.com/rezonia/einvoice/internal/storage/memory"
	"github.com/rezonia/einvoice/internal/storage/postgres"
)

var (
	serveAddress string
	serveDebug   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the issuance HTTP API",
	Long: `Starts the HTTP API exposing the issuance pipeline: draft creation,
send, status refresh, cancellation, and the gateway inbox. Without
--postgres-dsn the server runs on the in-memory store, which is only
suitable for local development.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", ":8080", "Listen address")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug mode and request logging")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := newLogger()

	if gatewayTestURL == "" || gatewayProdURL == "" {
		return fmt.Errorf("both --gateway-test-url and --gateway-prod-url are required")
	}

	var store lifecycle.Store
	if postgresDSN != "" {
		pg, err := postgres.Open(postgresDSN, log)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(context.Background()); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
		store = pg
	} else {
		log.Warn().Msg("no --postgres-dsn given, using the in-memory store")
		store = memory.NewStore()
	}

	authority := numbering.NewAuthority(store, numbering.WithLogger(log))
	client := gateway.NewClient(gatewayTestURL, gatewayProdURL, gateway.WithLogger(log))
	controller := lifecycle.NewController(store, authority, client, lifecycle.WithLogger(log))

	srv := server.NewServer(&server.Config{
		Address:      serveAddress,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Debug:        serveDebug,
	}, controller, log)

	return srv.Run()
}
