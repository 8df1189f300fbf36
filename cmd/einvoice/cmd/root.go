package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	version = "1.0.0"

	// Global flags
	verbose        bool
	postgresDSN    string
	gatewayTestURL string
	gatewayProdURL string
)

var rootCmd = &cobra.Command{
	Use:   "einvoice",
	Short: "Electronic-invoice issuance pipeline",
	Long: `einvoice runs the electronic-invoice issuance pipeline: it numbers,
builds, signs, and transmits invoice documents to the tax authority
gateway and tracks their approval lifecycle.

Examples:
  # Serve the issuance API backed by Postgres
  einvoice serve --postgres-dsn postgres://localhost/einvoice

  # Serve with the in-memory store for local development
  einvoice serve --address :8080`,
	Version: version,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string (env: EINVOICE_POSTGRES_DSN)")
	rootCmd.PersistentFlags().StringVar(&gatewayTestURL, "gateway-test-url", "", "Tax authority test endpoint (env: EINVOICE_GATEWAY_TEST_URL)")
	rootCmd.PersistentFlags().StringVar(&gatewayProdURL, "gateway-prod-url", "", "Tax authority production endpoint (env: EINVOICE_GATEWAY_PROD_URL)")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// A local .env is optional
	_ = godotenv.Load()

	if postgresDSN == "" {
		postgresDSN = os.Getenv("EINVOICE_POSTGRES_DSN")
	}
	if gatewayTestURL == "" {
		gatewayTestURL = os.Getenv("EINVOICE_GATEWAY_TEST_URL")
	}
	if gatewayProdURL == "" {
		gatewayProdURL = os.Getenv("EINVOICE_GATEWAY_PROD_URL")
	}
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}
