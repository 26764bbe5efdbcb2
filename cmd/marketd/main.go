package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "marketd"
	version = "v1.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Sharded market analytics producer",
		Version: version,
		Long: `marketd ingests Binance market data and continuously publishes
per-symbol analytics reports into Redis. Multiple instances coordinate
through rendezvous-hashed writer leases so every symbol has exactly one
publisher at a time.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the report producer",
		Long:  "Connects to the market data feed and Redis, then produces fast and slow cycle reports for the configured symbols until interrupted.",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to YAML configuration file (MARKETD_* env vars override)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the marketd version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Printf("%s %s\n", appName, version)
		},
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}
