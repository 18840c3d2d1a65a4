package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bike-tracker",
	Short: "Ingests GPS telemetry from a push feed and serves the reading history",
	// Running without a subcommand serves.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
	SilenceUsage: true,
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	rootCmd.AddCommand(serveCmd, decodeCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
