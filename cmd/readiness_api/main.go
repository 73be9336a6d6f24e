// Package main provides the entry point for the Market Ready HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "readiness_api",
	Short: "Market Ready readiness scoring API server",
	Long: "Market Ready tracks versioned career-pathway checklists, verifies submitted evidence " +
		"with AI adjudication, scores market readiness, and turns market demand signals into " +
		"checklist revision proposals and 90-day mission plans.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
