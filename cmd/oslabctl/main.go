package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	apiURL    string
	authToken string
	output    string
)

var rootCmd = &cobra.Command{
	Use:   "oslabctl",
	Short: "OS_LAB CLI - remote development session command line tool",
	Long:  `oslabctl is a command line interface for the OS_LAB session manager.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "a", "http://localhost:8080", "OS_LAB API URL")
	rootCmd.PersistentFlags().StringVarP(&authToken, "token", "t", os.Getenv("OSLAB_TOKEN"), "Bearer token (defaults to $OSLAB_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
}
