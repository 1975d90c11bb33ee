// Package main implements the corpusd CLI: sync the document corpus into
// the vector index and serve access-filtered retrieval.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// configPath is the YAML config file, empty for env-and-defaults only.
	configPath string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "corpusd",
	Short: "Access-controlled corpus indexing and retrieval",
	Long: `corpusd keeps a vector index in sync with a document corpus and answers
queries filtered by each caller's access profile.

Documents carry access tags resolved from per-directory manifests; queries
only ever see chunks the requesting user's profile grants.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml (default: env vars and built-in defaults)")
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}
