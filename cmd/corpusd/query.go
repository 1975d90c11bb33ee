package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	queryUser   string
	queryTopK   int
	queryAsJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search the corpus as a given user",
	Long: `Search the vector index with the access filter compiled from the named
user's profile. Chunks the profile does not grant are never returned.

Examples:
  corpusd query --user alice "how do I reset the vpn"
  corpusd query --user bob --top-k 3 --json "quarterly targets"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryUser, "user", "", "user id whose access profile filters the results")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "maximum results (default 5)")
	queryCmd.Flags().BoolVar(&queryAsJSON, "json", false, "print results as JSON")
	_ = queryCmd.MarkFlagRequired("user")
}

func runQuery(cmd *cobra.Command, args []string) error {
	a, err := newApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.retrievalService()
	if err != nil {
		return err
	}

	results, err := svc.Query(cmd.Context(), queryUser, strings.Join(args, " "), queryTopK)
	if err != nil {
		return err
	}

	if queryAsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no results")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%d. %s (chunk %d, score %.3f)\n", i+1, r.SourceKey, r.Index, r.Score)
		fmt.Fprintf(cmd.OutOrStdout(), "   %s\n", r.Text)
	}
	return nil
}
