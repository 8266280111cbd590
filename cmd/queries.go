package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/coverage-cli/internal/query"
)

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Print the query set built from the entity list",
	RunE: func(cmd *cobra.Command, _ []string) error {
		input, _ := cmd.Flags().GetString("input")
		if input == "" {
			input = cfg.Scrape.Input
		}
		count, _ := cmd.Flags().GetBool("count")

		queries, err := query.FromFile(input)
		if err != nil {
			return eris.Wrap(err, "queries")
		}
		printQueries(os.Stdout, queries, count)
		return nil
	},
}

func init() {
	queriesCmd.Flags().String("input", "", "entity list (.json, .yaml, .xlsx); defaults to scrape.input")
	queriesCmd.Flags().Bool("count", false, "print only the number of queries")
	rootCmd.AddCommand(queriesCmd)
}

func printQueries(w io.Writer, queries []string, countOnly bool) {
	if countOnly {
		_, _ = fmt.Fprintln(w, len(queries))
		return
	}
	for _, q := range queries {
		_, _ = fmt.Fprintln(w, q)
	}
}
