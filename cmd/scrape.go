package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/coverage-cli/internal/config"
	"github.com/sells-group/coverage-cli/internal/pipeline"
	"github.com/sells-group/coverage-cli/internal/query"
	"github.com/sells-group/coverage-cli/internal/session"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape coverage for every query on the enabled sources",
	Long: "Builds the query set from the input file and runs one lane per source. " +
		"Progress is checkpointed; re-running the same command resumes an interrupted scrape.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		input, _ := cmd.Flags().GetString("input")
		if input == "" {
			input = cfg.Scrape.Input
		}
		requested, _ := cmd.Flags().GetStringSlice("sources")
		if cmd.Flags().Changed("retry-failed") {
			cfg.Scrape.RetryFailed, _ = cmd.Flags().GetBool("retry-failed")
		}

		sources, err := resolveSources(cfg, requested)
		if err != nil {
			return err
		}

		queries, err := query.FromFile(input)
		if err != nil {
			return eris.Wrap(err, "scrape: build queries")
		}
		if len(queries) == 0 {
			return eris.Errorf("scrape: no queries in %s", input)
		}
		zap.L().Info("scrape: starting",
			zap.String("input", input),
			zap.Int("queries", len(queries)),
			zap.Strings("sources", sources),
		)

		st, err := initStore(ctx)
		if err != nil {
			return eris.Wrap(err, "scrape: open store")
		}
		defer st.Close() //nolint:errcheck

		runner := pipeline.NewRunner(cfg, st, session.NewFileStore(cfg.Scrape.SessionDir))
		report, err := runner.Run(ctx, queries, sources)
		if report != nil {
			formatReport(os.Stdout, report)
		}
		if err != nil {
			return eris.Wrap(err, "scrape")
		}
		return nil
	},
}

func init() {
	scrapeCmd.Flags().String("input", "", "entity list (.json, .yaml, .xlsx); defaults to scrape.input")
	scrapeCmd.Flags().StringSlice("sources", nil, "sources to scrape (default: every enabled source)")
	scrapeCmd.Flags().Bool("retry-failed", false, "re-queue queries that failed in a previous run")
	rootCmd.AddCommand(scrapeCmd)
}

// resolveSources returns the requested sources, or every enabled one. A
// requested source must be configured, enabled or not.
func resolveSources(c *config.Config, requested []string) ([]string, error) {
	if len(requested) == 0 {
		enabled := c.EnabledSources()
		if len(enabled) == 0 {
			return nil, eris.New("scrape: no sources enabled")
		}
		return enabled, nil
	}

	seen := map[string]bool{}
	var out []string
	for _, name := range requested {
		if seen[name] {
			continue
		}
		if _, ok := c.Sources[name]; !ok {
			return nil, eris.Errorf("scrape: unknown source %q", name)
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// formatReport writes a per-source summary table to w.
func formatReport(out io.Writer, report *pipeline.Report) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tTOTAL\tCOMPLETED\tFAILED\tSKIPPED\tREMAINING\tRECORDS\tNOTE")
	_, _ = fmt.Fprintln(w, "------\t-----\t---------\t------\t-------\t---------\t-------\t----")

	for _, s := range report.Lanes {
		note := ""
		switch {
		case s.SessionMissing:
			note = "session missing"
		case s.Error != "":
			note = s.Error
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			s.Source, s.Total, s.Completed, s.Failed, s.Skipped, s.Remaining, s.Records, note)
	}
	t := report.Totals
	_, _ = fmt.Fprintf(w, "all\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
		t.Total, t.Completed, t.Failed, t.Skipped, t.Remaining, t.Records)
	_ = w.Flush()
}
