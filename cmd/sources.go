package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/coverage-cli/internal/config"
	"github.com/sells-group/coverage-cli/internal/source"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List configured sources and the adapters they run on",
	RunE: func(_ *cobra.Command, _ []string) error {
		formatSources(os.Stdout, cfg, source.Adapters())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

// formatSources writes one row per configured source. A source whose
// adapter is not among adapters is flagged.
func formatSources(out io.Writer, c *config.Config, adapters []string) {
	names := make([]string, 0, len(c.Sources))
	for name := range c.Sources {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tADAPTER\tENABLED\tFETCH\tPAGES\tDELAY_MS\tNOTE")
	_, _ = fmt.Fprintln(w, "------\t-------\t-------\t-----\t-----\t--------\t----")
	for _, name := range names {
		sc, _ := c.Source(name)
		fetch := "static"
		if sc.Render {
			fetch = "browser"
		}
		note := ""
		if !slices.Contains(adapters, sc.Adapter) {
			note = "unknown adapter"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%d\t%d-%d\t%s\n",
			name, sc.Adapter, sc.Enabled, fetch, sc.PageCap, sc.MinDelayMS, sc.MaxDelayMS, note)
	}
	_ = w.Flush()
	_, _ = fmt.Fprintf(out, "\nAdapters: %s\n", strings.Join(adapters, ", "))
}
