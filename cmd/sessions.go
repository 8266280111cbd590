package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/coverage-cli/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage stored login sessions for authenticated sources",
}

// -- sessions import --

var sessionsImportCmd = &cobra.Command{
	Use:   "import <source> <cookies.json>",
	Short: "Import a browser cookie export as the session for a source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, path := args[0], args[1]
		if _, ok := cfg.Sources[name]; !ok {
			return eris.Errorf("sessions import: unknown source %q", name)
		}
		domain, _ := cmd.Flags().GetString("domain")

		f, err := os.Open(path) //nolint:gosec
		if err != nil {
			return eris.Wrapf(err, "sessions import: open %s", path)
		}
		defer f.Close() //nolint:errcheck

		sess, err := session.Import(name, f, session.ImportOptions{Domain: domain})
		if err != nil {
			return eris.Wrap(err, "sessions import")
		}

		fs := session.NewFileStore(cfg.Scrape.SessionDir)
		if err := fs.Save(cmd.Context(), name, sess); err != nil {
			return eris.Wrap(err, "sessions import")
		}
		fmt.Fprintf(os.Stderr, "Imported %d cookies for %s into %s\n", len(sess.Cookies), name, fs.Path(name))
		return nil
	},
}

// -- sessions show --

var sessionsShowCmd = &cobra.Command{
	Use:   "show <source>",
	Short: "Show the cookies stored for a source (values are never printed)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fs := session.NewFileStore(cfg.Scrape.SessionDir)
		sess, err := fs.Load(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "sessions show")
		}
		formatSession(os.Stdout, sess, time.Now())
		return nil
	},
}

func init() {
	sessionsImportCmd.Flags().String("domain", "", "re-scope every cookie to this domain")

	sessionsCmd.AddCommand(sessionsImportCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// formatSession writes cookie metadata to w. Cookie values are omitted.
func formatSession(out io.Writer, s *session.Session, now time.Time) {
	_, _ = fmt.Fprintf(out, "Source: %s\nDomain: %s\nSaved:  %s\nLive:   %d/%d\n\n",
		s.Source, s.Domain, s.SavedAt.Format("2006-01-02 15:04"), len(s.Live(now)), len(s.Cookies))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tDOMAIN\tPATH\tEXPIRES")
	_, _ = fmt.Fprintln(w, "----\t------\t----\t-------")
	for _, c := range s.Cookies {
		expires := "session"
		switch {
		case c.Expired(now):
			expires = "expired"
		case c.Expiry > 0:
			expires = time.Unix(c.Expiry, 0).UTC().Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.Name, c.Domain, c.Path, expires)
	}
	_ = w.Flush()
}
