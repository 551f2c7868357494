package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/skobkin/menulink/internal/app"
	"github.com/skobkin/menulink/internal/config"
	"github.com/skobkin/menulink/internal/journal"
	"github.com/spf13/cobra"
)

func historyCmd(opts *rootOptions) *cobra.Command {
	var (
		items []int
		kinds []string
		since time.Duration
		limit int
		wipe  bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded value changes, acknowledgements and connection events",
		Long: `Show entries from the local journal, newest first. The journal is
filled while watch, tree, set or delta run with journaling enabled.

Examples:
  menuctl history --item 3 --limit 20
  menuctl history --kind ack,send --since 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			paths, err := app.ResolvePaths(opts.configFile)
			if err != nil {
				return err
			}
			cfg, err := config.Load(paths.ConfigFile)
			if err != nil {
				return err
			}
			opts.apply(&cfg)

			db, repo, err := app.OpenJournal(ctx, paths, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			if wipe {
				if err := repo.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "journal cleared")
				return nil
			}

			q, err := buildQuery(items, kinds, since, limit, time.Now())
			if err != nil {
				return err
			}
			entries, err := repo.History(ctx, q)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), entries)

			return nil
		},
	}

	cmd.Flags().IntSliceVar(&items, "item", nil, "only entries for these item ids")
	cmd.Flags().StringSliceVar(&kinds, "kind", nil, "only these kinds: value, ack, status, send")
	cmd.Flags().DurationVar(&since, "since", 0, "only entries newer than this, e.g. 2h")
	cmd.Flags().IntVarP(&limit, "limit", "n", journal.DefaultHistoryLimit, "maximum entries to print")
	cmd.Flags().BoolVar(&wipe, "clear", false, "delete every journal entry")

	return cmd
}

func buildQuery(items []int, kinds []string, since time.Duration, limit int, now time.Time) (journal.Query, error) {
	q := journal.Query{MenuIDs: items, Limit: limit}
	for _, raw := range kinds {
		kind := journal.Kind(strings.ToLower(strings.TrimSpace(raw)))
		switch kind {
		case journal.KindValue, journal.KindAck, journal.KindStatus, journal.KindSend:
			q.Kinds = append(q.Kinds, kind)
		default:
			return journal.Query{}, fmt.Errorf("unknown entry kind %q", raw)
		}
	}
	if since > 0 {
		q.Since = now.Add(-since)
	}

	return q, nil
}

func printHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no entries")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tITEM\tVALUE\tSTATUS\tCORRELATION\tSOURCE")
	for _, e := range entries {
		item := "-"
		if e.MenuID >= 0 {
			item = fmt.Sprint(e.MenuID)
		}
		value := e.Value
		if value == "" {
			value = e.Detail
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.At.Local().Format(time.DateTime),
			e.Kind,
			item,
			orDash(preview(value)),
			orDash(e.Status),
			orDash(e.Correlation),
			orDash(e.Source),
		)
	}
	_ = tw.Flush()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}

	return s
}
