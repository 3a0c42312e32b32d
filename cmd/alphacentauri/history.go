package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/user/alphacentauri/internal/db"
)

var (
	historyHandleFlag int
	historyLimitFlag  int
	historyPruneFlag  time.Duration

	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show the session lifecycle journal",
		Long: `Lists recorded session lifecycle events, newest first.

With --prune, events older than the given age are deleted instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := resolveOptions(cmd)
			if err != nil {
				return err
			}
			database, err := db.Open(cmd.Context(), opts.DBPath)
			if err != nil {
				return fmt.Errorf("open journal: %w", err)
			}
			defer database.Close()
			repo := db.NewSessionEventRepo(database.SQL())

			if historyPruneFlag > 0 {
				cutoff := time.Now().Add(-historyPruneFlag)
				n, err := repo.Prune(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %s events older than %s\n",
					humanize.Comma(n), humanize.Time(cutoff))
				return nil
			}

			events, err := repo.List(cmd.Context(), db.ListFilter{
				Handle: historyHandleFlag,
				Limit:  historyLimitFlag,
			})
			if err != nil {
				return err
			}
			writeHistory(cmd.OutOrStdout(), events, time.Now())
			return nil
		},
	}
)

func init() {
	historyCmd.Flags().IntVar(&historyHandleFlag, "handle", 0, "Only show events for this session handle")
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 50, "Maximum number of events to show")
	historyCmd.Flags().DurationVar(&historyPruneFlag, "prune", 0, "Delete events older than this age (e.g. 720h)")
}

func writeHistory(out io.Writer, events []*db.SessionEvent, now time.Time) {
	if len(events) == 0 {
		fmt.Fprintln(out, "No session events recorded.")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tHANDLE\tEVENT\tEXIT\tCOMMAND\tCWD")
	for _, ev := range events {
		exit := "-"
		if ev.ExitCode != nil {
			exit = strconv.Itoa(*ev.ExitCode)
		}
		command := ev.CommandLine
		if command == "" {
			command = "-"
		}
		cwd := ev.Cwd
		if cwd == "" {
			cwd = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			humanize.RelTime(ev.CreatedAt, now, "ago", "from now"),
			ev.Handle, ev.Kind, exit, command, cwd)
	}
	tw.Flush()
}
