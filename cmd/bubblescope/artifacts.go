package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/FranksOps/bubblescope/internal/report"
	"github.com/FranksOps/bubblescope/internal/storage"
)

var (
	errNotListable = errors.New("the configured storage backend cannot list artifacts")
	errNotPrunable = errors.New("the configured storage backend cannot prune artifacts")
)

func newArtifactsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Inspect and prune published artifacts (sqlite, postgres and fs backends)",
	}
	cmd.AddCommand(newArtifactsListCommand(a), newArtifactsPruneCommand(a))
	return cmd
}

func newArtifactsListCommand(a *app) *cobra.Command {
	var (
		folder  string
		since   time.Duration
		limit   int
		offset  int
		summary bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored artifacts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.storage(cmd.Context())
			if err != nil {
				return err
			}
			lister, ok := store.(storage.Lister)
			if !ok {
				return errNotListable
			}

			filter := storage.Filter{Folder: folder, Limit: limit, Offset: offset}
			if since > 0 {
				t := time.Now().Add(-since)
				filter.Since = &t
			}
			objects, err := lister.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}

			switch {
			case summary && asJSON:
				return report.WriteJSON(a.stdout, report.GenerateSummary(objects))
			case summary:
				return report.WriteText(a.stdout, report.GenerateSummary(objects))
			case asJSON:
				return report.WriteJSON(a.stdout, objects)
			}

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tTYPE\tSIZE\tCREATED")
			for _, o := range objects {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Key, o.ContentType, humanize.IBytes(uint64(o.Size)), humanize.Time(o.CreatedAt))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "only list this folder")
	cmd.Flags().DurationVar(&since, "since", 0, "only list artifacts newer than this")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of artifacts")
	cmd.Flags().IntVar(&offset, "offset", 0, "skip this many artifacts")
	cmd.Flags().BoolVar(&summary, "summary", false, "print totals instead of rows")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newArtifactsPruneCommand(a *app) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete artifacts older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				olderThan = a.cfg.Storage.Retention
			}
			if olderThan <= 0 {
				return errors.New("--older-than or storage.retention must be set")
			}

			store, err := a.storage(cmd.Context())
			if err != nil {
				return err
			}
			pruner, ok := store.(storage.Pruner)
			if !ok {
				return errNotPrunable
			}

			n, err := pruner.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "pruned %d artifacts older than %s\n", n, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "age threshold (defaults to storage.retention)")
	return cmd
}
