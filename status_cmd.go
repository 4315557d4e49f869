package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/tilawa-app/tilawa/internal/source"
)

var (
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the last listened position and downloaded surahs",
		Args:  cobra.NoArgs,
		RunE:  runStatus,
	}

	recitersCmd = &cobra.Command{
		Use:   "reciters",
		Short: "List the available reciters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			for _, r := range source.Reciters() {
				fmt.Fprintf(w, "%d\t%s\n", r.ID, r.Name)
			}
			return w.Flush()
		},
	}
)

func reciterCount() int {
	return len(source.Reciters())
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := newApp(context.Background())
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()

	if last, ok, err := a.kv.GetLastListened(); err == nil && ok {
		fmt.Fprintf(out, "Last listened: %s, ayah %d (%s)\n",
			last.SurahName, last.Ayah, humanize.Time(last.At))
	} else {
		fmt.Fprintln(out, "Last listened: nothing yet")
	}

	records, err := a.offline.Downloads()
	if err != nil {
		return fmt.Errorf("list downloads: %w", err)
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "Downloads:     none")
		return nil
	}

	fmt.Fprintf(out, "Downloads:     %d surahs, %s on disk\n\n",
		len(records), humanize.Bytes(uint64(a.blobs.Size())))

	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SURAH\tAYAHS\tRECITER\tDOWNLOADED")
	for _, rec := range records {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n",
			rec.Surah, rec.TotalAyah,
			source.ReciterName(rec.ReciterID),
			humanize.Time(rec.DownloadedAt))
	}
	return w.Flush()
}
