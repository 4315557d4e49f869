package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tilawa-app/tilawa/internal/offline"
)

var (
	downloadAll bool
	removePurge bool

	downloadCmd = &cobra.Command{
		Use:   "download [SURAH]",
		Short: "Download a surah for offline playback",
		Long: "\nDownload every ayah of a surah into the local cache so playback " +
			"works\nwithout a network. Downloads are resumable: re-running fills " +
			"in any ayahs\nthat failed the first time.",
		Example: "  tilawa download 67\n  tilawa download 2 --reciter 3\n  tilawa download --all",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runDownload,
	}

	removeCmd = &cobra.Command{
		Use:     "remove SURAH",
		Short:   "Remove a downloaded surah",
		Example: "  tilawa remove 67\n  tilawa remove 67 --purge",
		Args:    cobra.ExactArgs(1),
		RunE:    runRemove,
	}
)

func init() {
	downloadCmd.Flags().BoolVar(&downloadAll, "all", false, "download all 114 surahs")
	removeCmd.Flags().BoolVar(&removePurge, "purge", false, "also delete the cached audio bytes")
}

func runDownload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if downloadAll {
		return downloadEverything(ctx, cmd, a)
	}
	if len(args) != 1 {
		return fmt.Errorf("pass a surah number (1-114) or --all")
	}

	surah, err := parseSurahArg(args[0])
	if err != nil {
		return err
	}
	meta, err := a.surahMeta(ctx, surah)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(meta.TotalAyah,
		progressbar.OptionSetDescription(fmt.Sprintf("Downloading %s", meta.Name)),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionClearOnFinish(),
	)

	done := 0
	cached, err := a.offline.CacheSurah(ctx, surah, meta.TotalAyah, reciterID,
		func(known, total float64) {
			done++
			_ = bar.Set(done)
			bar.Describe(fmt.Sprintf("Downloading %s (%s of ~%s)",
				meta.Name, formatSeconds(known), formatSeconds(total)))
		})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s: %d/%d ayahs cached (%s on disk total).\n",
		meta.Name, cached, meta.TotalAyah, humanize.Bytes(uint64(a.blobs.Size())))
	if cached < meta.TotalAyah {
		fmt.Fprintln(cmd.OutOrStdout(), "Some ayahs failed; re-run to fill the gaps.")
	}
	return nil
}

func downloadEverything(ctx context.Context, cmd *cobra.Command, a *app) error {
	surahs, err := a.metadata.SurahList(ctx)
	if err != nil {
		return fmt.Errorf("load surah list: %w", err)
	}

	refs := make([]offline.SurahRef, 0, len(surahs))
	for _, s := range surahs {
		refs = append(refs, offline.SurahRef{Number: s.Number, TotalAyah: s.TotalAyah})
	}

	bar := progressbar.NewOptions(len(refs),
		progressbar.OptionSetDescription("Downloading all surahs"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionClearOnFinish(),
	)

	err = a.offline.DownloadAll(ctx, refs, reciterID, func(done, _ int) {
		_ = bar.Set(done)
	})
	_ = bar.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d surahs (%s on disk).\n",
		len(refs), humanize.Bytes(uint64(a.blobs.Size())))
	return nil
}

func runRemove(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	surah, err := parseSurahArg(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if !a.offline.IsSurahDownloaded(surah, reciterID) {
		return fmt.Errorf("surah %d is not downloaded for reciter %d", surah, reciterID)
	}

	if removePurge {
		meta, err := a.surahMeta(ctx, surah)
		if err != nil {
			return err
		}
		if err := a.offline.PurgeSurahBlobs(surah, meta.TotalAyah, reciterID); err != nil {
			return err
		}
	}
	if err := a.offline.DeleteSurahCache(surah, reciterID); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Removed surah %d.\n", surah)
	return nil
}

func parseSurahArg(arg string) (int, error) {
	surah, err := strconv.Atoi(arg)
	if err != nil || surah < 1 || surah > 114 {
		return 0, fmt.Errorf("invalid surah %q: expected a number from 1 to 114", arg)
	}
	return surah, nil
}
