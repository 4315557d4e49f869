package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tilawa-app/tilawa/internal/player"
	"github.com/tilawa-app/tilawa/internal/session"
)

var (
	playAyah   int
	playFrom   float64
	playLoop   bool
	playResume bool

	playCmd = &cobra.Command{
		Use:   "play [SURAH]",
		Short: "Play a surah with gapless ayah transitions",
		Long: "\nPlay a surah, streaming each ayah and preloading the next one " +
			"so transitions\nare seamless. Without an argument, playback resumes " +
			"from the last listened\nposition. Press Ctrl-C to stop; the position " +
			"is saved for next time.",
		Example: "  tilawa play 18\n  tilawa play 2 --ayah 255\n  tilawa play 36 --from 90 --loop\n  tilawa play",
		Args:    cobra.MaximumNArgs(1),
		RunE:    runPlay,
	}
)

func init() {
	playCmd.Flags().IntVarP(&playAyah, "ayah", "a", 0, "start from this ayah")
	playCmd.Flags().Float64Var(&playFrom, "from", 0, "start this many seconds into the surah")
	playCmd.Flags().BoolVarP(&playLoop, "loop", "l", false, "restart from ayah 1 when the surah ends")
	playCmd.Flags().BoolVar(&playResume, "resume", false, "resume from the saved position for this surah")
}

func runPlay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	ctl := session.New(player.Config{
		EarlySwitchMargin: a.cfg.Engine.EarlySwitchMargin,
		PreloadMargin:     a.cfg.Engine.PreloadMargin,
		TickInterval:      a.cfg.Engine.TickInterval,
	}, func(i int, notify func(player.SlotEvent)) player.Slot {
		return player.NewOtoSlot(i, a.client, notify)
	}, a.resolver, a.kv, a.urls)
	defer ctl.Close()

	surahNumber, startAyah, err := resolvePlayTarget(ctl, args)
	if err != nil {
		return err
	}

	meta, err := a.surahMeta(ctx, surahNumber)
	if err != nil {
		return err
	}

	ctl.SetLoop(playLoop)
	ctl.Start(ctx)

	switch {
	case playResume:
		ctl.Resume(meta, true)
	default:
		ctl.LoadSurah(meta, startAyah, reciterID, true)
	}
	if playFrom > 0 {
		ctl.Seek(playFrom)
	}

	render(ctx, ctl)

	snap := ctl.Snapshot()
	fmt.Fprintf(cmd.OutOrStdout(), "\nStopped at %s, ayah %d. Listened %s this session.\n",
		snap.SurahName, snap.CurrentAyah, formatSeconds(snap.SecondsListened))
	return nil
}

// resolvePlayTarget turns the CLI arguments into a (surah, ayah) pair, using
// the last-listened record when no surah argument is given.
func resolvePlayTarget(ctl *session.Controller, args []string) (surah, ayah int, err error) {
	if len(args) == 0 {
		last, ok := ctl.LastListened()
		if !ok {
			return 0, 0, fmt.Errorf("nothing to resume: pass a surah number (1-114)")
		}
		return last.Surah, last.Ayah, nil
	}

	surah, err = strconv.Atoi(args[0])
	if err != nil || surah < 1 || surah > 114 {
		return 0, 0, fmt.Errorf("invalid surah %q: expected a number from 1 to 114", args[0])
	}
	ayah = playAyah
	if ayah < 1 {
		ayah = 1
	}
	return surah, ayah, nil
}

// render repaints a one-line playback status until the context ends.
func render(ctx context.Context, ctl *session.Controller) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := ctl.Snapshot()
			state := "playing"
			if snap.IsLoading {
				state = "loading"
			} else if !snap.IsPlaying {
				state = "paused"
			}
			fmt.Printf("\r%-12s %s · ayah %d/%d · %s / %s (%.0f%%)   ",
				state, snap.SurahName, snap.CurrentAyah, snap.TotalAyah,
				formatSeconds(snap.CurrentTime), formatSeconds(snap.TotalDuration),
				snap.Percent)
		}
	}
}

func formatSeconds(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	if m >= 60 {
		return fmt.Sprintf("%d:%02d:%02d", m/60, m%60, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
