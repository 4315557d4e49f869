// Package main provides the entry point for the Tilawa CLI application.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	debug     bool
	reciterID int

	rootCmd = &cobra.Command{
		Use:   "tilawa",
		Short: "Gapless Quran recitation playback on the CLI",
		Long: "\nTilawa streams per-ayah recitation audio and stitches it into " +
			"gapless playback.\nSurahs can be downloaded for offline listening, " +
			"and playback positions are\nremembered across sessions.",
		SilenceErrors: false,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		PersistentPreRun: func(*cobra.Command, []string) {
			if debug || os.Getenv("TILAWA_DEBUG") != "" {
				log.SetLevel(log.DebugLevel)
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVarP(&reciterID, "reciter", "r", 1,
		fmt.Sprintf("reciter ID (1-%d, see 'tilawa reciters')", reciterCount()))

	rootCmd.AddCommand(playCmd, downloadCmd, removeCmd, statusCmd, recitersCmd, configCmd)
}
