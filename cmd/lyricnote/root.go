package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"karolbroda.com/lyricnote/internal/config"
)

var (
	// global flags
	mprisService string
	syncOffset   float64
	hideHeader   bool
	lrclibURL    string
	output       string
	logFile      string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "lyricnote",
	Short: "synchronized lyrics for linux music players",
	Long: `lyricnote follows an mpris music player and shows the current lyric line
as a desktop notification or in a terminal view.

when run without a subcommand, it starts following the player.`,
	Version: "1.0.0",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(cmd, args)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&mprisService, "mpris-service", "m", "", "mpris service name (e.g., org.mpris.MediaPlayer2.spotify)")
	rootCmd.PersistentFlags().Float64VarP(&syncOffset, "sync-offset", "s", 0, "sync offset in seconds added to the playback position")
	rootCmd.PersistentFlags().BoolVarP(&hideHeader, "hide-header", "H", false, "hide header section in the terminal view")
	rootCmd.PersistentFlags().StringVar(&lrclibURL, "lrclib-url", "", "custom lrclib api url")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "", "where lyrics go: notify or tui")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write json logs to this file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig reads the environment and applies any flags the user set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	applyFlags(cmd, &cfg)
	return cfg, cfg.Validate()
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if mprisService != "" {
		cfg.MprisService = mprisService
	}
	if lrclibURL != "" {
		cfg.LrclibURL = lrclibURL
	}
	if output != "" {
		cfg.Output = output
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("sync-offset") {
		cfg.SyncOffset = secondsToDuration(syncOffset)
	}
	if cmd.Flags().Changed("hide-header") {
		cfg.HideHeader = hideHeader
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
