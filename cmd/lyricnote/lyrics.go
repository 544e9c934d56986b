package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"karolbroda.com/lyricnote/internal/colors"
	"karolbroda.com/lyricnote/internal/config"
	"karolbroda.com/lyricnote/internal/logging"
	"karolbroda.com/lyricnote/internal/lyrics"
	"karolbroda.com/lyricnote/internal/track"
)

var lyricsCmd = &cobra.Command{
	Use:   "lyrics",
	Short: "lyrics search and preview",
	Long:  `query lrclib directly, the same way the engine does for the playing track.`,
}

var lyricsSearchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "list lrclib candidates for a query",
	Long:  `search lrclib.net and list every candidate with its duration and lyric availability.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		client, err := newLyricsClient(cfg)
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		fmt.Printf("searching for: %s\n\n", query)

		candidates, err := client.Search(cmd.Context(), query)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		if len(candidates) == 0 {
			fmt.Println("no candidates found")
			return nil
		}

		fmt.Printf("found %d candidate(s):\n\n", len(candidates))
		for _, c := range candidates {
			kind := "plain"
			switch {
			case c.HasSynced():
				kind = "synced"
			case c.Instrumental:
				kind = "instrumental"
			case c.PlainLyrics == "":
				kind = "none"
			}
			fmt.Printf("  #%-9d %s - %s", c.ID, c.ArtistName, c.TrackName)
			if c.AlbumName != "" {
				fmt.Printf(" (%s)", c.AlbumName)
			}
			fmt.Printf("  [%s, %s]\n", colors.FormatTime(int64(c.Duration*1000)), kind)
		}
		return nil
	},
}

var lyricsPreviewCmd = &cobra.Command{
	Use:   "preview <artist> <title> [duration-seconds]",
	Short: "resolve and print synced lyrics",
	Long: `run the same lookup the engine runs for a track and print the timed lines.
pass the track duration to pick the candidate the engine would pick.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		client, err := newLyricsClient(cfg)
		if err != nil {
			return err
		}

		info := track.Info{Artist: args[0], Title: args[1]}
		if len(args) == 3 {
			seconds, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[2], err)
			}
			info.DurationMs = int64(seconds * 1000)
		}

		logger, closer, err := logging.Setup(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel})
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		defer closer.Close()

		finder := lyrics.NewFinder(client, logging.Component(logger, "lyrics"))
		result := finder.Find(cmd.Context(), info)

		fmt.Printf("outcome: %s\n", result.Outcome)
		if result.Candidate != nil {
			fmt.Printf("match:   %s - %s (#%d)\n", result.Candidate.ArtistName, result.Candidate.TrackName, result.Candidate.ID)
		}
		if len(result.Lines) == 0 {
			return nil
		}

		fmt.Println()
		for _, line := range result.Lines {
			text := line.Text
			if strings.TrimSpace(text) == "" {
				text = "♪"
			}
			fmt.Printf("  %6s  %s\n", colors.FormatTime(line.TimestampMs), text)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lyricsCmd)

	lyricsCmd.AddCommand(lyricsSearchCmd)
	lyricsCmd.AddCommand(lyricsPreviewCmd)
}

func newLyricsClient(cfg config.Config) (*lyrics.Client, error) {
	client, err := lyrics.NewClient(lyrics.ClientConfig{
		BaseURL: cfg.LrclibURL,
		Timeout: cfg.HTTPTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lyrics client: %w", err)
	}
	return client, nil
}
