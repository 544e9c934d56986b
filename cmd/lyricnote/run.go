package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"karolbroda.com/lyricnote/internal/artwork"
	"karolbroda.com/lyricnote/internal/config"
	"karolbroda.com/lyricnote/internal/engine"
	"karolbroda.com/lyricnote/internal/logging"
	"karolbroda.com/lyricnote/internal/lyrics"
	"karolbroda.com/lyricnote/internal/notify"
	"karolbroda.com/lyricnote/internal/player"
	"karolbroda.com/lyricnote/internal/store"
	"karolbroda.com/lyricnote/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "follow the player and show synchronized lyrics",
	Long: `starts the lyric engine. the current line is shown as a desktop notification,
or in a terminal view with --output tui.`,
	RunE: runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	tui := cfg.Output == config.OutputTUI
	logger, closer, err := logging.Setup(logging.Options{
		File:  cfg.LogFile,
		Level: cfg.LogLevel,
		Quiet: tui,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closer.Close()
	mainLog := logging.Component(logger, "main")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer cancel()

	st, err := store.New(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("failed to open state store: %w", err)
	}
	enabled, err := st.Enabled()
	if err != nil {
		mainLog.WithError(err).Warn("could not read toggle, starting enabled")
		enabled = true
	}
	pid := os.Getpid()
	if err := st.Register(pid); err != nil {
		mainLog.WithError(err).Warn("could not register instance, enable/disable will not reach it")
	}
	defer func() {
		if err := st.Unregister(pid); err != nil {
			mainLog.WithError(err).Warn("could not unregister instance")
		}
	}()

	bus, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer bus.Close()

	client, err := lyrics.NewClient(lyrics.ClientConfig{
		BaseURL:       cfg.LrclibURL,
		Timeout:       cfg.HTTPTimeout,
		RatePerSecond: cfg.LookupRate,
		Burst:         cfg.LookupBurst,
	})
	if err != nil {
		return fmt.Errorf("failed to create lyrics client: %w", err)
	}

	source, err := player.New(bus, player.Config{
		Service: cfg.MprisService,
		MaxAge:  cfg.SnapshotMaxAge,
		Logger:  logging.Component(logger, "player"),
	})
	if err != nil {
		return fmt.Errorf("failed to create player source: %w", err)
	}

	var session *engine.Session
	toggle := func(want bool) error {
		if err := st.SetEnabled(want); err != nil {
			return err
		}
		applyToggle(session, source, want, mainLog)
		return nil
	}

	var (
		renderer engine.Renderer
		program  *tea.Program
	)
	if tui {
		defer ui.ResetTerminal()
		program = tea.NewProgram(
			ui.NewModel(ui.ModelConfig{
				HideHeader: cfg.HideHeader,
				Enabled:    enabled,
				OnToggle:   toggle,
			}),
			tea.WithAltScreen(),
		)
		renderer = ui.NewRenderer(program)
	} else {
		renderer = notify.Connect(bus, notify.Config{})
	}

	session = engine.NewSession(engine.SessionConfig{
		Lookup:   lyrics.NewFinder(client, logging.Component(logger, "lyrics")),
		Artwork:  artwork.NewLoader(cfg.HTTPTimeout),
		Renderer: renderer,
		Source:   source,
		Interval: cfg.SyncInterval,
		Offset:   cfg.SyncOffset,
		Disabled: !enabled,
		Logger:   logging.Component(logger, "engine"),
	})

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGUSR1)
	defer signal.Stop(reload)
	go watchToggle(ctx, reload, st, func(want bool) {
		applyToggle(session, source, want, mainLog)
	}, mainLog)

	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- session.Run(ctx)
	}()

	if err := source.Start(session); err != nil {
		mainLog.WithError(err).Warn("could not set up dbus signals")
	}
	defer source.Stop()

	mainLog.WithFields(log.Fields{
		"service": cfg.MprisService,
		"output":  cfg.Output,
		"enabled": enabled,
	}).Info("lyricnote started")

	if program != nil {
		go func() {
			<-ctx.Done()
			program.Quit()
		}()
		if _, err := program.Run(); err != nil {
			cancel()
			<-sessionDone
			return fmt.Errorf("error running bubble tea: %w", err)
		}
		cancel()
	}

	err = <-sessionDone
	mainLog.Info("lyricnote stopped")
	return err
}

// applyToggle hands a toggle change to the session. Enabling asks the
// player for its state again since the session ignored events while off.
func applyToggle(session *engine.Session, source *player.Source, enabled bool, logger *log.Entry) {
	session.SetEnabled(enabled)
	if !enabled {
		return
	}
	if err := source.Replay(); err != nil && !errors.Is(err, player.ErrNoPlayer) {
		logger.WithError(err).Warn("could not replay player state")
	}
}

// watchToggle re-reads the stored toggle every time a signal arrives.
func watchToggle(ctx context.Context, signals <-chan os.Signal, st *store.Store, apply func(bool), logger *log.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			enabled, err := st.Enabled()
			if err != nil {
				logger.WithError(err).Warn("could not reload toggle")
				continue
			}
			logger.WithField("enabled", enabled).Info("toggle reloaded")
			apply(enabled)
		}
	}
}
