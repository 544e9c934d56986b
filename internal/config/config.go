package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

const (
	Prefix = "LYRICNOTE"

	DefaultMprisService = "org.mpris.MediaPlayer2.spotify"
	DefaultLrclibURL    = "https://lrclib.net/api"

	OutputNotify = "notify"
	OutputTUI    = "tui"

	stateDirName  = "lyricnote"
	stateFileName = "state.db"
)

type Config struct {
	MprisService string        `envconfig:"MPRIS_SERVICE" default:"org.mpris.MediaPlayer2.spotify"`
	LrclibURL    string        `envconfig:"LRCLIB_URL" default:"https://lrclib.net/api"`
	HTTPTimeout  time.Duration `envconfig:"HTTP_TIMEOUT" default:"10s"`
	LookupRate   float64       `envconfig:"LOOKUP_RATE" default:"2"`
	LookupBurst  int           `envconfig:"LOOKUP_BURST" default:"3"`

	SyncInterval   time.Duration `envconfig:"SYNC_INTERVAL" default:"500ms"`
	SyncOffset     time.Duration `envconfig:"SYNC_OFFSET" default:"0s"`
	SnapshotMaxAge time.Duration `envconfig:"SNAPSHOT_MAX_AGE" default:"5s"`

	Output     string `envconfig:"OUTPUT" default:"notify"`
	HideHeader bool   `envconfig:"HIDE_HEADER" default:"false"`
	StatePath  string `envconfig:"STATE_PATH"`

	LogFile  string `envconfig:"LOG_FILE"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads an optional .env file from the working directory and then the
// LYRICNOTE_ environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("no .env file loaded")
	}
	return FromEnv()
}

func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}

	if cfg.StatePath == "" {
		cfg.StatePath = defaultStatePath()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Output {
	case OutputNotify, OutputTUI:
	default:
		return fmt.Errorf("unknown output %q (want %s or %s)", c.Output, OutputNotify, OutputTUI)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", c.SyncInterval)
	}
	if c.LookupRate < 0 {
		return fmt.Errorf("lookup rate must not be negative, got %v", c.LookupRate)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

func defaultStatePath() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		if home, err := os.UserHomeDir(); err == nil {
			base = filepath.Join(home, ".local", "state")
		} else {
			base = os.TempDir()
		}
	}
	return filepath.Join(base, stateDirName, stateFileName)
}
