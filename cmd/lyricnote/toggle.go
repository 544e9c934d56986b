package main

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"karolbroda.com/lyricnote/internal/store"
)

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "turn lyrics on",
	Long:  `store the enabled state and tell a running lyricnote to pick it up.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, true)
	},
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "turn lyrics off",
	Long:  `store the disabled state and tell a running lyricnote to pick it up. the current notification is closed.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return setEnabled(cmd, false)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "show the toggle and the running instance",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd)
		if err != nil {
			return err
		}

		enabled, err := st.Enabled()
		if err != nil {
			return fmt.Errorf("failed to read toggle: %w", err)
		}
		if enabled {
			fmt.Println("lyrics:   on")
		} else {
			fmt.Println("lyrics:   off")
		}

		fmt.Printf("state:    %s\n", st.Path())

		inst, found, err := st.Instance()
		if err != nil {
			return fmt.Errorf("failed to read instance: %w", err)
		}
		if !found || !alive(inst.PID) {
			fmt.Println("instance: not running")
			return nil
		}
		started := time.Unix(inst.StartedAt, 0).Format(time.DateTime)
		fmt.Printf("instance: pid %d, started %s\n", inst.PID, started)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(statusCmd)
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	st, err := store.New(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}
	return st, nil
}

func setEnabled(cmd *cobra.Command, enabled bool) error {
	st, err := openStore(cmd)
	if err != nil {
		return err
	}

	if err := st.SetEnabled(enabled); err != nil {
		if errors.Is(err, store.ErrBusy) {
			return fmt.Errorf("state store is locked, try again: %w", err)
		}
		return fmt.Errorf("failed to store toggle: %w", err)
	}

	word := "off"
	if enabled {
		word = "on"
	}

	inst, found, err := st.Instance()
	if err != nil {
		return fmt.Errorf("failed to read instance: %w", err)
	}
	if !found || !alive(inst.PID) {
		fmt.Printf("lyrics %s, applies on next start\n", word)
		return nil
	}
	if err := syscall.Kill(inst.PID, syscall.SIGUSR1); err != nil {
		return fmt.Errorf("failed to signal pid %d: %w", inst.PID, err)
	}
	fmt.Printf("lyrics %s\n", word)
	return nil
}

// alive reports whether pid names a process we may signal.
func alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}
