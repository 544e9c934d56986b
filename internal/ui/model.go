package ui

import (
	"image"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"karolbroda.com/lyricnote/internal/artwork"
	"karolbroda.com/lyricnote/internal/engine"
)

const pulseInterval = 250 * time.Millisecond

type pulseMsg time.Time

type toggledMsg struct {
	enabled bool
	err     error
}

type ModelConfig struct {
	HideHeader bool
	Enabled    bool
	// OnToggle persists and applies a toggle request. It runs off the UI
	// goroutine.
	OnToggle func(enabled bool) error
}

type Model struct {
	screen  screen
	frame   engine.Frame
	palette *artwork.Palette

	art      image.Image
	artLines []string
	artSize  [2]int

	hideHeader bool
	enabled    bool
	onToggle   func(bool) error
	toggleErr  error

	width    int
	height   int
	pulse    int
	quitting bool
}

func NewModel(cfg ModelConfig) Model {
	m := Model{
		screen:     screenIdle,
		palette:    artwork.DefaultPalette(),
		hideHeader: cfg.HideHeader,
		enabled:    cfg.Enabled,
		onToggle:   cfg.OnToggle,
	}
	if !cfg.Enabled {
		m.screen = screenOff
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return pulseCmd()
}

func pulseCmd() tea.Cmd {
	return tea.Tick(pulseInterval, func(t time.Time) tea.Msg { return pulseMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.refreshArt()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case frameMsg:
		m.apply(msg)
		m.refreshArt()
		return m, nil

	case toggledMsg:
		m.toggleErr = msg.err
		if msg.err == nil {
			m.enabled = msg.enabled
		}
		return m, nil

	case pulseMsg:
		m.pulse++
		return m, pulseCmd()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit

	case "t":
		if m.onToggle == nil {
			return m, nil
		}
		want := !m.enabled
		toggle := m.onToggle
		return m, func() tea.Msg {
			return toggledMsg{enabled: want, err: toggle(want)}
		}

	case "tab", "i":
		m.hideHeader = !m.hideHeader
		return m, nil
	}

	return m, nil
}

func (m *Model) apply(msg frameMsg) {
	m.screen = msg.screen

	switch msg.screen {
	case screenIdle, screenOff:
		m.frame = engine.Frame{}
		m.palette = artwork.DefaultPalette()
		m.enabled = msg.screen == screenIdle
	case screenPaused:
		// keep the track header and colours, only the line changes
		m.frame.Current = msg.frame.Current
		m.frame.Previous, m.frame.Next = "", ""
		m.frame.Playing = false
	default:
		m.frame = msg.frame
		if msg.palette != nil {
			m.palette = msg.palette
		} else if msg.frame.Artwork == nil {
			m.palette = artwork.DefaultPalette()
		}
	}
}

// artSize picks the header art cell size for the terminal, zero when there
// is no room for it.
func artSize(width, height int) [2]int {
	switch {
	case width < 50 || height < 20:
		return [2]int{}
	case width < 80:
		return [2]int{8, 4}
	default:
		return [2]int{12, 6}
	}
}

// refreshArt re-renders the header art when the image or the size changed.
func (m *Model) refreshArt() {
	img := m.frame.Artwork
	size := artSize(m.width, m.height)
	if img == m.art && size == m.artSize {
		return
	}
	m.art = img
	m.artSize = size
	m.artLines = nil
	if img != nil && size[0] > 0 {
		m.artLines = artwork.RenderHalfBlockArt(img, size[0], size[1])
	}
}

func (m Model) Enabled() bool       { return m.enabled }
func (m Model) Frame() engine.Frame { return m.frame }
func (m Model) IsQuitting() bool    { return m.quitting }
