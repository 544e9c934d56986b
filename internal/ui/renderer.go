package ui

import (
	"image"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"karolbroda.com/lyricnote/internal/artwork"
	"karolbroda.com/lyricnote/internal/engine"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

type screen int

const (
	screenIdle screen = iota
	screenLine
	screenPaused
	screenNoLyrics
	screenOff
)

type frameMsg struct {
	screen  screen
	frame   engine.Frame
	palette *artwork.Palette
}

// Renderer forwards engine output to a running bubbletea program. Palette
// extraction happens here, off the UI goroutine, once per artwork.
type Renderer struct {
	sender Sender

	mu      sync.Mutex
	art     image.Image
	palette *artwork.Palette
}

var _ engine.Renderer = (*Renderer)(nil)

func NewRenderer(sender Sender) *Renderer {
	return &Renderer{sender: sender, palette: artwork.DefaultPalette()}
}

func (r *Renderer) Idle() error {
	r.send(screenIdle, engine.Frame{})
	return nil
}

func (r *Renderer) Line(f engine.Frame) error {
	r.send(screenLine, f)
	return nil
}

func (r *Renderer) Paused() error {
	r.send(screenPaused, engine.Frame{Current: engine.PausedText})
	return nil
}

func (r *Renderer) NoLyrics(f engine.Frame) error {
	f.Current = engine.NoLyricsText
	r.send(screenNoLyrics, f)
	return nil
}

func (r *Renderer) Clear() error {
	r.send(screenOff, engine.Frame{})
	return nil
}

func (r *Renderer) send(s screen, f engine.Frame) {
	r.sender.Send(frameMsg{screen: s, frame: f, palette: r.paletteFor(f.Artwork)})
}

func (r *Renderer) paletteFor(img image.Image) *artwork.Palette {
	r.mu.Lock()
	defer r.mu.Unlock()

	if img == nil {
		return nil
	}
	if img != r.art {
		r.art = img
		r.palette = artwork.ExtractPalette(img)
	}
	return r.palette
}
