package engine

import (
	"image"

	log "github.com/sirupsen/logrus"

	"karolbroda.com/lyricnote/internal/track"
)

const (
	// PausedText is what Paused is equivalent to showing as the current line.
	PausedText   = "Paused"
	IdleText     = "Waiting for music..."
	NoLyricsText = "No lyrics found"
)

type Frame struct {
	Current  string
	Previous string
	Next     string
	Artwork  image.Image
	Track    track.Info
	// PositionMs is the estimated playback position the frame was built for.
	PositionMs int64
	Playing    bool
}

// Renderer is the presentation surface. The engine never calls it from
// two goroutines at once.
type Renderer interface {
	// Idle shows that no track is known yet.
	Idle() error
	Line(frame Frame) error
	// Paused is Line with PausedText, no neighbours, no artwork and
	// Playing false.
	Paused() error
	NoLyrics(frame Frame) error
	// Clear removes anything shown, used when the session is disabled.
	Clear() error
}

// guard keeps renderer failures from reaching the scheduler or session.
type guard struct {
	target Renderer
	log    *log.Entry
}

func (g guard) call(op string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			g.log.WithField("op", op).Errorf("renderer panicked: %v", rec)
		}
	}()

	if err := fn(); err != nil {
		g.log.WithError(err).WithField("op", op).Warn("render failed")
	}
}

func (g guard) Idle()            { g.call("idle", g.target.Idle) }
func (g guard) Paused()          { g.call("paused", g.target.Paused) }
func (g guard) Clear()           { g.call("clear", g.target.Clear) }
func (g guard) Line(frame Frame) { g.call("line", func() error { return g.target.Line(frame) }) }
func (g guard) NoLyrics(frame Frame) {
	g.call("no-lyrics", func() error { return g.target.NoLyrics(frame) })
}
