package track

import (
	"image"
	"time"
)

type Info struct {
	Title      string
	Artist     string
	Album      string
	DurationMs int64
	ArtworkURL string
	// Artwork is set when the source already holds a decoded image.
	Artwork image.Image
}

// Identity is the change-detection key for a track. Album is deliberately
// not part of it.
func (t Info) Identity() string {
	return t.Title + "-" + t.Artist
}

func (t Info) DurationSeconds() float64 {
	return float64(t.DurationMs) / 1000.0
}

func (t Info) IsValid() bool {
	return t.Title != ""
}

// Snapshot is a point-in-time playback report. CapturedAtMs is read from
// NowMillis so it can be compared against later readings of the same clock.
type Snapshot struct {
	PositionMs   int64
	CapturedAtMs int64
	Speed        float64
	Playing      bool
}

var epoch = time.Now()

// NowMillis returns monotonic milliseconds since process start.
func NowMillis() int64 {
	return time.Since(epoch).Milliseconds()
}
