package engine

import (
	"math"

	"karolbroda.com/lyricnote/internal/track"
)

// Estimate extrapolates the playback position at nowMs from a snapshot.
// A snapshot from the future (clock skew) is treated as captured now.
func Estimate(snapshot track.Snapshot, nowMs int64) int64 {
	elapsed := nowMs - snapshot.CapturedAtMs
	if elapsed < 0 {
		elapsed = 0
	}
	return snapshot.PositionMs + int64(math.Round(float64(elapsed)*snapshot.Speed))
}
