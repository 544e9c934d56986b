package lyrics

import "math"

// DurationTolerance is the window, in seconds, inside which a candidate's
// duration counts as matching the playing track.
const DurationTolerance = 2.0

type Candidate struct {
	ID           int64   `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

func (c Candidate) HasSynced() bool {
	return c.SyncedLyrics != ""
}

// Select picks the first candidate within DurationTolerance of the target,
// in the order received, and falls back to the first candidate otherwise.
// It is not a closest-match search.
func Select(candidates []Candidate, targetDurationSeconds float64) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}

	for _, c := range candidates {
		if math.Abs(c.Duration-targetDurationSeconds) < DurationTolerance {
			return c, true
		}
	}

	return candidates[0], true
}
