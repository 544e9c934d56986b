package lyrics

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"karolbroda.com/lyricnote/internal/track"
)

type Outcome int

const (
	OutcomeNotFound Outcome = iota
	OutcomeUnsynced
	OutcomeSynced
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotFound:
		return "not-found"
	case OutcomeUnsynced:
		return "unsynced"
	case OutcomeSynced:
		return "synced"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is what a lookup hands back to the session. Lines is empty for
// every outcome except OutcomeSynced.
type Result struct {
	Lines     []TimedLine
	Candidate *Candidate
	Outcome   Outcome
}

type Searcher interface {
	Search(ctx context.Context, query string) ([]Candidate, error)
}

// Finder resolves the lyrics for a track: search, pick a candidate, parse.
type Finder struct {
	searcher Searcher
	log      *log.Entry
}

func NewFinder(searcher Searcher, logger *log.Entry) *Finder {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Finder{searcher: searcher, log: logger}
}

func Query(t track.Info) string {
	return strings.TrimSpace(t.Title + " " + t.Artist)
}

// Find never fails: transport errors are logged and reported as
// OutcomeFailed with no lines.
func (f *Finder) Find(ctx context.Context, t track.Info) Result {
	query := Query(t)
	entry := f.log.WithFields(log.Fields{"query": query, "duration": t.DurationSeconds()})

	candidates, err := f.searcher.Search(ctx, query)
	if err != nil {
		entry.WithError(err).Warn("lyrics lookup failed")
		return Result{Outcome: OutcomeFailed}
	}

	chosen, ok := Select(candidates, t.DurationSeconds())
	if !ok {
		entry.Info("no lyrics candidates")
		return Result{Outcome: OutcomeNotFound}
	}

	entry = entry.WithFields(log.Fields{
		"candidate":  chosen.TrackName,
		"artist":     chosen.ArtistName,
		"candidates": len(candidates),
	})

	if !chosen.HasSynced() {
		entry.Info("candidate has no synced lyrics")
		return Result{Candidate: &chosen, Outcome: OutcomeUnsynced}
	}

	lines := Parse(chosen.SyncedLyrics)
	entry.WithField("lines", len(lines)).Debug("synced lyrics resolved")

	return Result{Lines: lines, Candidate: &chosen, Outcome: OutcomeSynced}
}
