package engine

import (
	"context"
	"image"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"karolbroda.com/lyricnote/internal/lyrics"
	"karolbroda.com/lyricnote/internal/track"
)

const DefaultInterval = 500 * time.Millisecond

// SnapshotSource hands out the latest playback snapshot of the media
// source. ok is false once the source has gone away.
type SnapshotSource interface {
	Snapshot() (snapshot track.Snapshot, ok bool)
}

// Run is everything one scheduler run renders from. It is never modified
// after Start.
type Run struct {
	Lines   []lyrics.TimedLine
	Artwork image.Image
	Track   track.Info
}

type SchedulerConfig struct {
	Source   SnapshotSource
	Renderer Renderer
	Interval time.Duration
	// Offset is added to every estimated position.
	Offset time.Duration
	Now    func() int64
	Logger *log.Entry
}

// Scheduler re-evaluates the current line every interval while running.
// At most one loop exists at a time.
type Scheduler struct {
	source   SnapshotSource
	render   guard
	interval time.Duration
	offsetMs int64
	now      func() int64
	log      *log.Entry

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return newScheduler(cfg, guard{target: cfg.Renderer, log: logger})
}

func newScheduler(cfg SchedulerConfig, render guard) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := cfg.Now
	if now == nil {
		now = track.NowMillis
	}

	return &Scheduler{
		source:   cfg.Source,
		render:   render,
		interval: interval,
		offsetMs: cfg.Offset.Milliseconds(),
		now:      now,
		log:      render.log,
	}
}

// Start cancels the running loop, if any, and begins a new one.
func (s *Scheduler) Start(run Run) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.loop(ctx, run, done)
}

// Stop cancels the loop and waits for it to exit. Nothing is rendered by
// the stopped loop once Stop returns.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

func (s *Scheduler) loop(ctx context.Context, run Run, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if !s.tick(ctx, run) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, run Run) bool {
	snapshot, ok := s.source.Snapshot()
	if !ok {
		s.log.Debug("snapshot unavailable, sync loop ending")
		return false
	}
	if !snapshot.Playing {
		s.log.Debug("playback paused, sync loop ending")
		return false
	}

	if ctx.Err() != nil {
		return false
	}

	position := Estimate(snapshot, s.now()) + s.offsetMs

	if len(run.Lines) == 0 {
		s.render.NoLyrics(Frame{Artwork: run.Artwork, Track: run.Track, PositionMs: position, Playing: true})
		return true
	}

	idx, found := lyrics.Locate(run.Lines, position)
	if !found {
		return true
	}

	current, previous, next := lyrics.Window(run.Lines, idx)
	s.render.Line(Frame{
		Current:    current,
		Previous:   previous,
		Next:       next,
		Artwork:    run.Artwork,
		Track:      run.Track,
		PositionMs: position,
		Playing:    true,
	})

	return true
}
