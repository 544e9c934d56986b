package engine

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"karolbroda.com/lyricnote/internal/lyrics"
	"karolbroda.com/lyricnote/internal/track"
)

var (
	ErrSessionStarted = errors.New("session already started")
	ErrSessionStopped = errors.New("session stopped")
)

type StateKind int

const (
	StateIdle StateKind = iota
	StateResolving
	StateActive
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateActive:
		return "active"
	default:
		return "unknown"
	}
}

// Lookup resolves lyrics for a track. It reports failure as an empty
// result, never as an error.
type Lookup interface {
	Find(ctx context.Context, t track.Info) lyrics.Result
}

type ArtworkLoader interface {
	Load(ctx context.Context, url string) (image.Image, error)
}

type Status struct {
	State    StateKind
	Identity string
	Track    track.Info
	Lines    int
	Outcome  lyrics.Outcome
	Playing  bool
	Enabled  bool
	Syncing  bool
	Snapshot track.Snapshot
}

type SessionConfig struct {
	Lookup   Lookup
	Artwork  ArtworkLoader
	Renderer Renderer
	Source   SnapshotSource
	Interval time.Duration
	Offset   time.Duration
	Now      func() int64
	Disabled bool
	Logger   *log.Entry
}

type (
	metadataEvent struct{ track track.Info }
	playbackEvent struct{ snapshot track.Snapshot }
	enableEvent   struct{ enabled bool }
	sourceGone    struct{}
	statusQuery   struct{ reply chan Status }

	lookupDone struct {
		identity   string
		generation uint64
		result     lyrics.Result
	}
	artworkDone struct {
		identity   string
		generation uint64
		image      image.Image
	}
)

// Session owns the lyric state of one media source. Every event is
// handled on the goroutine running Run, one at a time, in arrival order.
type Session struct {
	inbox   chan any
	done    chan struct{}
	started atomic.Bool

	lookup    Lookup
	artwork   ArtworkLoader
	render    guard
	scheduler *Scheduler
	log       *log.Entry

	// owned by the Run goroutine
	state        StateKind
	identity     string
	current      track.Info
	lines        []lyrics.TimedLine
	outcome      lyrics.Outcome
	art          image.Image
	playing      bool
	enabled      bool
	snapshot     track.Snapshot
	generation   uint64
	cancelLookup context.CancelFunc
}

func NewSession(cfg SessionConfig) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	render := guard{target: cfg.Renderer, log: logger}

	return &Session{
		inbox:   make(chan any, 64),
		done:    make(chan struct{}),
		lookup:  cfg.Lookup,
		artwork: cfg.Artwork,
		render:  render,
		scheduler: newScheduler(SchedulerConfig{
			Source:   cfg.Source,
			Interval: cfg.Interval,
			Offset:   cfg.Offset,
			Now:      cfg.Now,
		}, render),
		log:     logger,
		enabled: !cfg.Disabled,
	}
}

func (s *Session) MetadataChanged(t track.Info) { s.post(metadataEvent{track: t}) }

func (s *Session) PlaybackChanged(snapshot track.Snapshot) {
	s.post(playbackEvent{snapshot: snapshot})
}

func (s *Session) SetEnabled(enabled bool) { s.post(enableEvent{enabled: enabled}) }

// SourceGone tells the session the media source disappeared.
func (s *Session) SourceGone() { s.post(sourceGone{}) }

func (s *Session) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)
	select {
	case s.inbox <- statusQuery{reply: reply}:
	case <-s.done:
		return Status{}, ErrSessionStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}

	select {
	case st := <-reply:
		return st, nil
	case <-s.done:
		return Status{}, ErrSessionStopped
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (s *Session) post(ev any) {
	select {
	case s.inbox <- ev:
	case <-s.done:
	}
}

// Run processes events until ctx is cancelled. It tears down the
// scheduler and any in-flight lookup before returning.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrSessionStarted
	}
	defer close(s.done)
	defer s.teardown()

	if s.enabled {
		s.render.Idle()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-s.inbox:
			s.handle(ctx, ev)
		}
	}
}

func (s *Session) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case metadataEvent:
		s.onMetadata(ctx, ev.track)
	case playbackEvent:
		s.onPlayback(ev.snapshot)
	case enableEvent:
		s.onEnable(ev.enabled)
	case sourceGone:
		s.onSourceGone()
	case lookupDone:
		s.onLookupDone(ev)
	case artworkDone:
		s.onArtworkDone(ev)
	case statusQuery:
		ev.reply <- s.status()
	}
}

func (s *Session) onMetadata(ctx context.Context, t track.Info) {
	if !s.enabled || !t.IsValid() {
		return
	}

	identity := t.Identity()
	if s.state != StateIdle && identity == s.identity {
		return
	}

	s.supersedeLookup()
	s.generation++
	s.identity = identity
	s.current = t
	s.lines = nil
	s.outcome = lyrics.OutcomeNotFound
	s.art = t.Artwork
	s.state = StateResolving

	entry := s.log.WithFields(log.Fields{"identity": identity, "generation": s.generation})
	entry.Info("track changed, resolving lyrics")

	lookupCtx, cancel := context.WithCancel(ctx)
	s.cancelLookup = cancel
	generation := s.generation

	go func() {
		result := s.lookup.Find(lookupCtx, t)
		s.post(lookupDone{identity: identity, generation: generation, result: result})
	}()

	if s.art == nil && t.ArtworkURL != "" && s.artwork != nil {
		url := t.ArtworkURL
		go func() {
			img, err := s.artwork.Load(lookupCtx, url)
			if err != nil {
				entry.WithError(err).Debug("artwork unavailable")
				return
			}
			s.post(artworkDone{identity: identity, generation: generation, image: img})
		}()
	}

	// lyrics of the previous track must not stay on screen while resolving
	if s.playing {
		s.startSync()
	}
}

func (s *Session) onLookupDone(ev lookupDone) {
	if ev.generation != s.generation || ev.identity != s.identity {
		s.log.WithFields(log.Fields{
			"identity":   ev.identity,
			"generation": ev.generation,
		}).Debug("discarding stale lookup result")
		return
	}

	s.lines = ev.result.Lines
	s.outcome = ev.result.Outcome
	s.state = StateActive

	s.log.WithFields(log.Fields{
		"identity": s.identity,
		"outcome":  ev.result.Outcome,
		"lines":    len(s.lines),
	}).Info("lyrics resolved")

	if s.playing && s.enabled {
		s.startSync()
	}
}

func (s *Session) onArtworkDone(ev artworkDone) {
	if ev.generation != s.generation || ev.identity != s.identity {
		return
	}

	s.art = ev.image
	if s.playing && s.enabled && s.scheduler.Running() {
		s.startSync()
	}
}

func (s *Session) onPlayback(snapshot track.Snapshot) {
	if !s.enabled {
		return
	}

	s.snapshot = snapshot
	s.playing = snapshot.Playing

	if s.state == StateIdle {
		return
	}

	if snapshot.Playing {
		s.startSync()
		return
	}

	s.scheduler.Stop()
	s.render.Paused()
}

func (s *Session) onEnable(enabled bool) {
	if enabled == s.enabled {
		return
	}
	s.enabled = enabled
	s.log.WithField("enabled", enabled).Info("session toggled")

	if !enabled {
		s.scheduler.Stop()
		s.render.Clear()
		return
	}

	s.render.Idle()
}

func (s *Session) onSourceGone() {
	s.scheduler.Stop()
	s.supersedeLookup()
	s.generation++

	s.state = StateIdle
	s.identity = ""
	s.current = track.Info{}
	s.lines = nil
	s.outcome = lyrics.OutcomeNotFound
	s.art = nil
	s.playing = false
	s.snapshot = track.Snapshot{}

	s.log.Info("media source gone")

	if s.enabled {
		s.render.Idle()
	}
}

func (s *Session) startSync() {
	s.scheduler.Start(Run{Lines: s.lines, Artwork: s.art, Track: s.current})
}

func (s *Session) supersedeLookup() {
	if s.cancelLookup != nil {
		s.cancelLookup()
		s.cancelLookup = nil
	}
}

func (s *Session) status() Status {
	return Status{
		State:    s.state,
		Identity: s.identity,
		Track:    s.current,
		Lines:    len(s.lines),
		Outcome:  s.outcome,
		Playing:  s.playing,
		Enabled:  s.enabled,
		Syncing:  s.scheduler.Running(),
		Snapshot: s.snapshot,
	}
}

func (s *Session) teardown() {
	s.scheduler.Stop()
	s.supersedeLookup()
	s.render.Clear()
}
