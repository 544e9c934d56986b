package engine

import (
	"context"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"karolbroda.com/lyricnote/internal/lyrics"
	"karolbroda.com/lyricnote/internal/track"
)

type sessionHarness struct {
	session *Session
	rec     *recorder
	src     *fakeSource
	lookup  *gatedLookup
	cancel  context.CancelFunc
	done    chan error

	once   sync.Once
	runErr error
}

func newSessionHarness(t *testing.T, mutate func(*SessionConfig)) *sessionHarness {
	t.Helper()

	logger, _ := nullLogger()
	h := &sessionHarness{
		rec:    &recorder{},
		src:    &fakeSource{snapshot: track.Snapshot{Speed: 1, Playing: true}},
		lookup: newGatedLookup(),
		done:   make(chan error, 1),
	}

	cfg := SessionConfig{
		Lookup:   h.lookup,
		Renderer: h.rec,
		Source:   h.src,
		Interval: testInterval,
		Now:      func() int64 { return 0 },
		Logger:   logger,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	h.session = NewSession(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.session.Run(ctx) }()

	t.Cleanup(h.stop)
	return h
}

func (h *sessionHarness) stop() {
	h.shutdown()
}

func (h *sessionHarness) shutdown() error {
	h.once.Do(func() {
		h.cancel()
		h.runErr = <-h.done
	})
	return h.runErr
}

func (h *sessionHarness) status(t *testing.T) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := h.session.Status(ctx)
	require.NoError(t, err)
	return st
}

func (h *sessionHarness) waitState(t *testing.T, want StateKind) {
	t.Helper()
	require.Eventually(t, func() bool { return h.status(t).State == want }, time.Second, time.Millisecond)
}

var (
	songA = track.Info{Title: "Alpha", Artist: "Band", DurationMs: 200_500}
	songB = track.Info{Title: "Beta", Artist: "Band", DurationMs: 180_000}
)

func playing() track.Snapshot { return track.Snapshot{Speed: 1, Playing: true} }
func paused() track.Snapshot  { return track.Snapshot{Speed: 1, Playing: false} }

func TestSessionStartsIdle(t *testing.T) {
	h := newSessionHarness(t, nil)

	require.Eventually(t, func() bool { return h.rec.count("idle") == 1 }, time.Second, time.Millisecond)
	st := h.status(t)
	assert.Equal(t, StateIdle, st.State)
	assert.True(t, st.Enabled)
}

func TestSessionRunTwice(t *testing.T) {
	h := newSessionHarness(t, nil)
	h.waitState(t, StateIdle)

	assert.ErrorIs(t, h.session.Run(context.Background()), ErrSessionStarted)
}

func TestSessionResolvesAndSyncs(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(songA)
	h.waitState(t, StateResolving)

	require.Eventually(t, func() bool { return h.lookup.callCount() == 1 }, time.Second, time.Millisecond)
	assert.InDelta(t, 200.5, h.lookup.lastCall().DurationSeconds(), 1e-9)

	h.session.PlaybackChanged(playing())
	h.lookup.release(songA.Identity(), lyrics.TimedLine{TimestampMs: 0, Text: "alpha line"})
	h.waitState(t, StateActive)

	require.Eventually(t, func() bool {
		c, ok := h.rec.last()
		return ok && c.op == "line" && c.frame.Current == "alpha line"
	}, time.Second, time.Millisecond)

	st := h.status(t)
	assert.Equal(t, 1, st.Lines)
	assert.Equal(t, lyrics.OutcomeSynced, st.Outcome)
	assert.True(t, st.Syncing)
}

func TestSessionIgnoresRepeatedMetadata(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(songA)
	h.session.MetadataChanged(songA)
	h.session.MetadataChanged(track.Info{Title: songA.Title, Artist: songA.Artist, Album: "Deluxe"})
	h.waitState(t, StateResolving)

	h.lookup.release(songA.Identity())
	h.waitState(t, StateActive)

	h.session.MetadataChanged(songA)
	assert.Equal(t, StateActive, h.status(t).State)
	assert.Equal(t, 1, h.lookup.callCount())
}

func TestSessionIgnoresEmptyTitle(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(track.Info{Artist: "Nobody"})
	st := h.status(t)
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, h.lookup.callCount())
}

func TestSessionEmptyResultShowsNoLyrics(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.PlaybackChanged(playing())
	h.session.MetadataChanged(songA)
	h.lookup.release(songA.Identity())
	h.waitState(t, StateActive)

	require.Eventually(t, func() bool {
		c, ok := h.rec.last()
		return ok && c.op == "no-lyrics" && c.frame.Track.Title == "Alpha"
	}, time.Second, time.Millisecond)
	assert.Zero(t, h.rec.count("line"))
}

func TestSessionPauseStopsSync(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(songA)
	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "la"})
	h.waitState(t, StateActive)

	h.session.PlaybackChanged(playing())
	require.Eventually(t, func() bool { return h.rec.count("line") > 0 }, time.Second, time.Millisecond)

	h.session.PlaybackChanged(paused())
	require.Eventually(t, func() bool { return h.rec.count("paused") == 1 }, time.Second, time.Millisecond)

	st := h.status(t)
	assert.False(t, st.Playing)
	assert.False(t, st.Syncing)

	settled := len(h.rec.all())
	time.Sleep(10 * testInterval)
	calls := h.rec.all()
	assert.Len(t, calls, settled)
	assert.Equal(t, "paused", calls[len(calls)-1].op)
}

func TestSessionRendersPausedForEveryPausedSnapshot(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(songA)
	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "la"})
	h.waitState(t, StateActive)

	h.session.PlaybackChanged(paused())
	h.session.PlaybackChanged(track.Snapshot{PositionMs: 30_000, Speed: 1})

	require.Eventually(t, func() bool { return h.rec.count("paused") == 2 }, time.Second, time.Millisecond)
	assert.False(t, h.status(t).Syncing)
}

func TestSessionResumeRestartsSync(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(songA)
	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "again"})
	h.waitState(t, StateActive)

	h.session.PlaybackChanged(paused())
	h.session.PlaybackChanged(playing())

	require.Eventually(t, func() bool {
		c, ok := h.rec.last()
		return ok && c.op == "line" && c.frame.Current == "again"
	}, time.Second, time.Millisecond)
}

func TestSessionPlaybackWhileIdleDoesNotSync(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.PlaybackChanged(playing())
	st := h.status(t)
	assert.True(t, st.Playing)
	assert.False(t, st.Syncing)

	time.Sleep(5 * testInterval)
	assert.Zero(t, h.rec.count("no-lyrics"))
}

func TestSessionDiscardsStaleLookup(t *testing.T) {
	h := newSessionHarness(t, nil)
	h.session.PlaybackChanged(playing())

	h.session.MetadataChanged(songA)
	require.Eventually(t, func() bool { return h.lookup.callCount() == 1 }, time.Second, time.Millisecond)

	h.session.MetadataChanged(songB)
	require.Eventually(t, func() bool { return h.lookup.callCount() == 2 }, time.Second, time.Millisecond)

	// A was cancelled when B arrived; whatever it returns must be ignored
	require.Eventually(t, func() bool { return h.lookup.aborted.Load() == 1 }, time.Second, time.Millisecond)
	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "from alpha"})
	h.lookup.release(songB.Identity(), lyrics.TimedLine{Text: "from beta"})

	h.waitState(t, StateActive)
	require.Eventually(t, func() bool {
		c, ok := h.rec.last()
		return ok && c.frame.Current == "from beta"
	}, time.Second, time.Millisecond)

	assert.Equal(t, songB.Identity(), h.status(t).Identity)
	sawBeta := false
	for _, c := range h.rec.all() {
		assert.NotEqual(t, "from alpha", c.frame.Current)
		if c.frame.Track.Title == "Beta" {
			sawBeta = true
		}
		if sawBeta {
			assert.NotEqual(t, "Alpha", c.frame.Track.Title)
		}
	}
}

// slowLookup ignores cancellation and answers whenever the test says so,
// like a transport that cannot be interrupted.
type slowLookup struct {
	mu      sync.Mutex
	results map[string]chan lyrics.Result
	calls   int
}

func (l *slowLookup) result(identity string) chan lyrics.Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.results == nil {
		l.results = make(map[string]chan lyrics.Result)
	}
	ch, ok := l.results[identity]
	if !ok {
		ch = make(chan lyrics.Result, 1)
		l.results[identity] = ch
	}
	return ch
}

func (l *slowLookup) Find(_ context.Context, t track.Info) lyrics.Result {
	l.mu.Lock()
	l.calls++
	l.mu.Unlock()
	return <-l.result(t.Identity())
}

func (l *slowLookup) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestSessionIgnoresLateResultForPreviousTrack(t *testing.T) {
	lookup := &slowLookup{}
	logger, hook := nullLogger()
	h := newSessionHarness(t, func(cfg *SessionConfig) {
		cfg.Lookup = lookup
		cfg.Logger = logger
	})
	h.session.PlaybackChanged(playing())

	h.session.MetadataChanged(songA)
	require.Eventually(t, func() bool { return lookup.callCount() == 1 }, time.Second, time.Millisecond)
	h.session.MetadataChanged(songB)
	require.Eventually(t, func() bool { return lookup.callCount() == 2 }, time.Second, time.Millisecond)

	lookup.result(songA.Identity()) <- lyrics.Result{
		Lines:   []lyrics.TimedLine{{TimestampMs: 0, Text: "from alpha"}},
		Outcome: lyrics.OutcomeSynced,
	}
	require.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "discarding stale lookup result" {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)

	st := h.status(t)
	assert.Equal(t, StateResolving, st.State)
	assert.Equal(t, songB.Identity(), st.Identity)
	assert.Zero(t, st.Lines)

	time.Sleep(5 * testInterval)
	sawBeta := false
	for _, c := range h.rec.all() {
		assert.NotEqual(t, "from alpha", c.frame.Current)
		sawBeta = sawBeta || c.frame.Track.Title == "Beta"
		if sawBeta {
			assert.NotEqual(t, "Alpha", c.frame.Track.Title)
		}
	}

	lookup.result(songB.Identity()) <- lyrics.Result{
		Lines:   []lyrics.TimedLine{{TimestampMs: 0, Text: "from beta"}},
		Outcome: lyrics.OutcomeSynced,
	}
	h.waitState(t, StateActive)
	require.Eventually(t, func() bool {
		c, ok := h.rec.last()
		return ok && c.frame.Current == "from beta"
	}, time.Second, time.Millisecond)
}

func TestSessionReturningTrackGetsFreshLookup(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(songA)
	h.session.MetadataChanged(songB)
	h.session.MetadataChanged(songA)
	require.Eventually(t, func() bool { return h.lookup.callCount() == 3 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return h.lookup.aborted.Load() == 2 }, time.Second, time.Millisecond)

	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "alpha"})
	h.waitState(t, StateActive)

	st := h.status(t)
	assert.Equal(t, songA.Identity(), st.Identity)
	assert.Equal(t, 1, st.Lines)
}

func TestSessionTrackChangeWhilePlayingDropsOldLyrics(t *testing.T) {
	h := newSessionHarness(t, nil)
	h.session.PlaybackChanged(playing())

	h.session.MetadataChanged(songA)
	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "alpha"})
	require.Eventually(t, func() bool {
		c, ok := h.rec.last()
		return ok && c.frame.Current == "alpha"
	}, time.Second, time.Millisecond)

	h.session.MetadataChanged(songB)
	h.waitState(t, StateResolving)

	require.Eventually(t, func() bool {
		c, ok := h.rec.last()
		return ok && c.op == "no-lyrics" && c.frame.Track.Title == "Beta"
	}, time.Second, time.Millisecond)
}

func TestSessionDisableIgnoresEvents(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(songA)
	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "la"})
	h.session.PlaybackChanged(playing())
	require.Eventually(t, func() bool { return h.rec.count("line") > 0 }, time.Second, time.Millisecond)

	h.session.SetEnabled(false)
	require.Eventually(t, func() bool { return h.rec.count("clear") == 1 }, time.Second, time.Millisecond)
	assert.False(t, h.status(t).Syncing)

	h.rec.reset()
	h.session.MetadataChanged(songB)
	h.session.PlaybackChanged(paused())
	h.session.PlaybackChanged(playing())

	st := h.status(t)
	assert.False(t, st.Enabled)
	assert.Equal(t, songA.Identity(), st.Identity)
	assert.Equal(t, 1, h.lookup.callCount())

	time.Sleep(5 * testInterval)
	assert.Empty(t, h.rec.all())
}

func TestSessionReenableResumesOnReplay(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(songA)
	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "la"})
	h.waitState(t, StateActive)

	h.session.SetEnabled(false)
	h.session.SetEnabled(true)
	require.Eventually(t, func() bool { return h.rec.count("idle") == 2 }, time.Second, time.Millisecond)

	// the media source replays its state after a re-enable
	h.session.MetadataChanged(songA)
	h.session.PlaybackChanged(playing())

	require.Eventually(t, func() bool {
		c, ok := h.rec.last()
		return ok && c.op == "line" && c.frame.Current == "la"
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1, h.lookup.callCount())
}

func TestSessionStartsDisabled(t *testing.T) {
	h := newSessionHarness(t, func(cfg *SessionConfig) { cfg.Disabled = true })

	h.session.MetadataChanged(songA)
	st := h.status(t)
	assert.False(t, st.Enabled)
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, h.rec.count("idle"))
}

func TestSessionSourceGone(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(songA)
	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "la"})
	h.session.PlaybackChanged(playing())
	require.Eventually(t, func() bool { return h.rec.count("line") > 0 }, time.Second, time.Millisecond)

	h.session.SourceGone()
	h.waitState(t, StateIdle)

	st := h.status(t)
	assert.Empty(t, st.Identity)
	assert.False(t, st.Syncing)
	assert.False(t, st.Playing)

	c, _ := h.rec.last()
	assert.Equal(t, "idle", c.op)

	// the same track coming back is a fresh resolution
	h.session.MetadataChanged(songA)
	require.Eventually(t, func() bool { return h.lookup.callCount() == 2 }, time.Second, time.Millisecond)
}

type stubArtwork struct {
	img  image.Image
	urls chan string
}

func (s *stubArtwork) Load(_ context.Context, url string) (image.Image, error) {
	s.urls <- url
	return s.img, nil
}

func TestSessionLoadsArtwork(t *testing.T) {
	art := &stubArtwork{img: image.NewRGBA(image.Rect(0, 0, 2, 2)), urls: make(chan string, 1)}
	h := newSessionHarness(t, func(cfg *SessionConfig) { cfg.Artwork = art })

	h.session.PlaybackChanged(playing())
	withArt := songA
	withArt.ArtworkURL = "file:///tmp/cover.png"
	h.session.MetadataChanged(withArt)

	assert.Equal(t, "file:///tmp/cover.png", <-art.urls)

	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "la"})
	require.Eventually(t, func() bool {
		c, ok := h.rec.last()
		return ok && c.op == "line" && c.frame.Artwork == art.img
	}, time.Second, time.Millisecond)
}

func TestSessionRendererFailureDoesNotStopSession(t *testing.T) {
	h := newSessionHarness(t, nil)
	h.rec.mu.Lock()
	h.rec.err = errRender
	h.rec.mu.Unlock()

	h.session.MetadataChanged(songA)
	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "la"})
	h.session.PlaybackChanged(playing())

	require.Eventually(t, func() bool { return h.rec.count("line") >= 3 }, time.Second, time.Millisecond)
	assert.True(t, h.status(t).Syncing)
}

func TestSessionShutdownClears(t *testing.T) {
	h := newSessionHarness(t, nil)

	h.session.MetadataChanged(songA)
	h.lookup.release(songA.Identity(), lyrics.TimedLine{Text: "la"})
	h.session.PlaybackChanged(playing())
	require.Eventually(t, func() bool { return h.rec.count("line") > 0 }, time.Second, time.Millisecond)

	require.NoError(t, h.shutdown())

	c, _ := h.rec.last()
	assert.Equal(t, "clear", c.op)

	_, err := h.session.Status(context.Background())
	assert.ErrorIs(t, err, ErrSessionStopped)

	assert.NotPanics(t, func() { h.session.MetadataChanged(songB) })
}
