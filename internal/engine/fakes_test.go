package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"karolbroda.com/lyricnote/internal/lyrics"
	"karolbroda.com/lyricnote/internal/track"
)

type call struct {
	op    string
	frame Frame
}

type recorder struct {
	mu    sync.Mutex
	calls []call
	err   error
	panic bool
}

func (r *recorder) add(op string, frame Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call{op: op, frame: frame})
	if r.panic {
		panic("renderer exploded")
	}
	return r.err
}

func (r *recorder) Idle() error                { return r.add("idle", Frame{}) }
func (r *recorder) Line(frame Frame) error     { return r.add("line", frame) }
func (r *recorder) Paused() error              { return r.add("paused", Frame{Current: PausedText}) }
func (r *recorder) NoLyrics(frame Frame) error { return r.add("no-lyrics", frame) }
func (r *recorder) Clear() error               { return r.add("clear", Frame{}) }

func (r *recorder) all() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]call, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *recorder) count(op string) int {
	n := 0
	for _, c := range r.all() {
		if c.op == op {
			n++
		}
	}
	return n
}

func (r *recorder) last() (call, bool) {
	calls := r.all()
	if len(calls) == 0 {
		return call{}, false
	}
	return calls[len(calls)-1], true
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

type fakeSource struct {
	mu       sync.Mutex
	snapshot track.Snapshot
	gone     bool
}

func (f *fakeSource) Snapshot() (track.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, !f.gone
}

func (f *fakeSource) set(s track.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = s
}

func (f *fakeSource) vanish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gone = true
}

type fakeClock struct{ ms atomic.Int64 }

func (c *fakeClock) now() int64 { return c.ms.Load() }

// gatedLookup blocks each Find until the test releases a result for the
// track's identity.
type gatedLookup struct {
	mu      sync.Mutex
	gates   map[string]chan lyrics.Result
	calls   []track.Info
	aborted atomic.Int32
}

func newGatedLookup() *gatedLookup {
	return &gatedLookup{gates: make(map[string]chan lyrics.Result)}
}

func (g *gatedLookup) gate(identity string) chan lyrics.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[identity]
	if !ok {
		ch = make(chan lyrics.Result, 1)
		g.gates[identity] = ch
	}
	return ch
}

func (g *gatedLookup) Find(ctx context.Context, t track.Info) lyrics.Result {
	g.mu.Lock()
	g.calls = append(g.calls, t)
	g.mu.Unlock()

	select {
	case res := <-g.gate(t.Identity()):
		return res
	case <-ctx.Done():
		g.aborted.Add(1)
		return lyrics.Result{Outcome: lyrics.OutcomeFailed}
	}
}

func (g *gatedLookup) release(identity string, lines ...lyrics.TimedLine) {
	outcome := lyrics.OutcomeSynced
	if len(lines) == 0 {
		outcome = lyrics.OutcomeNotFound
	}
	g.gate(identity) <- lyrics.Result{Lines: lines, Outcome: outcome}
}

func (g *gatedLookup) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *gatedLookup) lastCall() track.Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[len(g.calls)-1]
}

func nullLogger() (*log.Entry, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	return log.NewEntry(logger), hook
}

var errRender = errors.New("display unavailable")
