package player

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	log "github.com/sirupsen/logrus"

	"karolbroda.com/lyricnote/internal/track"
)

const (
	mprisPath        = "/org/mpris/MediaPlayer2"
	mprisPrefix      = "org.mpris.MediaPlayer2."
	mprisPlayerIface = "org.mpris.MediaPlayer2.Player"

	propertiesIface = "org.freedesktop.DBus.Properties"
	busIface        = "org.freedesktop.DBus"

	signalPropertiesChanged = propertiesIface + ".PropertiesChanged"
	signalSeeked            = mprisPlayerIface + ".Seeked"
	signalNameOwnerChanged  = busIface + ".NameOwnerChanged"

	DefaultMaxAge = 5 * time.Second
)

var ErrNoPlayer = errors.New("player not on the bus")

// Bus is the subset of *dbus.Conn the source needs.
type Bus interface {
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	AddMatchSignal(options ...dbus.MatchOption) error
	RemoveMatchSignal(options ...dbus.MatchOption) error
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
	BusObject() dbus.BusObject
}

// Listener receives the player's state changes. engine.Session satisfies it.
type Listener interface {
	MetadataChanged(t track.Info)
	PlaybackChanged(s track.Snapshot)
	SourceGone()
}

type Config struct {
	Service string
	// MaxAge bounds how long a playing snapshot is extrapolated before the
	// position is read from the player again.
	MaxAge time.Duration
	Now    func() int64
	Logger *log.Entry
}

// Source follows one MPRIS player and turns its signals into listener
// calls. It also serves position snapshots to the sync loop.
type Source struct {
	bus     Bus
	service string
	maxAge  time.Duration
	now     func() int64
	log     *log.Entry

	listener Listener
	signals  chan *dbus.Signal
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	present  bool
	current  track.Info
	snapshot track.Snapshot
}

func New(bus Bus, cfg Config) (*Source, error) {
	if bus == nil {
		return nil, errors.New("nil dbus connection")
	}
	if cfg.Service == "" {
		return nil, errors.New("empty mpris service name")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Now == nil {
		cfg.Now = track.NowMillis
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewEntry(log.StandardLogger())
	}

	return &Source{
		bus:     bus,
		service: cfg.Service,
		maxAge:  cfg.MaxAge,
		now:     cfg.Now,
		log:     cfg.Logger.WithField("service", cfg.Service),
	}, nil
}

func (s *Source) Service() string { return s.service }

func (s *Source) matches() [][]dbus.MatchOption {
	return [][]dbus.MatchOption{
		{
			dbus.WithMatchSender(s.service),
			dbus.WithMatchObjectPath(mprisPath),
			dbus.WithMatchInterface(propertiesIface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		{
			dbus.WithMatchSender(s.service),
			dbus.WithMatchObjectPath(mprisPath),
			dbus.WithMatchInterface(mprisPlayerIface),
			dbus.WithMatchMember("Seeked"),
		},
		{
			dbus.WithMatchSender(busIface),
			dbus.WithMatchInterface(busIface),
			dbus.WithMatchMember("NameOwnerChanged"),
			dbus.WithMatchArg(0, s.service),
		},
	}
}

// Start subscribes to the player's signals and replays its current state
// to l. A player that is not running yet is not an error; it is picked up
// when it appears on the bus.
func (s *Source) Start(l Listener) error {
	if l == nil {
		return errors.New("nil listener")
	}
	if s.signals != nil {
		return errors.New("source already started")
	}

	for _, opts := range s.matches() {
		if err := s.bus.AddMatchSignal(opts...); err != nil {
			return fmt.Errorf("add signal match: %w", err)
		}
	}

	s.listener = l
	s.signals = make(chan *dbus.Signal, 16)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.bus.Signal(s.signals)

	go s.signalLoop()

	if err := s.Replay(); err != nil && !errors.Is(err, ErrNoPlayer) {
		s.log.WithError(err).Warn("initial player state unavailable")
	}
	return nil
}

func (s *Source) Stop() {
	s.stopOnce.Do(func() {
		if s.signals == nil {
			return
		}
		close(s.stop)
		<-s.done
		s.bus.RemoveSignal(s.signals)
		for _, opts := range s.matches() {
			if err := s.bus.RemoveMatchSignal(opts...); err != nil {
				s.log.WithError(err).Debug("remove signal match")
			}
		}
	})
}

// Replay reads the player's full state and pushes it to the listener as a
// metadata change followed by a playback change.
func (s *Source) Replay() error {
	info, snap, err := s.Current()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.present = true
	s.current = info
	s.snapshot = snap
	s.mu.Unlock()

	if s.listener != nil {
		s.listener.MetadataChanged(info)
		s.listener.PlaybackChanged(snap)
	}
	return nil
}

// Current queries the player without touching the cached state.
func (s *Source) Current() (track.Info, track.Snapshot, error) {
	ok, err := nameHasOwner(s.bus, s.service)
	if err != nil {
		return track.Info{}, track.Snapshot{}, err
	}
	if !ok {
		return track.Info{}, track.Snapshot{}, ErrNoPlayer
	}

	obj := s.bus.Object(s.service, mprisPath)

	info, err := readMetadata(obj)
	if err != nil {
		return track.Info{}, track.Snapshot{}, err
	}

	status, err := readProperty(obj, "PlaybackStatus")
	if err != nil {
		return track.Info{}, track.Snapshot{}, err
	}
	text, _ := status.(string)

	snap := track.Snapshot{Speed: 1, Playing: text == "Playing"}
	if rate, err := readProperty(obj, "Rate"); err == nil {
		if f, ok := asFloat(rate); ok && f > 0 {
			snap.Speed = f
		}
	}
	snap.PositionMs, snap.CapturedAtMs = s.readPosition(obj, 0)

	return info, snap, nil
}

// Snapshot returns the latest playback snapshot. A playing snapshot older
// than MaxAge is refreshed from the player first.
func (s *Source) Snapshot() (track.Snapshot, bool) {
	s.mu.Lock()
	snap, present := s.snapshot, s.present
	s.mu.Unlock()

	if !present {
		return track.Snapshot{}, false
	}
	if !snap.Playing || s.now()-snap.CapturedAtMs < s.maxAge.Milliseconds() {
		return snap, true
	}

	pos, err := readProperty(s.bus.Object(s.service, mprisPath), "Position")
	if err != nil {
		s.log.WithError(err).Debug("position refresh failed")
		return snap, true
	}
	micros, ok := asMicros(pos)
	if !ok {
		return snap, true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present || s.snapshot != snap {
		// a signal replaced the snapshot while we were reading
		return s.snapshot, s.present
	}
	s.snapshot.PositionMs = max(micros/1000, 0)
	s.snapshot.CapturedAtMs = s.now()
	return s.snapshot, true
}

func (s *Source) signalLoop() {
	defer close(s.done)
	for {
		select {
		case sig, ok := <-s.signals:
			if !ok {
				return
			}
			s.handleSignal(sig)
		case <-s.stop:
			return
		}
	}
}

func (s *Source) handleSignal(sig *dbus.Signal) {
	if sig == nil {
		return
	}

	switch sig.Name {
	case signalPropertiesChanged:
		if sig.Path == mprisPath {
			s.handlePropertiesChanged(sig)
		}
	case signalSeeked:
		if sig.Path == mprisPath {
			s.handleSeeked(sig)
		}
	case signalNameOwnerChanged:
		s.handleNameOwnerChanged(sig)
	}
}

func (s *Source) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		return
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != mprisPlayerIface {
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return
	}

	s.mu.Lock()
	s.present = true
	s.mu.Unlock()

	if v, ok := changed["Metadata"]; ok {
		if metadata, ok := v.Value().(map[string]dbus.Variant); ok {
			s.onMetadata(decodeMetadata(metadata))
		}
	}

	playbackTouched := false
	var playing *bool
	if v, ok := changed["PlaybackStatus"]; ok {
		if status, ok := v.Value().(string); ok {
			p := status == "Playing"
			playing = &p
			playbackTouched = true
		}
	}
	var speed *float64
	if v, ok := changed["Rate"]; ok {
		if f, ok := asFloat(v.Value()); ok && f > 0 {
			speed = &f
			playbackTouched = true
		}
	}
	if playbackTouched {
		s.onPlayback(playing, speed)
	}
}

func (s *Source) onMetadata(info track.Info) {
	if !info.IsValid() {
		s.log.Debug("ignoring metadata without a title")
		return
	}

	s.mu.Lock()
	changed := info.Identity() != s.current.Identity()
	s.current = info
	if changed {
		s.snapshot.PositionMs = 0
		s.snapshot.CapturedAtMs = s.now()
	}
	if s.snapshot.Speed <= 0 {
		s.snapshot.Speed = 1
	}
	snap := s.snapshot
	s.mu.Unlock()

	s.listener.MetadataChanged(info)
	if changed {
		s.listener.PlaybackChanged(snap)
	}
}

func (s *Source) onPlayback(playing *bool, speed *float64) {
	pos, at := s.readPosition(s.bus.Object(s.service, mprisPath), -1)

	s.mu.Lock()
	if playing != nil {
		s.snapshot.Playing = *playing
	}
	if speed != nil {
		s.snapshot.Speed = *speed
	}
	if s.snapshot.Speed <= 0 {
		s.snapshot.Speed = 1
	}
	if pos >= 0 {
		s.snapshot.PositionMs = pos
		s.snapshot.CapturedAtMs = at
	}
	snap := s.snapshot
	s.mu.Unlock()

	s.listener.PlaybackChanged(snap)
}

func (s *Source) handleSeeked(sig *dbus.Signal) {
	if len(sig.Body) < 1 {
		return
	}
	micros, ok := asMicros(sig.Body[0])
	if !ok || micros < 0 {
		return
	}

	s.mu.Lock()
	s.snapshot.PositionMs = micros / 1000
	s.snapshot.CapturedAtMs = s.now()
	if s.snapshot.Speed <= 0 {
		s.snapshot.Speed = 1
	}
	snap := s.snapshot
	s.mu.Unlock()

	s.listener.PlaybackChanged(snap)
}

func (s *Source) handleNameOwnerChanged(sig *dbus.Signal) {
	if len(sig.Body) < 3 {
		return
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)
	if name != s.service {
		return
	}

	if newOwner == "" {
		s.mu.Lock()
		s.present = false
		s.current = track.Info{}
		s.snapshot = track.Snapshot{}
		s.mu.Unlock()

		s.log.Info("player left the bus")
		s.listener.SourceGone()
		return
	}

	s.log.Info("player appeared on the bus")
	if err := s.Replay(); err != nil {
		s.log.WithError(err).Warn("reading new player state")
	}
}

// readPosition returns the position in ms and the capture time. fallback is
// returned as the position when the player does not answer.
func (s *Source) readPosition(obj dbus.BusObject, fallback int64) (int64, int64) {
	raw, err := readProperty(obj, "Position")
	if err != nil {
		s.log.WithError(err).Debug("position unavailable")
		return fallback, s.now()
	}
	micros, ok := asMicros(raw)
	if !ok {
		return fallback, s.now()
	}
	return max(micros/1000, 0), s.now()
}

func readMetadata(obj dbus.BusObject) (track.Info, error) {
	raw, err := readProperty(obj, "Metadata")
	if err != nil {
		return track.Info{}, err
	}
	metadata, ok := raw.(map[string]dbus.Variant)
	if !ok {
		return track.Info{}, fmt.Errorf("unexpected metadata type %T", raw)
	}
	return decodeMetadata(metadata), nil
}

func readProperty(obj dbus.BusObject, name string) (any, error) {
	if obj == nil {
		return nil, errors.New("nil dbus object")
	}
	prop, err := obj.GetProperty(mprisPlayerIface + "." + name)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", name, err)
	}
	value := prop.Value()
	if value == nil {
		return nil, fmt.Errorf("%s is nil", name)
	}
	return value, nil
}

func nameHasOwner(bus Bus, name string) (bool, error) {
	var has bool
	err := bus.BusObject().Call(busIface+".NameHasOwner", 0, name).Store(&has)
	if err != nil {
		return false, fmt.Errorf("query name owner: %w", err)
	}
	return has, nil
}

// ListPlayers returns the MPRIS players currently on the bus.
func ListPlayers(ctx context.Context, bus Bus) ([]string, error) {
	var names []string
	err := bus.BusObject().CallWithContext(ctx, busIface+".ListNames", 0).Store(&names)
	if err != nil {
		return nil, fmt.Errorf("list bus names: %w", err)
	}

	var players []string
	for _, name := range names {
		if strings.HasPrefix(name, mprisPrefix) {
			players = append(players, name)
		}
	}
	return players, nil
}
