package notify

import (
	"context"
	"fmt"
	"html"
	"image"
	"image/draw"
	"strings"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"karolbroda.com/lyricnote/internal/artwork"
	"karolbroda.com/lyricnote/internal/engine"
)

const (
	Destination = "org.freedesktop.Notifications"
	Path        = dbus.ObjectPath("/org/freedesktop/Notifications")

	methodNotify = Destination + ".Notify"
	methodClose  = Destination + ".CloseNotification"

	DefaultAppName     = "lyricnote"
	DefaultCallTimeout = 2 * time.Second
	thumbnailSize      = 64

	urgencyLow byte = 0
	// expireNever keeps the notification up until it is replaced or closed.
	expireNever int32 = 0
)

// imageData is the (iiibiiay) payload of the image-data hint.
type imageData struct {
	Width         int32
	Height        int32
	RowStride     int32
	HasAlpha      bool
	BitsPerSample int32
	Channels      int32
	Data          []byte
}

type Config struct {
	AppName     string
	CallTimeout time.Duration
}

// Notifier renders lyric frames as a single desktop notification that is
// replaced in place on every change.
type Notifier struct {
	obj     dbus.BusObject
	appName string
	timeout time.Duration

	mu       sync.Mutex
	id       uint32
	last     string
	art      image.Image
	artHint  dbus.Variant
	hasImage bool
}

var _ engine.Renderer = (*Notifier)(nil)

func New(obj dbus.BusObject, cfg Config) *Notifier {
	if cfg.AppName == "" {
		cfg.AppName = DefaultAppName
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	return &Notifier{obj: obj, appName: cfg.AppName, timeout: cfg.CallTimeout}
}

// Connect targets the notification daemon on conn.
func Connect(conn *dbus.Conn, cfg Config) *Notifier {
	return New(conn.Object(Destination, Path), cfg)
}

type message struct {
	summary  string
	body     []string
	art      image.Image
	resident bool
}

func (n *Notifier) Idle() error {
	return n.show(message{summary: engine.IdleText, resident: true})
}

func (n *Notifier) Line(f engine.Frame) error {
	summary := f.Current
	if strings.TrimSpace(summary) == "" {
		summary = "♪"
	}
	return n.show(message{
		summary:  summary,
		body:     []string{f.Previous, f.Next},
		art:      f.Artwork,
		resident: f.Playing,
	})
}

func (n *Notifier) Paused() error {
	return n.show(message{summary: engine.PausedText})
}

func (n *Notifier) NoLyrics(f engine.Frame) error {
	return n.show(message{
		summary:  engine.NoLyricsText,
		body:     []string{describe(f)},
		art:      f.Artwork,
		resident: f.Playing,
	})
}

func (n *Notifier) Clear() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.id == 0 {
		return nil
	}
	id := n.id
	n.id = 0
	n.last = ""

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	if err := n.obj.CallWithContext(ctx, methodClose, 0, id).Err; err != nil {
		return fmt.Errorf("close notification: %w", err)
	}
	return nil
}

func (n *Notifier) show(m message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	body := formatBody(m.body)
	key := fmt.Sprintf("%s\x00%s\x00%p\x00%t", m.summary, body, m.art, m.resident)
	if n.id != 0 && key == n.last {
		return nil
	}

	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(urgencyLow),
		"resident": dbus.MakeVariant(m.resident),
	}
	if hint, ok := n.imageHint(m.art); ok {
		hints["image-data"] = hint
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	call := n.obj.CallWithContext(ctx, methodNotify, 0,
		n.appName, n.id, "", m.summary, body, []string{}, hints, expireNever)

	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	n.id = id
	n.last = key
	return nil
}

func (n *Notifier) imageHint(img image.Image) (dbus.Variant, bool) {
	if img == nil {
		return dbus.Variant{}, false
	}
	if img == n.art {
		return n.artHint, n.hasImage
	}

	n.art = img
	n.artHint, n.hasImage = dbus.Variant{}, false

	thumb := artwork.Thumbnail(img, thumbnailSize)
	if thumb == nil || thumb.Bounds().Empty() {
		return n.artHint, false
	}
	n.artHint, n.hasImage = dbus.MakeVariant(encodeImage(thumb)), true
	return n.artHint, true
}

func encodeImage(img image.Image) imageData {
	b := img.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	return imageData{
		Width:         int32(b.Dx()),
		Height:        int32(b.Dy()),
		RowStride:     int32(rgba.Stride),
		HasAlpha:      true,
		BitsPerSample: 8,
		Channels:      4,
		Data:          rgba.Pix,
	}
}

func formatBody(lines []string) string {
	var parts []string
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			parts = append(parts, html.EscapeString(l))
		}
	}
	return strings.Join(parts, "\n")
}

func describe(f engine.Frame) string {
	if f.Track.Artist == "" {
		return f.Track.Title
	}
	return f.Track.Title + " · " + f.Track.Artist
}
