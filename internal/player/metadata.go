package player

import (
	"github.com/godbus/dbus/v5"

	"karolbroda.com/lyricnote/internal/track"
)

const (
	keyTitle   = "xesam:title"
	keyArtist  = "xesam:artist"
	keyAlbum   = "xesam:album"
	keyLength  = "mpris:length"
	keyArtwork = "mpris:artUrl"
)

func decodeMetadata(metadata map[string]dbus.Variant) track.Info {
	return track.Info{
		Title:      extractString(metadata, keyTitle),
		Artist:     extractArtist(metadata, keyArtist),
		Album:      extractString(metadata, keyAlbum),
		ArtworkURL: extractString(metadata, keyArtwork),
		DurationMs: extractMicrosAsMillis(metadata, keyLength),
	}
}

func lookup(metadata map[string]dbus.Variant, key string) any {
	if metadata == nil {
		return nil
	}
	variant, ok := metadata[key]
	if !ok {
		return nil
	}
	return variant.Value()
}

func extractString(metadata map[string]dbus.Variant, key string) string {
	text, _ := lookup(metadata, key).(string)
	return text
}

// extractArtist accepts both the list form the MPRIS spec mandates and the
// plain string some players send. Only the first artist is used.
func extractArtist(metadata map[string]dbus.Variant, key string) string {
	switch typed := lookup(metadata, key).(type) {
	case []string:
		if len(typed) > 0 {
			return typed[0]
		}
	case string:
		return typed
	}
	return ""
}

func extractMicrosAsMillis(metadata map[string]dbus.Variant, key string) int64 {
	micros, ok := asMicros(lookup(metadata, key))
	if !ok || micros <= 0 {
		return 0
	}
	return micros / 1000
}

func asMicros(raw any) (int64, bool) {
	switch typed := raw.(type) {
	case int64:
		return typed, true
	case uint64:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	case float64:
		return int64(typed), true
	default:
		return 0, false
	}
}

func asFloat(raw any) (float64, bool) {
	switch typed := raw.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case int32:
		return float64(typed), true
	default:
		return 0, false
	}
}
