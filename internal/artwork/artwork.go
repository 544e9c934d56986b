package artwork

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/nfnt/resize"
)

const (
	DefaultTimeout = 5 * time.Second
	maxImageBytes  = 16 << 20
)

var ErrUnsupportedScheme = errors.New("unsupported artwork url scheme")

// Loader fetches cover art from file:// or http(s):// URLs.
type Loader struct {
	client *http.Client
}

func NewLoader(timeout time.Duration) *Loader {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Loader{client: &http.Client{Timeout: timeout}}
}

func (l *Loader) Load(ctx context.Context, artworkURL string) (image.Image, error) {
	if artworkURL == "" {
		return nil, errors.New("empty artwork url")
	}

	u, err := url.Parse(artworkURL)
	if err != nil {
		return nil, fmt.Errorf("parse artwork url: %w", err)
	}

	switch u.Scheme {
	case "file":
		return l.loadFile(u.Path)
	case "http", "https":
		return l.loadHTTP(ctx, artworkURL)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

func (l *Loader) loadFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artwork file: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(io.LimitReader(f, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode artwork image: %w", err)
	}
	return img, nil
}

func (l *Loader) loadHTTP(ctx context.Context, artworkURL string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artworkURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch artwork: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("artwork fetch returned status %d", resp.StatusCode)
	}

	img, _, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, fmt.Errorf("decode artwork: %w", err)
	}
	return img, nil
}

// Thumbnail scales img to fit within size x size, keeping its aspect ratio.
func Thumbnail(img image.Image, size int) image.Image {
	if img == nil || size <= 0 {
		return nil
	}
	return resize.Thumbnail(uint(size), uint(size), img, resize.Bilinear)
}
