package artwork

import (
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/nfnt/resize"
)

// RenderHalfBlockArt draws img as width x height terminal cells, two pixels
// per cell using the upper half block.
func RenderHalfBlockArt(img image.Image, width int, height int) []string {
	if img == nil || width < 4 || height < 2 {
		return nil
	}

	resized := resize.Resize(uint(width), uint(height*2), img, resize.Lanczos3)
	bounds := resized.Bounds()

	lines := make([]string, height)
	for y := 0; y < height; y++ {
		var line strings.Builder
		top := bounds.Min.Y + y*2
		bottom := min(top+1, bounds.Max.Y-1)

		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			upper, ua := pixel(resized, x, top)
			lower, la := pixel(resized, x, bottom)
			if ua < 0.5 && la < 0.5 {
				line.WriteByte(' ')
				continue
			}

			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(upper.Hex())).
				Background(lipgloss.Color(lower.Hex()))
			line.WriteString(style.Render("▀"))
		}
		lines[y] = line.String()
	}
	return lines
}

func pixel(img image.Image, x, y int) (colorful.Color, float64) {
	c := img.At(x, y)
	_, _, _, a := c.RGBA()
	if a == 0 {
		return colorful.Color{}, 0
	}
	col, _ := colorful.MakeColor(c)
	return col, float64(a) / 0xffff
}
