package colors

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/lucasb-eyer/go-colorful"
)

var fallback = colorful.Color{R: 1, G: 1, B: 1}

func parse(hex string) colorful.Color {
	c, err := colorful.Hex(hex)
	if err != nil {
		return fallback
	}
	return c
}

// GenerateGradient interpolates between two hex colours in HCL space so the
// steps look evenly spaced.
func GenerateGradient(startHex string, endHex string, steps int) []string {
	if steps < 2 {
		steps = 2
	}

	start, end := parse(startHex), parse(endHex)
	gradient := make([]string, steps)
	for i := 0; i < steps; i++ {
		t := float64(i) / float64(steps-1)
		gradient[i] = start.BlendHcl(end, t).Clamped().Hex()
	}
	return gradient
}

// GradientSmoothness returns the largest CIEDE2000 jump between adjacent
// gradient steps. Lower is smoother.
func GradientSmoothness(startHex string, endHex string, steps int) float64 {
	gradient := GenerateGradient(startHex, endHex, steps)

	worst := 0.0
	for i := 1; i < len(gradient); i++ {
		d := parse(gradient[i-1]).DistanceCIEDE2000(parse(gradient[i]))
		worst = max(worst, d)
	}
	return worst
}

// Lightness is the perceived lightness of a colour, 0 to 1.
func Lightness(hex string) float64 {
	_, _, l := parse(hex).Hcl()
	return l
}

func Blend(hex1 string, hex2 string, t float64) string {
	return parse(hex1).BlendHcl(parse(hex2), t).Clamped().Hex()
}

func Desaturate(hex string, amount float64) string {
	h, s, v := parse(hex).Hsv()
	return colorful.Hsv(h, s*(1-amount), v).Clamped().Hex()
}

func RenderGradientText(text string, gradient []string, bold bool) string {
	if text == "" {
		return ""
	}
	if len(gradient) == 0 {
		return text
	}

	runes := []rune(text)
	var out strings.Builder
	for i, r := range runes {
		idx := 0
		if len(runes) > 1 {
			idx = i * (len(gradient) - 1) / (len(runes) - 1)
		}
		idx = min(idx, len(gradient)-1)

		style := lipgloss.NewStyle().Foreground(lipgloss.Color(gradient[idx])).Bold(bold)
		out.WriteString(style.Render(string(r)))
	}
	return out.String()
}

func FormatTime(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
