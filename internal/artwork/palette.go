package artwork

import (
	"image"
	"math"
	"sort"

	"github.com/EdlinOrg/prominentcolor"
	"github.com/lucasb-eyer/go-colorful"

	"karolbroda.com/lyricnote/internal/colors"
)

const gradientSteps = 20

type Palette struct {
	Primary   string
	Secondary string
	Accent    string
	Dim       string
	Gradient  []string
}

func DefaultPalette() *Palette {
	return &Palette{
		Primary:   "#8ba4e8",
		Secondary: "#e8a4c8",
		Accent:    "#b8a8e8",
		Dim:       "#6272a4",
		Gradient:  colors.GenerateGradient("#8ba4e8", "#e8a4c8", gradientSteps),
	}
}

type swatch struct {
	color      colorful.Color
	saturation float64
	brightness float64
	score      float64
}

// ExtractPalette picks three readable colours from the artwork's dominant
// clusters. Images that do not yield enough clusters get the default.
func ExtractPalette(img image.Image) *Palette {
	if img == nil {
		return DefaultPalette()
	}

	items, err := prominentcolor.KmeansWithAll(5, img, prominentcolor.ArgumentDefault, prominentcolor.DefaultSize, nil)
	if err != nil || len(items) < 3 {
		return DefaultPalette()
	}

	swatches := make([]swatch, len(items))
	for i, item := range items {
		c := colorful.Color{
			R: float64(item.Color.R) / 255,
			G: float64(item.Color.G) / 255,
			B: float64(item.Color.B) / 255,
		}
		_, s, v := c.Hsv()
		swatches[i] = swatch{color: c, saturation: s, brightness: v, score: s * (1 - math.Abs(v-0.6))}
	}

	primary, ok := pick(swatches, nil, 0.2, 0.3, true)
	if !ok {
		primary = swatches[0]
	}
	secondary, ok := pick(swatches, []swatch{primary}, 0.15, 0.3, false)
	if !ok {
		secondary = primary
	}
	accent, ok := pick(swatches, []swatch{primary, secondary}, 0.1, 0.25, false)
	if !ok {
		accent = secondary
	}

	chosen := []swatch{primary, secondary, accent}
	sort.SliceStable(chosen, func(i, j int) bool { return chosen[i].brightness > chosen[j].brightness })

	p := &Palette{
		Primary:   boost(chosen[0]),
		Accent:    boost(chosen[1]),
		Secondary: boost(chosen[2]),
		Dim:       "#6272a4",
	}
	start, end := smoothestPair(p.Primary, p.Secondary, p.Accent)
	p.Gradient = colors.GenerateGradient(start, end, gradientSteps)
	return p
}

// pick returns the first swatch, or the best scoring one when best is set,
// that clears the thresholds and is not in exclude.
func pick(swatches []swatch, exclude []swatch, minSat, minBright float64, best bool) (swatch, bool) {
	var (
		found swatch
		ok    bool
	)
	for _, s := range swatches {
		if s.saturation <= minSat || s.brightness <= minBright || contains(exclude, s) {
			continue
		}
		if !best {
			return s, true
		}
		if !ok || s.score > found.score {
			found, ok = s, true
		}
	}
	return found, ok
}

func contains(list []swatch, s swatch) bool {
	for _, x := range list {
		if x.color == s.color {
			return true
		}
	}
	return false
}

// boost lifts dark colours and tames near-white ones so text stays legible
// on a dark terminal.
func boost(s swatch) string {
	c := s.color
	if s.brightness > 0 && s.brightness < 0.4 {
		h, sat, v := c.Hsv()
		c = colorful.Hsv(h, sat, math.Min(1, v*math.Min(0.4/s.brightness, 2.5)))
	}
	if s.brightness > 0.85 {
		h, sat, v := c.Hsv()
		c = colorful.Hsv(h, sat*0.7, v)
	}
	return c.Clamped().Hex()
}

// smoothestPair chooses the ordered colour pair with the smallest step in
// its gradient, preferring a brighter start when two are close.
func smoothestPair(a, b, c string) (string, string) {
	pairs := [][2]string{{a, b}, {a, c}, {b, a}, {b, c}, {c, a}, {c, b}}

	scores := make([]float64, len(pairs))
	bestIdx := 0
	for i, p := range pairs {
		scores[i] = colors.GradientSmoothness(p[0], p[1], gradientSteps)
		if scores[i] < scores[bestIdx] {
			bestIdx = i
		}
	}

	const closeEnough = 0.02
	for i, p := range pairs {
		if i == bestIdx || scores[i]-scores[bestIdx] >= closeEnough {
			continue
		}
		if colors.Lightness(p[0]) > colors.Lightness(pairs[bestIdx][0]) {
			bestIdx = i
		}
	}
	return pairs[bestIdx][0], pairs[bestIdx][1]
}
