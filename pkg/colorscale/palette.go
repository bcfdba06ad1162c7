package colorscale

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// RGB is an 8-bit color triple
type RGB [3]uint8

// Neutral is returned whenever no scale applies
var Neutral = RGB{136, 136, 136}

// Hex formats the color as #rrggbb
func (c RGB) Hex() string {
	return colorful.Color{R: float64(c[0]) / 255, G: float64(c[1]) / 255, B: float64(c[2]) / 255}.Hex()
}

// Ramp interpolates linearly in RGB space between evenly spaced color stops
type Ramp struct {
	stops []colorful.Color
}

// NewRamp builds a ramp from hex color stops. It panics on invalid hex,
// since palettes are compile-time constants.
func NewRamp(hex ...string) *Ramp {
	stops := make([]colorful.Color, len(hex))
	for i, h := range hex {
		c, err := colorful.Hex(h)
		if err != nil {
			panic("colorscale: " + err.Error())
		}
		stops[i] = c
	}
	return &Ramp{stops: stops}
}

// At returns the color at position t; t is clamped to [0, 1]
func (r *Ramp) At(t float64) RGB {
	if math.IsNaN(t) || len(r.stops) == 0 {
		return Neutral
	}
	t = math.Max(0, math.Min(1, t))
	if len(r.stops) == 1 {
		return toRGB(r.stops[0])
	}

	pos := t * float64(len(r.stops)-1)
	i := int(math.Floor(pos))
	if i >= len(r.stops)-1 {
		return toRGB(r.stops[len(r.stops)-1])
	}
	return toRGB(r.stops[i].BlendRgb(r.stops[i+1], pos-float64(i)))
}

func toRGB(c colorful.Color) RGB {
	r, g, b := c.Clamped().RGB255()
	return RGB{r, g, b}
}

var (
	// Viridis is the perceptually uniform sequential palette used for frequency
	Viridis = NewRamp(
		"#440154", "#482878", "#3e4989", "#31688e", "#26828e",
		"#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725",
	)

	// YlOrRd is the sequential palette used for total emissions
	YlOrRd = NewRamp(
		"#ffffcc", "#ffeda0", "#fed976", "#feb24c", "#fd8d3c",
		"#fc4e2a", "#e31a1c", "#bd0026", "#800026",
	)

	// RdBu is the diverging palette: t=0 is warm red, t=1 is cold blue
	RdBu = NewRamp(
		"#67001f", "#b2182b", "#d6604d", "#f4a582", "#fddbc7", "#f7f7f7",
		"#d1e5f0", "#92c5de", "#4393c3", "#2166ac", "#053061",
	)
)
