// Package colorscale derives numeric-to-color mappings from a batch of edge
// usage statistics.
package colorscale

import (
	"math"

	"github.com/ritzau/bluecity/pkg/model"
)

const (
	// MinFrequencyDomain keeps the frequency domain non-degenerate when every
	// edge has zero frequency.
	MinFrequencyDomain = 0.01
	// MinCO2Domain is the floor of the total emission domain
	MinCO2Domain = 1.0
	// MinDeltaDomain is the floor of both diverging domains
	MinDeltaDomain = 0.01
	// DeltaThreshold is the smallest |delta_count| that counts as a change
	DeltaThreshold = 0.001
)

// Kind distinguishes sequential from diverging scales
type Kind int

const (
	Sequential Kind = iota
	Diverging
)

func (k Kind) String() string {
	if k == Diverging {
		return "diverging"
	}
	return "sequential"
}

// Scale maps a value to a color through a ramp. Sequential scales have a
// two-value domain [lo, hi]; diverging scales have three values [x0, mid, x2].
type Scale struct {
	kind   Kind
	domain []float64
	ramp   *Ramp
}

// NewSequential creates a scale mapping [lo, hi] onto the ramp
func NewSequential(lo, hi float64, ramp *Ramp) *Scale {
	return &Scale{kind: Sequential, domain: []float64{lo, hi}, ramp: ramp}
}

// NewDiverging creates a scale mapping x0 -> 0, mid -> 0.5, x2 -> 1 on the ramp.
// The domain may be descending.
func NewDiverging(x0, mid, x2 float64, ramp *Ramp) *Scale {
	return &Scale{kind: Diverging, domain: []float64{x0, mid, x2}, ramp: ramp}
}

// Kind returns whether the scale is sequential or diverging
func (s *Scale) Kind() Kind {
	return s.kind
}

// Domain returns a copy of the scale's domain
func (s *Scale) Domain() []float64 {
	if s == nil {
		return nil
	}
	return append([]float64(nil), s.domain...)
}

// Color maps v to a color. A nil scale yields Neutral.
func (s *Scale) Color(v float64) RGB {
	if s == nil || math.IsNaN(v) {
		return Neutral
	}
	return s.ramp.At(s.position(v))
}

func (s *Scale) position(v float64) float64 {
	if s.kind == Sequential {
		lo, hi := s.domain[0], s.domain[1]
		if hi == lo {
			return 0.5
		}
		return (v - lo) / (hi - lo)
	}

	x0, x1, x2 := s.domain[0], s.domain[1], s.domain[2]
	sign := 1.0
	if x1 < x0 {
		sign = -1
	}
	var k float64
	if sign*v < sign*x1 {
		if x0 != x1 {
			k = 0.5 / (x1 - x0)
		}
	} else if x2 != x1 {
		k = 0.5 / (x2 - x1)
	}
	return 0.5 + (v-x1)*k
}

// Calibration holds every scale computed for one usage batch. Scales that do
// not apply to the batch are nil.
type Calibration struct {
	Frequency *Scale
	CO2       *Scale
	Delta     *Scale
	CO2Delta  *Scale
}

// Calibrate computes all applicable scales for a simulation result.
// An empty new batch yields an empty calibration whose default mode is none.
func Calibrate(original, updated []model.EdgeUsageStat) *Calibration {
	c := &Calibration{}
	if len(updated) == 0 {
		return c
	}

	maxFreq := 0.0
	maxTotal, maxAbsDelta, maxAbsCO2Delta := 0.0, 0.0, 0.0
	hasCO2, hasDelta := false, false

	for _, s := range updated {
		maxFreq = math.Max(maxFreq, s.Frequency)
		if s.CO2PerUse > 0 {
			hasCO2 = true
			maxTotal = math.Max(maxTotal, s.TotalCO2())
		}
		if math.Abs(s.DeltaCount) > DeltaThreshold {
			hasDelta = true
		}
		maxAbsDelta = math.Max(maxAbsDelta, math.Abs(s.DeltaCount))
		maxAbsCO2Delta = math.Max(maxAbsCO2Delta, math.Abs(s.DeltaCO2()))
	}
	for _, s := range original {
		if s.CO2PerUse > 0 {
			hasCO2 = true
		}
	}

	c.Frequency = NewSequential(0, math.Max(maxFreq, MinFrequencyDomain), Viridis)

	if hasCO2 {
		c.CO2 = NewSequential(0, math.Max(maxTotal, MinCO2Domain), YlOrRd)
	}

	// Descending domain: positive deltas land on the warm end of RdBu
	if hasDelta {
		m := math.Max(maxAbsDelta, MinDeltaDomain)
		c.Delta = NewDiverging(m, 0, -m, RdBu)
	}
	if hasCO2 && hasDelta {
		m := math.Max(maxAbsCO2Delta, MinDeltaDomain)
		c.CO2Delta = NewDiverging(m, 0, -m, RdBu)
	}

	return c
}

// DefaultMode is delta when a delta scale exists, frequency when any data
// exists, and none for an empty calibration.
func (c *Calibration) DefaultMode() model.VisualizationMode {
	switch {
	case c == nil || c.Frequency == nil:
		return model.VisualizationNone
	case c.Delta != nil:
		return model.VisualizationDelta
	default:
		return model.VisualizationFrequency
	}
}

// Select returns the cached scale for a mode, or nil
func (c *Calibration) Select(mode model.VisualizationMode) *Scale {
	if c == nil {
		return nil
	}
	switch mode {
	case model.VisualizationFrequency:
		return c.Frequency
	case model.VisualizationCO2:
		return c.CO2
	case model.VisualizationDelta:
		return c.Delta
	case model.VisualizationCO2Delta:
		return c.CO2Delta
	}
	return nil
}

// Available lists the modes that have a scale, in display order
func (c *Calibration) Available() []model.VisualizationMode {
	var modes []model.VisualizationMode
	for _, m := range []model.VisualizationMode{
		model.VisualizationFrequency,
		model.VisualizationDelta,
		model.VisualizationCO2,
		model.VisualizationCO2Delta,
	} {
		if c.Select(m) != nil {
			modes = append(modes, m)
		}
	}
	return modes
}

// Value extracts the quantity a mode colors by from one usage record
func Value(mode model.VisualizationMode, s model.EdgeUsageStat) float64 {
	switch mode {
	case model.VisualizationFrequency:
		return s.Frequency
	case model.VisualizationDelta:
		return s.DeltaCount
	case model.VisualizationCO2:
		return s.TotalCO2()
	case model.VisualizationCO2Delta:
		return s.DeltaCO2()
	}
	return math.NaN()
}
