package model

import "slices"

// VisualizationMode selects which calibrated color scale colors the network
type VisualizationMode string

const (
	VisualizationNone      VisualizationMode = "none"
	VisualizationFrequency VisualizationMode = "frequency"
	VisualizationDelta     VisualizationMode = "delta"
	VisualizationCO2       VisualizationMode = "co2"
	VisualizationCO2Delta  VisualizationMode = "co2_delta"
)

// ParseVisualizationMode validates a mode name
func ParseVisualizationMode(s string) (VisualizationMode, bool) {
	switch m := VisualizationMode(s); m {
	case VisualizationNone, VisualizationFrequency, VisualizationDelta, VisualizationCO2, VisualizationCO2Delta:
		return m, true
	}
	return "", false
}

// EdgeUsageStat is the simulation-derived traversal count for one directed edge.
// Frequency is Count normalized by the maximum count of its own batch.
type EdgeUsageStat struct {
	U              int64   `json:"u"`
	V              int64   `json:"v"`
	Count          int64   `json:"count"`
	Frequency      float64 `json:"frequency"`
	DeltaCount     float64 `json:"delta_count,omitempty"`     // new - original, only on the new batch
	DeltaFrequency float64 `json:"delta_frequency,omitempty"` // new - original
	CO2PerUse      float64 `json:"co2_per_use,omitempty"`     // grams per traversal
}

// TotalCO2 is the emission attributed to the edge over all traversals
func (s EdgeUsageStat) TotalCO2() float64 {
	return s.CO2PerUse * float64(s.Count)
}

// DeltaCO2 is the emission change attributed to the edge
func (s EdgeUsageStat) DeltaCO2() float64 {
	return s.CO2PerUse * s.DeltaCount
}

// NodePair is a sampled origin/destination used by the simulation request
type NodePair struct {
	Origin      int64 `json:"origin"`
	Destination int64 `json:"destination"`
}

// RemovedEdge is an edge the user has hypothetically closed
type RemovedEdge struct {
	U    int64  `json:"u"`
	V    int64  `json:"v"`
	Name string `json:"name,omitempty"`
}

// ImpactStatistics aggregates how the removed edges affected the sampled routes
type ImpactStatistics struct {
	TotalRoutes              int     `json:"total_routes"`
	AffectedRoutes           int     `json:"affected_routes"`
	FailedRoutes             int     `json:"failed_routes"`
	TotalDistanceIncreaseKm  float64 `json:"total_distance_increase_km"`
	TotalTimeIncreaseMinutes float64 `json:"total_time_increase_minutes"`
	AvgDistanceIncreaseKm    float64 `json:"avg_distance_increase_km"`
	AvgTimeIncreaseMinutes   float64 `json:"avg_time_increase_minutes"`
	MaxDistanceIncreaseKm    float64 `json:"max_distance_increase_km"`
	MaxTimeIncreaseMinutes   float64 `json:"max_time_increase_minutes"`
	AvgDistanceIncreasePct   float64 `json:"avg_distance_increase_percent"`
	AvgTimeIncreasePct       float64 `json:"avg_time_increase_percent"`
	TotalCO2IncreaseGrams    float64 `json:"total_co2_increase_grams"`
	AvgCO2IncreaseGrams      float64 `json:"avg_co2_increase_grams"`
	MaxCO2IncreaseGrams      float64 `json:"max_co2_increase_grams"`
	AvgCO2IncreasePct        float64 `json:"avg_co2_increase_percent"`
}

// TrafficAnalysis is the captured value of the traffic simulation state.
// It is never aliased: capture and restore always go through Clone.
type TrafficAnalysis struct {
	IsOpen              bool              `json:"isOpen"`
	RemovedEdges        []RemovedEdge     `json:"removedEdges"`
	NodePairs           []NodePair        `json:"nodePairs"`
	OriginalEdgeUsage   []EdgeUsageStat   `json:"originalEdgeUsage"`
	NewEdgeUsage        []EdgeUsageStat   `json:"newEdgeUsage"`
	ImpactStatistics    *ImpactStatistics `json:"impactStatistics"`
	ActiveVisualization VisualizationMode `json:"activeVisualization"`
}

// Clone returns a structural deep copy
func (t *TrafficAnalysis) Clone() *TrafficAnalysis {
	if t == nil {
		return nil
	}
	out := &TrafficAnalysis{
		IsOpen:              t.IsOpen,
		RemovedEdges:        append([]RemovedEdge(nil), t.RemovedEdges...),
		NodePairs:           append([]NodePair(nil), t.NodePairs...),
		OriginalEdgeUsage:   append([]EdgeUsageStat(nil), t.OriginalEdgeUsage...),
		NewEdgeUsage:        append([]EdgeUsageStat(nil), t.NewEdgeUsage...),
		ActiveVisualization: t.ActiveVisualization,
	}
	if t.ImpactStatistics != nil {
		impact := *t.ImpactStatistics
		out.ImpactStatistics = &impact
	}
	return out
}

// HasUsage reports whether the snapshot carries simulation results
func (t *TrafficAnalysis) HasUsage() bool {
	return t != nil && (len(t.NewEdgeUsage) > 0 || len(t.OriginalEdgeUsage) > 0)
}

// Equivalent reports whether t and o capture the same state. A nil analysis
// equals an empty one and an unset mode equals VisualizationNone.
func (t *TrafficAnalysis) Equivalent(o *TrafficAnalysis) bool {
	a, b := t.orEmpty(), o.orEmpty()
	if a.IsOpen != b.IsOpen || a.mode() != b.mode() {
		return false
	}
	if !slices.Equal(a.RemovedEdges, b.RemovedEdges) ||
		!slices.Equal(a.NodePairs, b.NodePairs) ||
		!slices.Equal(a.OriginalEdgeUsage, b.OriginalEdgeUsage) ||
		!slices.Equal(a.NewEdgeUsage, b.NewEdgeUsage) {
		return false
	}
	if a.ImpactStatistics == nil || b.ImpactStatistics == nil {
		return a.ImpactStatistics == b.ImpactStatistics
	}
	return *a.ImpactStatistics == *b.ImpactStatistics
}

func (t *TrafficAnalysis) orEmpty() *TrafficAnalysis {
	if t == nil {
		return &TrafficAnalysis{}
	}
	return t
}

func (t *TrafficAnalysis) mode() VisualizationMode {
	if t.ActiveVisualization == "" {
		return VisualizationNone
	}
	return t.ActiveVisualization
}
