package web

import (
	"github.com/ritzau/bluecity/pkg/model"
	"github.com/ritzau/bluecity/pkg/traffic"
)

// LegendData describes the active color scale
type LegendData struct {
	Kind   string    `json:"kind"`
	Domain []float64 `json:"domain"`
}

// EdgeColor is the color the active mode assigns to one used edge
type EdgeColor struct {
	U     int64   `json:"u"`
	V     int64   `json:"v"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// TrafficResponse is the traffic panel state
type TrafficResponse struct {
	IsOpen         bool                      `json:"isOpen"`
	RemovedEdges   []traffic.DisplayEdge     `json:"removedEdges"`
	RemovedCount   int                       `json:"removedCount"`
	NodePairs      int                       `json:"nodePairs"`
	Mode           model.VisualizationMode   `json:"activeVisualization"`
	Available      []model.VisualizationMode `json:"availableVisualizations"`
	HasResults     bool                      `json:"hasResults"`
	HasRouteChange bool                      `json:"hasRouteChange"`
	Impact         *model.ImpactStatistics   `json:"impactStatistics,omitempty"`
	Legend         *LegendData               `json:"legend,omitempty"`
	Edges          []EdgeColor               `json:"edges,omitempty"`
}

func trafficResponse(t *traffic.State) TrafficResponse {
	resp := TrafficResponse{
		IsOpen:         t.IsOpen(),
		RemovedEdges:   t.RemovedEdgesForDisplay(),
		RemovedCount:   t.RemovedEdgesCount(),
		NodePairs:      len(t.NodePairs()),
		Mode:           t.ActiveVisualization(),
		Available:      t.AvailableVisualizations(),
		HasResults:     t.HasResults(),
		HasRouteChange: t.HasRouteChange(),
		Impact:         t.ImpactStatistics(),
	}
	if resp.Available == nil {
		resp.Available = []model.VisualizationMode{}
	}
	if scale := t.ActiveScale(); scale != nil {
		resp.Legend = &LegendData{Kind: scale.Kind().String(), Domain: scale.Domain()}
	}
	return resp
}

func edgeColors(t *traffic.State) []EdgeColor {
	usage := t.NewEdgeUsage()
	out := make([]EdgeColor, 0, len(usage))
	for _, stat := range usage {
		value, ok := t.EdgeValue(stat.U, stat.V)
		if !ok {
			continue
		}
		out = append(out, EdgeColor{
			U:     stat.U,
			V:     stat.V,
			Value: value,
			Color: t.EdgeColor(stat.U, stat.V).Hex(),
		})
	}
	return out
}
