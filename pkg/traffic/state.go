// Package traffic holds the live traffic-impact simulation state: the set of
// removed edges, the sampled node pairs, the latest usage statistics and the
// color scales calibrated from them.
//
// State is not safe for concurrent use. Every mutation publishes exactly one
// event on pubsub.TopicTraffic.
package traffic

import (
	"math"
	"sort"

	"github.com/ritzau/bluecity/pkg/colorscale"
	"github.com/ritzau/bluecity/pkg/edgekey"
	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/model"
	"github.com/ritzau/bluecity/pkg/pubsub"
)

// Event types published on pubsub.TopicTraffic
const (
	EventEdgesChanged  = "edges_changed"
	EventPairsChanged  = "pairs_changed"
	EventUsageChanged  = "usage_changed"
	EventResultsClear  = "results_cleared"
	EventModeChanged   = "mode_changed"
	EventPanelToggled  = "panel_toggled"
	EventStateRestored = "restored"
)

// State is the traffic simulation singleton
type State struct {
	publisher pubsub.Publisher

	isOpen       bool
	removed      map[string]struct{}
	removedOrder []string          // insertion order of removed keys
	names        map[string]string // key -> street name, only for keys in removed

	nodePairs     []model.NodePair
	originalUsage []model.EdgeUsageStat
	newUsage      []model.EdgeUsageStat
	usageIndex    map[string]model.EdgeUsageStat
	impact        *model.ImpactStatistics

	calibration *colorscale.Calibration
	mode        model.VisualizationMode
	active      *colorscale.Scale

	restoring bool
}

// NewState creates an empty state publishing on p. A nil publisher gets a private broker.
func NewState(p pubsub.Publisher) *State {
	if p == nil {
		p = pubsub.NewBroker()
	}
	return &State{
		publisher:   p,
		removed:     make(map[string]struct{}),
		names:       make(map[string]string),
		usageIndex:  make(map[string]model.EdgeUsageStat),
		calibration: &colorscale.Calibration{},
		mode:        model.VisualizationNone,
	}
}

// IsRestoring reports whether RestoreState is in progress. Listeners use it
// to tell restored values apart from user edits.
func (s *State) IsRestoring() bool {
	return s.restoring
}

// IsOpen reports whether the simulation panel is open
func (s *State) IsOpen() bool {
	return s.isOpen
}

// SetOpen opens or closes the simulation panel
func (s *State) SetOpen(open bool) {
	if s.isOpen == open {
		return
	}
	s.isOpen = open
	s.notify(EventPanelToggled)
}

// AddRemovedEdge marks u->v as closed. A non-empty name replaces the stored one.
func (s *State) AddRemovedEdge(u, v int64, name string) {
	s.addEdge(u, v, name)
	s.notify(EventEdgesChanged)
}

func (s *State) addEdge(u, v int64, name string) {
	key := edgekey.Encode(u, v)
	if _, ok := s.removed[key]; !ok {
		s.removed[key] = struct{}{}
		s.removedOrder = append(s.removedOrder, key)
	}
	if name != "" {
		s.names[key] = name
	}
}

// RemoveRemovedEdge reopens u->v
func (s *State) RemoveRemovedEdge(u, v int64) {
	if !s.dropEdge(edgekey.Encode(u, v)) {
		return
	}
	s.notify(EventEdgesChanged)
}

func (s *State) dropEdge(key string) bool {
	if _, ok := s.removed[key]; !ok {
		return false
	}
	delete(s.removed, key)
	delete(s.names, key)
	for i, k := range s.removedOrder {
		if k == key {
			s.removedOrder = append(s.removedOrder[:i:i], s.removedOrder[i+1:]...)
			break
		}
	}
	return true
}

// ToggleEdge closes u->v if it is open and reopens it otherwise.
// It returns whether the edge is removed afterwards.
func (s *State) ToggleEdge(u, v int64, name string) bool {
	key := edgekey.Encode(u, v)
	removed := !s.dropEdge(key)
	if removed {
		s.addEdge(u, v, name)
	}
	s.notify(EventEdgesChanged)
	return removed
}

// ClearRemovedEdges reopens every edge
func (s *State) ClearRemovedEdges() {
	if len(s.removed) == 0 {
		return
	}
	s.removed = make(map[string]struct{})
	s.names = make(map[string]string)
	s.removedOrder = nil
	s.notify(EventEdgesChanged)
}

// IsRemoved reports whether u->v is closed
func (s *State) IsRemoved(u, v int64) bool {
	_, ok := s.removed[edgekey.Encode(u, v)]
	return ok
}

// RemovedKeys returns the removed edge keys in insertion order
func (s *State) RemovedKeys() []string {
	return append([]string(nil), s.removedOrder...)
}

// RemovedEdges returns the removed edges with their names, in insertion order
func (s *State) RemovedEdges() []model.RemovedEdge {
	out := make([]model.RemovedEdge, 0, len(s.removedOrder))
	for _, key := range s.removedOrder {
		u, v, err := edgekey.Parse(key)
		if err != nil {
			logging.Error("removed edge set holds a malformed key", "edge", key)
			continue
		}
		out = append(out, model.RemovedEdge{U: u, V: v, Name: s.names[key]})
	}
	return out
}

// DisplayEdge is one physical segment in the removed-edge list
type DisplayEdge struct {
	edgekey.Consolidated
	Name string `json:"name"`
}

// RemovedEdgesForDisplay folds two-way closures into one entry, sorted by
// display name and then key.
func (s *State) RemovedEdgesForDisplay() []DisplayEdge {
	consolidated := edgekey.ConsolidateBidirectional(s.removedOrder)
	out := make([]DisplayEdge, 0, len(consolidated))
	for _, c := range consolidated {
		name := s.names[c.Key]
		if name == "" && c.IsBidirectional {
			name = s.names[edgekey.Reverse(c.Key)]
		}
		out = append(out, DisplayEdge{Consolidated: c, Name: name})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// RemovedEdgesCount counts physical segments: a two-way closure counts once
func (s *State) RemovedEdgesCount() int {
	return len(edgekey.ConsolidateBidirectional(s.removedOrder))
}

// SetNodePairs replaces the sampled origin/destination list
func (s *State) SetNodePairs(pairs []model.NodePair) {
	s.nodePairs = append([]model.NodePair(nil), pairs...)
	s.notify(EventPairsChanged)
}

// NodePairs returns a copy of the sampled pairs
func (s *State) NodePairs() []model.NodePair {
	return append([]model.NodePair(nil), s.nodePairs...)
}

// SetEdgeUsage stores a simulation result and recalibrates every scale
func (s *State) SetEdgeUsage(original, updated []model.EdgeUsageStat, impact *model.ImpactStatistics) {
	s.applyUsage(original, updated, impact)
	s.recalibrate()
	s.notify(EventUsageChanged)
}

func (s *State) applyUsage(original, updated []model.EdgeUsageStat, impact *model.ImpactStatistics) {
	s.originalUsage = append([]model.EdgeUsageStat(nil), original...)
	s.newUsage = append([]model.EdgeUsageStat(nil), updated...)
	s.usageIndex = make(map[string]model.EdgeUsageStat, len(updated))
	for _, stat := range updated {
		s.usageIndex[edgekey.Encode(stat.U, stat.V)] = stat
	}
	s.impact = nil
	if impact != nil {
		copied := *impact
		s.impact = &copied
	}
}

// ClearResults drops usage, impact and scales, keeping edges and pairs
func (s *State) ClearResults() {
	s.applyUsage(nil, nil, nil)
	s.recalibrate()
	s.notify(EventResultsClear)
}

// recalibrate recomputes every scale and selects the default mode
func (s *State) recalibrate() {
	s.calibration = colorscale.Calibrate(s.originalUsage, s.newUsage)
	s.mode = s.calibration.DefaultMode()
	s.active = s.calibration.Select(s.mode)
	logging.Debug("recalibrated color scales",
		"mode", string(s.mode),
		"edges", len(s.newUsage),
		"available", len(s.calibration.Available()),
	)
}

// SetActiveVisualization switches among the already computed scales
func (s *State) SetActiveVisualization(mode model.VisualizationMode) {
	s.mode = mode
	s.active = s.calibration.Select(mode)
	s.notify(EventModeChanged)
}

// ActiveVisualization returns the current mode
func (s *State) ActiveVisualization() model.VisualizationMode {
	return s.mode
}

// AvailableVisualizations lists modes with a computed scale
func (s *State) AvailableVisualizations() []model.VisualizationMode {
	return s.calibration.Available()
}

// ActiveScale returns the selected scale, nil when none applies
func (s *State) ActiveScale() *colorscale.Scale {
	return s.active
}

// GetColor maps a value through the active scale
func (s *State) GetColor(value float64) colorscale.RGB {
	return s.active.Color(value)
}

// EdgeValue returns the quantity the active mode colors u->v by
func (s *State) EdgeValue(u, v int64) (float64, bool) {
	stat, ok := s.usageIndex[edgekey.Encode(u, v)]
	if !ok {
		return 0, false
	}
	value := colorscale.Value(s.mode, stat)
	return value, !math.IsNaN(value)
}

// EdgeColor colors u->v under the active mode; edges without usage are neutral
func (s *State) EdgeColor(u, v int64) colorscale.RGB {
	value, ok := s.EdgeValue(u, v)
	if !ok {
		return colorscale.Neutral
	}
	return s.GetColor(value)
}

// OriginalEdgeUsage returns a copy of the pre-closure usage batch
func (s *State) OriginalEdgeUsage() []model.EdgeUsageStat {
	return append([]model.EdgeUsageStat(nil), s.originalUsage...)
}

// NewEdgeUsage returns a copy of the post-closure usage batch
func (s *State) NewEdgeUsage() []model.EdgeUsageStat {
	return append([]model.EdgeUsageStat(nil), s.newUsage...)
}

// ImpactStatistics returns a copy of the latest impact summary
func (s *State) ImpactStatistics() *model.ImpactStatistics {
	if s.impact == nil {
		return nil
	}
	copied := *s.impact
	return &copied
}

// HasResults reports whether a simulation result is loaded
func (s *State) HasResults() bool {
	return len(s.newUsage) > 0
}

// HasRouteChange reports whether the closures changed the set of used edges,
// which decides whether the "new routes" overlay is shown.
func (s *State) HasRouteChange() bool {
	return len(s.newUsage) != len(s.originalUsage)
}

// Snapshot captures the state as a detached value
func (s *State) Snapshot() *model.TrafficAnalysis {
	snap := &model.TrafficAnalysis{
		IsOpen:              s.isOpen,
		RemovedEdges:        s.RemovedEdges(),
		NodePairs:           s.NodePairs(),
		OriginalEdgeUsage:   s.OriginalEdgeUsage(),
		NewEdgeUsage:        s.NewEdgeUsage(),
		ImpactStatistics:    s.ImpactStatistics(),
		ActiveVisualization: s.mode,
	}
	return snap
}

// RestoreState replaces every field with the snapshot's values in one batch.
// A nil snapshot restores the empty state. Listeners observe a single
// EventStateRestored while IsRestoring still reports true.
func (s *State) RestoreState(snap *model.TrafficAnalysis) {
	s.restoring = true
	defer func() { s.restoring = false }()

	if snap == nil {
		snap = &model.TrafficAnalysis{}
	}
	snap = snap.Clone()

	s.isOpen = snap.IsOpen
	s.removed = make(map[string]struct{}, len(snap.RemovedEdges))
	s.names = make(map[string]string, len(snap.RemovedEdges))
	s.removedOrder = nil
	for _, e := range snap.RemovedEdges {
		if e.U < 0 || e.V < 0 {
			logging.Warn("dropping removed edge with negative node id", "u", e.U, "v", e.V)
			continue
		}
		s.addEdge(e.U, e.V, e.Name)
	}
	s.nodePairs = snap.NodePairs

	s.applyUsage(snap.OriginalEdgeUsage, snap.NewEdgeUsage, snap.ImpactStatistics)
	s.recalibrate()

	// The captured mode wins over the auto-selected one, with or without usage
	if mode, ok := model.ParseVisualizationMode(string(snap.ActiveVisualization)); ok {
		s.mode = mode
		s.active = s.calibration.Select(mode)
	}

	s.notify(EventStateRestored)
}

func (s *State) notify(eventType string) {
	payload := pubsub.TrafficChanged{
		Mode:         string(s.mode),
		RemovedEdges: s.RemovedEdgesCount(),
		HasResults:   s.HasResults(),
		Restoring:    s.restoring,
	}
	if err := s.publisher.Publish(pubsub.TopicTraffic, eventType, payload); err != nil {
		logging.Debug("traffic event not delivered", "type", eventType, "error", err)
	}
}
