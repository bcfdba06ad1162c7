// Package investigation owns the project/investigation tree and keeps the
// active investigation mirroring the live selection and traffic state.
//
// The store is not safe for concurrent use; callers serialize access the way
// a UI event loop would.
package investigation

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/model"
	"github.com/ritzau/bluecity/pkg/persistence"
	"github.com/ritzau/bluecity/pkg/pubsub"
	"github.com/ritzau/bluecity/pkg/share"
	"github.com/ritzau/bluecity/pkg/traffic"
)

var (
	// ErrProjectNotFound is returned for unknown project ids
	ErrProjectNotFound = errors.New("project not found")
	// ErrInvestigationNotFound is returned for unknown investigation ids
	ErrInvestigationNotFound = errors.New("investigation not found")
)

// Event types published on pubsub.TopicInvestigations
const (
	EventLoaded   = "loaded"
	EventSwitched = "switched"
	EventSaved    = "saved"
	EventUpdated  = "updated"
	EventImported = "imported"
	EventTree     = "tree_changed"
	EventReset    = "reset"
)

// SharedProjectName names the project created for imports when none exists
const SharedProjectName = "Shared"

// Options carries the store's collaborators
type Options struct {
	Traffic   *traffic.State
	Publisher pubsub.Publisher
	Writer    *persistence.Writer // nil disables persistence
	Codec     *share.Codec        // nil disables sharing
	NewID     func() string
	Now       func() time.Time
}

// Store is the investigation orchestrator
type Store struct {
	traffic   *traffic.State
	publisher pubsub.Publisher
	writer    *persistence.Writer
	codec     *share.Codec
	newID     func() string
	now       func() time.Time

	projects        []*model.Project
	activeID        string
	selectedLayers  []string
	selectedSources []string
	period          string
	expandedGroups  map[string]bool

	loading    bool
	suppressed int
	stopListen func()
}

// NewStore wires a store to its collaborators
func NewStore(opts Options) *Store {
	if opts.Publisher == nil {
		opts.Publisher = pubsub.NewBroker()
	}
	if opts.Traffic == nil {
		opts.Traffic = traffic.NewState(opts.Publisher)
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.Must(uuid.NewV7()).String() }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		traffic:        opts.Traffic,
		publisher:      opts.Publisher,
		writer:         opts.Writer,
		codec:          opts.Codec,
		newID:          opts.NewID,
		now:            opts.Now,
		expandedGroups: make(map[string]bool),
	}
	s.stopListen = s.publisher.Listen(pubsub.TopicTraffic, s.onTrafficChanged)
	return s
}

// Close detaches the store from the traffic state and flushes pending writes
func (s *Store) Close() {
	s.stopListen()
	if s.writer != nil {
		s.writer.Close()
	}
}

// Init loads the persisted tree, then imports a shared investigation from
// currentURL if it carries one. Only when nothing was imported is the
// persisted active investigation restored. It returns the URL to show, with
// the share parameter stripped after a successful import.
func (s *Store) Init(currentURL string) string {
	state := model.PersistedState{}
	if s.writer != nil {
		state = s.writer.Adapter().Load()
	}
	s.apply(state)
	s.publish(EventLoaded)

	cleaned, imported := s.ImportSharedURL(currentURL)
	if !imported && state.ActiveInvestigationID != "" {
		if !s.SwitchToInvestigation(state.ActiveInvestigationID) {
			logging.Warn("persisted active investigation no longer exists", "investigation", state.ActiveInvestigationID)
		}
	}
	return cleaned
}

// Reload replaces the whole tree with state read from outside this process.
// It is a wholesale replace, never a merge.
func (s *Store) Reload(state model.PersistedState) {
	if s.writer != nil {
		s.writer.Discard()
	}
	s.apply(state)
	if _, inv := s.find(state.ActiveInvestigationID); inv != nil {
		s.SwitchToInvestigation(inv.ID)
	} else {
		s.activeID = ""
	}
	logging.Info("reloaded investigations from storage", "projects", len(s.projects))
	s.publish(EventLoaded)
}

func (s *Store) apply(state model.PersistedState) {
	prev := s.loading
	s.loading = true
	defer func() { s.loading = prev }()

	state = state.Clone()
	s.projects = state.Projects
	s.selectedLayers = state.SelectedLayers
	s.selectedSources = state.SelectedSources
	s.period = state.Period
	s.expandedGroups = state.ExpandedGroups
	if s.expandedGroups == nil {
		s.expandedGroups = make(map[string]bool)
	}
	s.activeID = ""
	s.traffic.SetOpen(state.TrafficPanelOpen)
}

// IsLoadingInvestigation reports whether a switch is restoring state right now
func (s *Store) IsLoadingInvestigation() bool {
	return s.loading
}

// SuppressedWriteBacks counts write-backs skipped because a restore was running
func (s *Store) SuppressedWriteBacks() int {
	return s.suppressed
}

// Traffic returns the traffic state the store mirrors
func (s *Store) Traffic() *traffic.State {
	return s.traffic
}

// SwitchToInvestigation makes id active and pushes its snapshot into the live
// state. Unknown or empty ids are a no-op and return false.
func (s *Store) SwitchToInvestigation(id string) bool {
	if id == "" {
		return false
	}
	_, inv := s.find(id)
	if inv == nil {
		logging.Debug("switch to unknown investigation ignored", "investigation", id)
		return false
	}

	prev := s.loading
	s.loading = true
	defer func() { s.loading = prev }()

	s.activeID = inv.ID
	s.selectedSources = model.CloneStrings(inv.SelectedSources)
	s.selectedLayers = model.CloneStrings(inv.SelectedLayers)
	s.traffic.RestoreState(inv.TrafficAnalysis)

	logging.Info("switched investigation", "investigation", inv.ID, "name", inv.Name)
	s.publish(EventSwitched)
	s.schedulePersist()
	return true
}

// SaveCurrentState captures the live state into a new investigation appended
// to the project and makes it active. An empty name gets a numbered default.
func (s *Store) SaveCurrentState(projectID, name string) (*model.Investigation, error) {
	p, _ := s.findProject(projectID)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	if name == "" {
		name = fmt.Sprintf("Investigation %d", len(p.Investigations)+1)
	}

	inv := &model.Investigation{
		ID:              s.newID(),
		Name:            name,
		SelectedSources: cloneOrEmpty(s.selectedSources),
		SelectedLayers:  cloneOrEmpty(s.selectedLayers),
		CreatedAt:       model.NewTimestamp(s.now()),
		TrafficAnalysis: s.traffic.Snapshot(),
	}
	p.Investigations = append(p.Investigations, inv)
	p.Expanded = true
	s.activeID = inv.ID

	logging.Info("saved investigation", "investigation", inv.ID, "project", p.ID, "name", name)
	s.publish(EventSaved)
	s.schedulePersist()
	return inv.Clone(), nil
}

// UpdateCurrentInvestigation overwrites the active investigation with the live
// state. It does nothing while a switch is restoring, when nothing is active,
// or when the live state still equals what is stored.
func (s *Store) UpdateCurrentInvestigation() {
	if s.loading || s.traffic.IsRestoring() {
		s.suppressed++
		logging.Trace("write-back suppressed during restore", "investigation", s.activeID)
		return
	}
	inv := s.active()
	if inv == nil {
		return
	}

	snap := s.traffic.Snapshot()
	sameTraffic := inv.TrafficAnalysis.Equivalent(snap)
	if sameTraffic &&
		slices.Equal(inv.SelectedSources, s.selectedSources) &&
		slices.Equal(inv.SelectedLayers, s.selectedLayers) {
		return
	}

	inv.SelectedSources = cloneOrEmpty(s.selectedSources)
	inv.SelectedLayers = cloneOrEmpty(s.selectedLayers)
	if !sameTraffic {
		inv.TrafficAnalysis = snap
	}

	s.publish(EventUpdated)
	s.schedulePersist()
}

func (s *Store) onTrafficChanged(pubsub.Event) {
	if s.loading || s.traffic.IsRestoring() {
		s.suppressed++
		return
	}
	s.afterLiveMutation()
}

// afterLiveMutation runs after every change to the live selection
func (s *Store) afterLiveMutation() {
	s.UpdateCurrentInvestigation()
	s.schedulePersist()
}

// ActiveID returns the active investigation id, empty when none
func (s *Store) ActiveID() string {
	return s.activeID
}

// ActiveInvestigation returns a copy of the active investigation, or nil
func (s *Store) ActiveInvestigation() *model.Investigation {
	return s.active().Clone()
}

func (s *Store) active() *model.Investigation {
	if s.activeID == "" {
		return nil
	}
	_, inv := s.find(s.activeID)
	return inv
}

// PersistedState returns a detached copy of everything that gets persisted
func (s *Store) PersistedState() model.PersistedState {
	state := model.PersistedState{
		SelectedLayers:        s.selectedLayers,
		SelectedSources:       s.selectedSources,
		Projects:              s.projects,
		ActiveInvestigationID: s.activeID,
		Period:                s.period,
		ExpandedGroups:        s.expandedGroups,
		TrafficPanelOpen:      s.traffic.IsOpen(),
	}
	return state.Clone()
}

// Flush writes pending state immediately
func (s *Store) Flush() {
	if s.writer != nil {
		s.writer.Flush()
	}
}

// Reset forgets everything, in memory and in storage
func (s *Store) Reset() {
	if s.writer != nil {
		s.writer.Discard()
		s.writer.Adapter().Clear()
	}

	prev := s.loading
	s.loading = true
	s.projects = nil
	s.activeID = ""
	s.selectedLayers = nil
	s.selectedSources = nil
	s.period = ""
	s.expandedGroups = make(map[string]bool)
	s.traffic.RestoreState(nil)
	s.loading = prev

	logging.Info("reset all investigations")
	s.publish(EventReset)
}

func (s *Store) schedulePersist() {
	if s.writer == nil {
		return
	}
	s.writer.Schedule(s.PersistedState())
}

func (s *Store) publish(eventType string) {
	count := 0
	for _, p := range s.projects {
		count += len(p.Investigations)
	}
	payload := pubsub.InvestigationsChanged{
		ActiveID:       s.activeID,
		Projects:       len(s.projects),
		Investigations: count,
	}
	if err := s.publisher.Publish(pubsub.TopicInvestigations, eventType, payload); err != nil {
		logging.Debug("investigation event not delivered", "type", eventType, "error", err)
	}
}

func cloneOrEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return model.CloneStrings(in)
}
