package investigation

import (
	"slices"

	"github.com/ritzau/bluecity/pkg/model"
)

// SelectedLayers returns the live layer selection
func (s *Store) SelectedLayers() []string {
	return model.CloneStrings(s.selectedLayers)
}

// SelectedSources returns the live source selection
func (s *Store) SelectedSources() []string {
	return model.CloneStrings(s.selectedSources)
}

// SetSelectedLayers replaces the live layer selection
func (s *Store) SetSelectedLayers(layers []string) {
	s.selectedLayers = dedupe(layers)
	s.afterLiveMutation()
}

// ToggleLayer adds or removes one layer and reports whether it is now selected
func (s *Store) ToggleLayer(id string) bool {
	var on bool
	s.selectedLayers, on = toggle(s.selectedLayers, id)
	s.afterLiveMutation()
	return on
}

// SetSelectedSources replaces the live source selection
func (s *Store) SetSelectedSources(sources []string) {
	s.selectedSources = dedupe(sources)
	s.afterLiveMutation()
}

// ToggleSource adds or removes one source and reports whether it is now selected
func (s *Store) ToggleSource(id string) bool {
	var on bool
	s.selectedSources, on = toggle(s.selectedSources, id)
	s.afterLiveMutation()
	return on
}

// Period returns the UI period selector value
func (s *Store) Period() string {
	return s.period
}

// SetPeriod changes the period selector. The period is not part of an
// investigation, so only persistence is affected.
func (s *Store) SetPeriod(period string) {
	if s.period == period {
		return
	}
	s.period = period
	s.schedulePersist()
}

// ExpandedGroups returns a copy of the layer-group expansion flags
func (s *Store) ExpandedGroups() map[string]bool {
	out := make(map[string]bool, len(s.expandedGroups))
	for k, v := range s.expandedGroups {
		out[k] = v
	}
	return out
}

// SetGroupExpanded records whether a layer group is expanded in the UI
func (s *Store) SetGroupExpanded(group string, expanded bool) {
	if s.expandedGroups[group] == expanded {
		if _, ok := s.expandedGroups[group]; ok {
			return
		}
	}
	s.expandedGroups[group] = expanded
	s.schedulePersist()
}

func toggle(list []string, id string) ([]string, bool) {
	if i := slices.Index(list, id); i >= 0 {
		return slices.Delete(slices.Clone(list), i, i+1), false
	}
	return append(slices.Clone(list), id), true
}

func dedupe(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, v := range in {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
