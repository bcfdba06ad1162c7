package investigation

import (
	"fmt"

	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/model"
)

// SharedSuffix marks the display name of imported investigations
const SharedSuffix = " (shared)"

// ShareURL returns a link carrying the investigation's layers, sources and the
// current period
func (s *Store) ShareURL(id string) (string, error) {
	_, inv := s.find(id)
	if inv == nil {
		return "", fmt.Errorf("%w: %s", ErrInvestigationNotFound, id)
	}
	if s.codec == nil {
		return "", fmt.Errorf("sharing is not configured")
	}
	return s.codec.Encode(*inv, s.period), nil
}

// ImportSharedURL turns a share link into a new investigation at the front of
// the first project and activates it. It returns the URL with the share
// parameter stripped and whether anything was imported. Invalid links leave
// the tree untouched.
func (s *Store) ImportSharedURL(rawURL string) (string, bool) {
	if s.codec == nil || rawURL == "" {
		return rawURL, false
	}
	payload := s.codec.Decode(rawURL)
	if payload == nil {
		return rawURL, false
	}

	inv := &model.Investigation{
		ID:              s.newID(),
		Name:            payload.Name + SharedSuffix,
		SelectedSources: cloneOrEmpty(payload.SelectedSources),
		SelectedLayers:  cloneOrEmpty(payload.SelectedLayers),
		CreatedAt:       model.NewTimestamp(s.now()),
	}

	if len(s.projects) == 0 {
		s.projects = append(s.projects, &model.Project{
			ID:             s.newID(),
			Name:           SharedProjectName,
			Investigations: []*model.Investigation{},
		})
	}
	first := s.projects[0]
	first.Investigations = append([]*model.Investigation{inv}, first.Investigations...)
	first.Expanded = true

	if payload.Period != "" {
		s.period = payload.Period
	}

	logging.Info("imported shared investigation", "investigation", inv.ID, "name", inv.Name, "project", first.ID)
	s.publish(EventImported)
	s.SwitchToInvestigation(inv.ID)

	return s.codec.Strip(rawURL), true
}
