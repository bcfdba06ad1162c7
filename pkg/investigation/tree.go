package investigation

import (
	"fmt"
	"strings"

	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/model"
)

// Projects returns a deep copy of the project tree
func (s *Store) Projects() []*model.Project {
	out := make([]*model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p.Clone())
	}
	return out
}

// Investigation returns a copy of one investigation
func (s *Store) Investigation(id string) (*model.Investigation, error) {
	_, inv := s.find(id)
	if inv == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvestigationNotFound, id)
	}
	return inv.Clone(), nil
}

// CreateProject appends an empty, expanded project
func (s *Store) CreateProject(name string) *model.Project {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Project %d", len(s.projects)+1)
	}
	p := &model.Project{
		ID:             s.newID(),
		Name:           name,
		Expanded:       true,
		Investigations: []*model.Investigation{},
	}
	s.projects = append(s.projects, p)

	logging.Info("created project", "project", p.ID, "name", name)
	s.treeChanged()
	return p.Clone()
}

// RenameProject changes a project's display name
func (s *Store) RenameProject(id, name string) error {
	p, _ := s.findProject(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	p.Name = name
	s.treeChanged()
	return nil
}

// ToggleProjectExpanded flips the project's expanded flag
func (s *Store) ToggleProjectExpanded(id string) (bool, error) {
	p, _ := s.findProject(id)
	if p == nil {
		return false, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	p.Expanded = !p.Expanded
	s.treeChanged()
	return p.Expanded, nil
}

// DeleteProject removes a project and all its investigations. If the active
// investigation was inside, the first remaining investigation becomes active.
func (s *Store) DeleteProject(id string) error {
	p, idx := s.findProject(id)
	if p == nil {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	_, hadActive := p.FindInvestigation(s.activeID)

	s.projects = append(s.projects[:idx:idx], s.projects[idx+1:]...)
	logging.Info("deleted project", "project", id, "investigations", len(p.Investigations))

	if hadActive >= 0 {
		s.fallbackActive()
	}
	s.treeChanged()
	return nil
}

// RenameInvestigation changes an investigation's display name
func (s *Store) RenameInvestigation(id, name string) error {
	_, inv := s.find(id)
	if inv == nil {
		return fmt.Errorf("%w: %s", ErrInvestigationNotFound, id)
	}
	inv.Name = name
	s.treeChanged()
	return nil
}

// DeleteInvestigation removes one investigation, falling back to the first
// remaining one when it was active.
func (s *Store) DeleteInvestigation(id string) error {
	p, inv := s.find(id)
	if inv == nil {
		return fmt.Errorf("%w: %s", ErrInvestigationNotFound, id)
	}
	_, idx := p.FindInvestigation(id)
	p.Investigations = append(p.Investigations[:idx:idx], p.Investigations[idx+1:]...)
	logging.Info("deleted investigation", "investigation", id, "project", p.ID)

	if id == s.activeID {
		s.fallbackActive()
	}
	s.treeChanged()
	return nil
}

// MoveInvestigation moves an investigation to the end of another project
func (s *Store) MoveInvestigation(id, projectID string) error {
	target, _ := s.findProject(projectID)
	if target == nil {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	from, inv := s.find(id)
	if inv == nil {
		return fmt.Errorf("%w: %s", ErrInvestigationNotFound, id)
	}
	if from == target {
		return nil
	}

	_, idx := from.FindInvestigation(id)
	from.Investigations = append(from.Investigations[:idx:idx], from.Investigations[idx+1:]...)
	target.Investigations = append(target.Investigations, inv)
	s.treeChanged()
	return nil
}

// fallbackActive activates the first investigation of any project, or clears
// the active pointer when none remain. The live state is left as it is.
func (s *Store) fallbackActive() {
	for _, p := range s.projects {
		if len(p.Investigations) > 0 {
			s.SwitchToInvestigation(p.Investigations[0].ID)
			return
		}
	}
	s.activeID = ""
	logging.Debug("no investigations left to activate")
}

func (s *Store) treeChanged() {
	s.publish(EventTree)
	s.schedulePersist()
}

func (s *Store) findProject(id string) (*model.Project, int) {
	for i, p := range s.projects {
		if p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

func (s *Store) find(id string) (*model.Project, *model.Investigation) {
	if id == "" {
		return nil, nil
	}
	for _, p := range s.projects {
		if inv, _ := p.FindInvestigation(id); inv != nil {
			return p, inv
		}
	}
	return nil, nil
}
