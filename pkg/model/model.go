package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Investigation is a named, saved snapshot of the layer/source selection plus
// an optional traffic simulation state.
type Investigation struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	SelectedSources []string         `json:"selectedSources"`
	SelectedLayers  []string         `json:"selectedLayers"`
	CreatedAt       Timestamp        `json:"createdAt"`
	TrafficAnalysis *TrafficAnalysis `json:"trafficAnalysis,omitempty"` // nil when no simulation was captured
}

// Clone returns a deep copy of the investigation
func (inv *Investigation) Clone() *Investigation {
	if inv == nil {
		return nil
	}
	return &Investigation{
		ID:              inv.ID,
		Name:            inv.Name,
		SelectedSources: CloneStrings(inv.SelectedSources),
		SelectedLayers:  CloneStrings(inv.SelectedLayers),
		CreatedAt:       inv.CreatedAt,
		TrafficAnalysis: inv.TrafficAnalysis.Clone(),
	}
}

// Project is a named folder grouping investigations. Deleting a project
// deletes all of its investigations.
type Project struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Expanded       bool             `json:"expanded"`
	Investigations []*Investigation `json:"investigations"`
}

// Clone returns a deep copy of the project and its investigations
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	out := &Project{
		ID:             p.ID,
		Name:           p.Name,
		Expanded:       p.Expanded,
		Investigations: make([]*Investigation, 0, len(p.Investigations)),
	}
	for _, inv := range p.Investigations {
		out.Investigations = append(out.Investigations, inv.Clone())
	}
	return out
}

// FindInvestigation returns the investigation with the given id, if present
func (p *Project) FindInvestigation(id string) (*Investigation, int) {
	for i, inv := range p.Investigations {
		if inv.ID == id {
			return inv, i
		}
	}
	return nil, -1
}

// PersistedState is everything written to the durable storage slot.
// The slot is overwritten wholesale on every save.
type PersistedState struct {
	SelectedLayers        []string        `json:"selectedLayers,omitempty"`
	SelectedSources       []string        `json:"selectedSources,omitempty"`
	Projects              []*Project      `json:"projects,omitempty"`
	ActiveInvestigationID string          `json:"activeInvestigationId,omitempty"`
	Period                string          `json:"period,omitempty"`
	ExpandedGroups        map[string]bool `json:"expandedGroups,omitempty"`
	TrafficPanelOpen      bool            `json:"trafficPanelOpen,omitempty"`
}

// IsEmpty reports whether the state carries nothing at all (fresh install)
func (s PersistedState) IsEmpty() bool {
	return len(s.SelectedLayers) == 0 &&
		len(s.SelectedSources) == 0 &&
		len(s.Projects) == 0 &&
		s.ActiveInvestigationID == "" &&
		s.Period == "" &&
		len(s.ExpandedGroups) == 0 &&
		!s.TrafficPanelOpen
}

// Clone returns a deep copy of the persisted state
func (s PersistedState) Clone() PersistedState {
	out := PersistedState{
		SelectedLayers:        CloneStrings(s.SelectedLayers),
		SelectedSources:       CloneStrings(s.SelectedSources),
		ActiveInvestigationID: s.ActiveInvestigationID,
		Period:                s.Period,
		TrafficPanelOpen:      s.TrafficPanelOpen,
	}
	if s.Projects != nil {
		out.Projects = make([]*Project, 0, len(s.Projects))
		for _, p := range s.Projects {
			out.Projects = append(out.Projects, p.Clone())
		}
	}
	if s.ExpandedGroups != nil {
		out.ExpandedGroups = make(map[string]bool, len(s.ExpandedGroups))
		for k, v := range s.ExpandedGroups {
			out.ExpandedGroups[k] = v
		}
	}
	return out
}

// CloneStrings copies a string slice, preserving nil
func CloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Timestamp is a time that tolerates the formats found in stored blobs:
// RFC 3339 strings, epoch milliseconds, or null. Unparseable values
// rehydrate to the zero time instead of failing the whole document.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// MarshalJSON writes the time as an RFC 3339 string
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts a string, a number of milliseconds, or null
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	ts.Time = time.Time{}
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			ts.Time = t
		}
		return nil
	}
	if ms, err := strconv.ParseFloat(string(data), 64); err == nil {
		ts.Time = time.UnixMilli(int64(ms)).UTC()
	}
	return nil
}
