package persistence

import (
	"bytes"
	"encoding/json"
	"errors"
	"sync"

	"github.com/ritzau/bluecity/pkg/logging"
	"github.com/ritzau/bluecity/pkg/model"
)

// Adapter serializes model.PersistedState into one slot key
type Adapter struct {
	slot Slot
	key  string

	mu          sync.Mutex
	lastWritten []byte
}

// NewAdapter creates an adapter for key in slot; an empty key uses DefaultKey
func NewAdapter(slot Slot, key string) *Adapter {
	if key == "" {
		key = DefaultKey
	}
	return &Adapter{slot: slot, key: key}
}

// Key returns the slot key
func (a *Adapter) Key() string {
	return a.key
}

// Load reads the slot. Absence and corruption both yield an empty state.
func (a *Adapter) Load() model.PersistedState {
	data, err := a.slot.Read(a.key)
	if errors.Is(err, ErrNotFound) {
		logging.Debug("no persisted state", "key", a.key)
		return model.PersistedState{}
	}
	if err != nil {
		logging.Warn("failed to read persisted state", "key", a.key, "error", err)
		return model.PersistedState{}
	}
	return a.decode(data)
}

func (a *Adapter) decode(data []byte) model.PersistedState {
	var state model.PersistedState
	if err := json.Unmarshal(data, &state); err != nil {
		logging.Warn("discarding malformed persisted state", "key", a.key, "bytes", len(data), "error", err)
		return model.PersistedState{}
	}

	// Drop null entries a hand-edited blob might carry
	projects := state.Projects[:0]
	for _, p := range state.Projects {
		if p == nil {
			continue
		}
		invs := p.Investigations[:0]
		for _, inv := range p.Investigations {
			if inv != nil {
				invs = append(invs, inv)
			}
		}
		p.Investigations = invs
		projects = append(projects, p)
	}
	state.Projects = projects
	return state
}

// Save writes the state. Failures are logged and dropped.
func (a *Adapter) Save(state model.PersistedState) {
	data, err := json.Marshal(state)
	if err != nil {
		logging.Warn("failed to serialize state", "key", a.key, "error", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.slot.Write(a.key, data); err != nil {
		logging.Warn("dropping state write", "key", a.key, "bytes", len(data), "error", err)
		return
	}
	a.lastWritten = data
	logging.Trace("persisted state", "key", a.key, "bytes", len(data))
}

// Clear removes the slot. Only explicit user resets call this.
func (a *Adapter) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.slot.Delete(a.key); err != nil {
		logging.Warn("failed to clear persisted state", "key", a.key, "error", err)
		return
	}
	a.lastWritten = nil
}

// ReloadExternal re-reads the slot and reports whether it now holds something
// other than our own last write. Used to pick up replacements made by another
// process without feeding our own writes back into the store.
// The read and the comparison happen under one lock so a write of ours cannot
// land in between.
func (a *Adapter) ReloadExternal() (model.PersistedState, bool) {
	a.mu.Lock()
	data, err := a.slot.Read(a.key)
	own := err == nil && bytes.Equal(data, a.lastWritten)
	a.mu.Unlock()

	if err != nil || own {
		return model.PersistedState{}, false
	}
	return a.decode(data), true
}
