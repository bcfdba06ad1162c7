// Package persistence stores the investigation tree in a single durable
// key-value slot. Persistence is best effort: read failures look like a fresh
// install and write failures are logged and dropped.
package persistence

import (
	"errors"
	"sync"
)

// DefaultKey is the slot key used when none is configured
const DefaultKey = "bluecity-state"

// ErrNotFound is returned by Slot.Read when the key holds nothing
var ErrNotFound = errors.New("slot is empty")

// Slot is a durable key-value store holding whole blobs
type Slot interface {
	Read(key string) ([]byte, error)
	Write(key string, data []byte) error
	Delete(key string) error
}

// MemorySlot keeps blobs in memory. WriteErr, when set, fails every write.
type MemorySlot struct {
	mu       sync.Mutex
	data     map[string][]byte
	WriteErr error
	writes   int
}

// NewMemorySlot creates an empty in-memory slot
func NewMemorySlot() *MemorySlot {
	return &MemorySlot{data: make(map[string][]byte)}
}

// Read returns a copy of the stored blob
func (m *MemorySlot) Read(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Write stores a copy of data, or fails with WriteErr when set
func (m *MemorySlot) Write(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.writes++
	m.data[key] = append([]byte(nil), data...)
	return nil
}

// Delete forgets key
func (m *MemorySlot) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Writes returns how many writes succeeded
func (m *MemorySlot) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
