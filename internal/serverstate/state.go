// Package serverstate tracks server readiness: not_ready until a model
// runner is connected, ready while one is, draining during shutdown.
package serverstate

import "sync/atomic"

// State holds the server status and draining flag. Both fields travel
// together so observers always see a consistent snapshot.
type State struct {
	Status   string `json:"status"`
	Draining bool   `json:"draining"`
}

// Store defines how the server state is persisted. Implementations may
// keep state in memory or in an external service such as Redis.
type Store interface {
	Load() State
	Store(State)
}

var active Store = NewMemoryStore()

// UseStore replaces the active Store.
func UseStore(s Store) {
	if s != nil {
		active = s
	}
}

type memoryStore struct {
	v atomic.Value
}

// NewMemoryStore returns a memory-backed Store initialized to "not_ready".
func NewMemoryStore() *memoryStore {
	ms := &memoryStore{}
	ms.v.Store(State{Status: "not_ready"})
	return ms
}

func (m *memoryStore) Load() State {
	if st, ok := m.v.Load().(State); ok {
		return st
	}
	return State{Status: "unknown"}
}

func (m *memoryStore) Store(s State) {
	m.v.Store(s)
}

// SetState updates the server status string.
func SetState(status string) {
	st := active.Load()
	st.Status = status
	active.Store(st)
}

// GetState returns the current server status.
func GetState() string {
	return active.Load().Status
}

// Snapshot returns the full current state.
func Snapshot() State {
	return active.Load()
}

// StartDrain marks the server as draining.
func StartDrain() {
	st := active.Load()
	st.Draining = true
	st.Status = "draining"
	active.Store(st)
}

// IsDraining reports whether the server is draining.
func IsDraining() bool {
	return active.Load().Draining
}
