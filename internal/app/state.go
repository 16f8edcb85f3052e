package app

import (
	"sync"

	"github.com/rescp17/reactionTrainer/pkg/flash"
	"github.com/rescp17/reactionTrainer/pkg/pairing"
)

// Session is the read-only view of a pairing session handed to the UI.
type Session struct {
	ID         string
	State      pairing.State
	Role       pairing.Role
	Connected  bool
	Candidates int
	// Payload is the encoded local description the other device scans.
	Payload           string
	PayloadGeneration uint64
	ScanMode          bool
	// FlashActive is set once the data channel is handed to the flash
	// protocol.
	FlashActive bool
	Flash       flash.State
	Notice      string
}

// CanControlFlash reports whether start, stop and the settings are usable.
func (s Session) CanControlFlash() bool {
	return s.FlashActive && s.Connected && s.Role == pairing.RoleLeader
}

// Training is the read-only view of a solo training session.
type Training struct {
	Config    flash.Config
	Speech    bool
	FlashOn   bool
	Direction string
	Flashes   int
	Notice    string
}

// StateManager guards one projection. Writers replace fields through
// Update; readers get copies.
type StateManager[T any] struct {
	mu    sync.Mutex
	state T
}

// NewStateManager creates a new StateManager holding initial.
func NewStateManager[T any](initial T) *StateManager[T] {
	return &StateManager[T]{state: initial}
}

// Snapshot returns a copy of the current state.
func (m *StateManager[T]) Snapshot() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Update applies fn under the lock and returns the resulting state.
func (m *StateManager[T]) Update(fn func(*T)) T {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.state)
	return m.state
}
