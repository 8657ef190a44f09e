// Package session holds the per-session state of the explorer: the focal
// person with the tree data last received for it, and the conversation.
package session

import (
	"strings"
	"sync"

	"github.com/OFFIS-RIT/lineage/pkg/common"
)

// Snapshot is a copy of the session state at one point in time.
type Snapshot struct {
	CurrentPerson string          `json:"current_person"`
	Tree          common.TreeData `json:"tree"`
}

// HasFocus reports whether a focal person is set.
func (s Snapshot) HasFocus() bool {
	return s.CurrentPerson != ""
}

// State holds the focal person and the tree data it was drawn from.
// Reads and writes copy the paths, so callers never share backing arrays
// with the stored state.
type State struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

func NewState() *State {
	return &State{}
}

// Get returns a copy of the current state.
func (s *State) Get() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		CurrentPerson: s.snapshot.CurrentPerson,
		Tree:          s.snapshot.Tree.Clone(),
	}
}

// Set replaces the focal person and its tree data in one step.
func (s *State) Set(person string, ancestors, descendants []common.PersonPath) {
	tree := common.TreeData{Ancestors: ancestors, Descendants: descendants}.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{
		CurrentPerson: strings.TrimSpace(person),
		Tree:          tree,
	}
}

// Reset clears the state.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{}
}

// IsCurrent reports whether name is the focal person.
func (s *State) IsCurrent(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.CurrentPerson != "" && s.snapshot.CurrentPerson == strings.TrimSpace(name)
}
