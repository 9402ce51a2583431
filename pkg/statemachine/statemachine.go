package statemachine

import (
	"fmt"
	"sync"
)

// Machine is a small thread-safe state machine over a comparable state
// type. Transitions are validated against an allowed-transition table;
// a transition that is not listed is a programming error and is
// reported rather than applied.
type Machine[S comparable] struct {
	mu      sync.RWMutex
	current S
	allowed map[S][]S
}

// New creates a machine in the given initial state with the given
// allowed-transition table.
func New[S comparable](initial S, allowed map[S][]S) *Machine[S] {
	return &Machine[S]{
		current: initial,
		allowed: allowed,
	}
}

// Current returns the current state (thread-safe).
func (m *Machine[S]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Is reports whether the machine is currently in the given state.
func (m *Machine[S]) Is(s S) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current == s
}

// Transition moves the machine to the given state if the transition is
// listed as allowed from the current state.
func (m *Machine[S]) Transition(to S) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, next := range m.allowed[m.current] {
		if next == to {
			m.current = to
			return nil
		}
	}
	return fmt.Errorf("statemachine: illegal transition %v -> %v", m.current, to)
}

// Force sets the state without validation. Intended for restoration
// paths only; normal code must use Transition.
func (m *Machine[S]) Force(to S) {
	m.mu.Lock()
	m.current = to
	m.mu.Unlock()
}
