package statemachine

import (
	"testing"
)

type phase int

const (
	idle phase = iota
	running
	done
)

func newMachine() *Machine[phase] {
	return New(idle, map[phase][]phase{
		idle:    {running},
		running: {done, idle},
		done:    {},
	})
}

func TestTransitionFollowsTable(t *testing.T) {
	m := newMachine()

	if !m.Is(idle) {
		t.Fatalf("initial state = %v, want idle", m.Current())
	}
	if err := m.Transition(running); err != nil {
		t.Fatalf("idle -> running: %v", err)
	}
	if err := m.Transition(idle); err != nil {
		t.Fatalf("running -> idle: %v", err)
	}
}

func TestIllegalTransitionRejected(t *testing.T) {
	m := newMachine()

	if err := m.Transition(done); err == nil {
		t.Fatalf("idle -> done must be rejected")
	}
	if !m.Is(idle) {
		t.Errorf("rejected transition must not change state, got %v", m.Current())
	}
}

func TestTerminalStateHasNoExits(t *testing.T) {
	m := newMachine()
	_ = m.Transition(running)
	_ = m.Transition(done)

	if err := m.Transition(idle); err == nil {
		t.Errorf("done has no allowed exits")
	}
}

func TestForceBypassesValidation(t *testing.T) {
	m := newMachine()
	m.Force(done)
	if !m.Is(done) {
		t.Errorf("force must set the state unconditionally")
	}
}
