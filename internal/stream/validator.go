package stream

import (
	"fmt"

	"shoveld/internal/shovelerrors"
)

// State is a validator's current position. Concrete validators (the
// transaction validator, the consumer validator) each define their own
// state values and transition table; State is their shared vocabulary.
type State interface {
	// StateClass groups related states for transition-table lookup (e.g.
	// every "in transaction for publisher P" state shares a class).
	StateClass() string
}

// Transition computes the next state for one message given the current
// state, or returns an error wrapping InvalidEvent if the message is not
// valid from that state.
type Transition func(current State, msg Message) (State, error)

// Machine is a table {state class -> {event tag -> Transition}} plus a
// start state — the stateful transducer primitive of §4.I. It produces,
// for each input message, (new_state, message), or fails on an unknown
// start state, an unknown tag in the current state, or a transition
// function's own validation error.
type Machine struct {
	start       State
	transitions map[string]map[OperationKind]Transition
}

// NewMachine builds a Machine from its start state and transition table.
func NewMachine(start State, transitions map[string]map[OperationKind]Transition) *Machine {
	return &Machine{start: start, transitions: transitions}
}

// Step advances the machine by one message, returning the new state.
func (m *Machine) Step(current State, msg Message) (State, error) {
	if current == nil {
		current = m.start
	}
	byTag, ok := m.transitions[current.StateClass()]
	if !ok {
		return nil, &shovelerrors.InvalidEvent{Reason: fmt.Sprintf("unknown start state class %q", current.StateClass())}
	}
	fn, ok := byTag[msg.Kind]
	if !ok {
		return nil, &shovelerrors.InvalidEvent{Reason: fmt.Sprintf("unexpected %s in state class %q", msg.Kind, current.StateClass())}
	}
	return fn(current, msg)
}

// Trace runs every message in msgs through the machine in order,
// returning the (state, message) pairs produced. It stops and returns
// the first error encountered.
func (m *Machine) Trace(msgs []Message) ([]StateMessage, error) {
	out := make([]StateMessage, 0, len(msgs))
	var current State = m.start
	for _, msg := range msgs {
		next, err := m.Step(current, msg)
		if err != nil {
			return out, err
		}
		current = next
		out = append(out, StateMessage{State: current, Message: msg})
	}
	return out, nil
}

// StateMessage pairs a post-transition state with the message that
// produced it.
type StateMessage struct {
	State   State
	Message Message
}
