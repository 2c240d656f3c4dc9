// Package fsm is a small reflect-based event/state-transition table.
// It is used by internal/constituent as a guard rail: every Follower/
// Candidate/Leader role change is checked against the declared
// transition graph before it is committed, so an invalid transition is
// rejected (Transition panics, CheckedTransition returns an error)
// instead of silently corrupting role state.
package fsm

import (
	"fmt"
	"reflect"
)

type State uint32
type EventType reflect.Type
type Event interface{}

type EventHandler interface {
	Handle(e Event, s State)
	CanHandle(e EventType) bool
}

type FSM struct {
	stateTransitions map[State]map[EventType]State
	handlers         map[EventType][]EventHandler

	currentState State
}

type Transition struct {
	EventType interface{}
	To        State
}

func NewFSM(initialState State, stateTransitions map[State][]Transition, eventHandlers []EventHandler) *FSM {
	handlers := make(map[EventType][]EventHandler)
	eventTypeSet := make(map[EventType]bool)

	internalTransitions := toInternalStateTransitions(stateTransitions)

	for _, eventTypeMap := range internalTransitions {
		for eventType := range eventTypeMap {
			eventTypeSet[eventType] = true
		}
	}

	for eventType := range eventTypeSet {
		for _, h := range eventHandlers {
			if h.CanHandle(eventType) {
				handlers[eventType] = append(handlers[eventType], h)
			}
		}
	}

	return &FSM{
		stateTransitions: internalTransitions,
		handlers:         handlers,
		currentState:     initialState,
	}
}

func toInternalStateTransitions(stateTransitions map[State][]Transition) map[State]map[EventType]State {
	internal := make(map[State]map[EventType]State)

	for from, transitions := range stateTransitions {
		for _, t := range transitions {
			eventType := reflect.TypeOf(t.EventType)

			if eventMap, ok := internal[from]; ok {
				eventMap[eventType] = t.To
			} else {
				internal[from] = map[EventType]State{eventType: t.To}
			}
		}
	}

	return internal
}

// Transition runs any registered handlers for e and moves the FSM to
// the declared next state, panicking if the transition is not legal
// from the current state. Use CheckedTransition at a transactional
// boundary where a panic is not acceptable.
func (f *FSM) Transition(e Event) State {
	state, err := f.CheckedTransition(e)
	if err != nil {
		panic(err)
	}
	return state
}

// CheckedTransition is the non-panicking counterpart: it runs handlers
// and returns the resulting state, or an error describing the illegal
// transition without mutating currentState.
func (f *FSM) CheckedTransition(e Event) (State, error) {
	eventType := reflect.TypeOf(e)

	eventMap, ok := f.stateTransitions[f.currentState]
	if !ok {
		return f.currentState, fmt.Errorf("fsm: no transitions declared from state %v", f.currentState)
	}

	nextState, ok := eventMap[eventType]
	if !ok {
		return f.currentState, fmt.Errorf("fsm: no valid transition from state %v for event type %v", f.currentState, eventType)
	}

	for _, h := range f.handlers[eventType] {
		h.Handle(e, f.currentState)
	}

	f.currentState = nextState
	return nextState, nil
}

func (f *FSM) Current() State {
	return f.currentState
}
