// Package fsm holds the request pipeline state machine.
package fsm

import "fmt"

type State string

type Event string

const (
	StateIdle         State = "idle"
	StateListening    State = "listening"
	StateInferring    State = "inferring"
	StateSpeaking     State = "speaking"
	StateError        State = "error"
	StateShuttingDown State = "shutting_down"
)

const (
	EventTrigger    Event = "trigger"
	EventHeard      Event = "heard"
	EventAnswered   Event = "answered"
	EventFarewell   Event = "farewell"
	EventDispatched Event = "dispatched"
	EventApologize  Event = "apologize"
	EventFail       Event = "fail"
	EventReset      Event = "reset"
	EventShutdown   Event = "shutdown"
)

// Transition returns the state reached from current on event.
// EventFail is accepted from any state except ShuttingDown, which is terminal.
func Transition(current State, event Event) (State, error) {
	if current == StateShuttingDown {
		return current, invalidTransition(current, event)
	}
	if event == EventFail {
		return StateError, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventTrigger:
			return StateListening, nil
		case EventShutdown:
			return StateShuttingDown, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventHeard:
			return StateInferring, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateInferring:
		switch event {
		case EventAnswered, EventFarewell:
			return StateSpeaking, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateSpeaking:
		switch event {
		case EventDispatched:
			return StateIdle, nil
		case EventShutdown:
			return StateShuttingDown, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateError:
		switch event {
		case EventApologize:
			return StateSpeaking, nil
		case EventReset:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

// Busy reports whether a request is in flight in state s.
func Busy(s State) bool {
	return s != StateIdle
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", state, event)
}
