package element

import (
	"fmt"

	"github.com/pkg/errors"
)

// State is the lifecycle position of an element.
type State int32

const (
	StateNull State = iota + 1
	StateReady
	StatePaused
	StatePlaying
)

func (s State) String() string {
	switch s {
	case StateNull:
		return "NULL"
	case StateReady:
		return "READY"
	case StatePaused:
		return "PAUSED"
	case StatePlaying:
		return "PLAYING"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

func (s State) valid() bool {
	return s >= StateNull && s <= StatePlaying
}

// StateChange is a single step between two adjacent states.
type StateChange struct {
	From State
	To   State
}

var (
	NullToReady     = StateChange{StateNull, StateReady}
	ReadyToPaused   = StateChange{StateReady, StatePaused}
	PausedToPlaying = StateChange{StatePaused, StatePlaying}
	PlayingToPaused = StateChange{StatePlaying, StatePaused}
	PausedToReady   = StateChange{StatePaused, StateReady}
	ReadyToNull     = StateChange{StateReady, StateNull}
)

// Valid reports whether the change moves exactly one state up or down.
func (t StateChange) Valid() bool {
	if !t.From.valid() || !t.To.valid() {
		return false
	}
	d := t.To - t.From
	return d == 1 || d == -1
}

// Upward reports whether the change moves towards Playing.
func (t StateChange) Upward() bool {
	return t.To > t.From
}

func (t StateChange) String() string {
	return fmt.Sprintf("%s->%s", t.From, t.To)
}

// Transitions returns the sequence of single steps leading from one state to
// another. It returns nil when both states are equal.
func Transitions(from, to State) []StateChange {
	var steps []StateChange
	for from != to {
		next := from + 1
		if to < from {
			next = from - 1
		}
		steps = append(steps, StateChange{from, next})
		from = next
	}
	return steps
}

var (
	// ErrInvalidTransition is returned for changes that skip a state or do
	// not start from the element's current state.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrStateChangeFailed is returned when a transition hook refused the change.
	ErrStateChangeFailed = errors.New("state change failed")
)

// StateChangeError halts a transition; the element stays in Transition.From.
type StateChangeError struct {
	Transition StateChange
	Err        error
}

func (e *StateChangeError) Error() string {
	return fmt.Sprintf("changing state %s: %s", e.Transition, e.Err)
}

func (e *StateChangeError) Unwrap() error {
	return e.Err
}

// Is makes every StateChangeError match ErrStateChangeFailed.
func (e *StateChangeError) Is(target error) bool {
	return target == ErrStateChangeFailed
}
