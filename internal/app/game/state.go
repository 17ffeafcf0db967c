// Package game provides the guessing game session state machine.
package game

import "github.com/osa030/earshot/internal/domain/track"

// State represents the session state.
type State int

const (
	StateIdle    State = iota // No round in progress
	StateLoading              // Resolving the next track
	StateStaged               // Playing snippet stages
	StateSuccess              // Guessed correctly
	StateFailure              // All stages used
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateStaged:
		return "staged"
	case StateSuccess:
		return "success"
	case StateFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Terminal reports whether the round has ended with a known track.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailure
}

// Outcome is the result of one guess or skip.
type Outcome int

const (
	OutcomeWrong   Outcome = iota // Guess did not match
	OutcomeSkipped                // Stage was skipped
	OutcomeCorrect                // Guess matched
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeWrong:
		return "wrong"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeCorrect:
		return "correct"
	default:
		return "unknown"
	}
}

// Attempt records what happened at one stage.
type Attempt struct {
	Stage   int // 0-based stage index
	Guess   string
	Outcome Outcome
}

// EventType represents a session event type.
type EventType int

const (
	EventLoading      EventType = iota // Track resolution started
	EventLoadFailed                    // No track could be resolved
	EventStageEntered                  // A snippet stage was entered
	EventAttempted                     // A guess or skip was recorded
	EventRoundEnded                    // Success or failure reached
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventLoading:
		return "loading"
	case EventLoadFailed:
		return "load_failed"
	case EventStageEntered:
		return "stage_entered"
	case EventAttempted:
		return "attempted"
	case EventRoundEnded:
		return "round_ended"
	default:
		return "unknown"
	}
}

// Event represents a session event.
type Event struct {
	Type    EventType
	State   State
	Stage   int
	Track   *track.Track // nil while loading or after a failed load
	Attempt *Attempt     // set for EventAttempted
	Message string       // user-facing message for EventLoadFailed
}
