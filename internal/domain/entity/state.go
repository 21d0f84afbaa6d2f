package entity

import "fmt"

// The state of a single upload while it moves through the pipeline.
type State int

const (
	StateReceived State = iota
	StateStaged
	StateArchived
	StateJobInitiated
	StateCleaned
	StateStageFailed
	StateArchiveFailed
	StateInitiateFailed
	StateCleanupAttempted
)

var stateNames = map[State]string{
	StateReceived:         "received",
	StateStaged:           "staged",
	StateArchived:         "archived",
	StateJobInitiated:     "job_initiated",
	StateCleaned:          "cleaned",
	StateStageFailed:      "stage_failed",
	StateArchiveFailed:    "archive_failed",
	StateInitiateFailed:   "initiate_failed",
	StateCleanupAttempted: "cleanup_attempted",
}

var transitions = map[State][]State{
	StateReceived:       {StateStaged, StateStageFailed},
	StateStaged:         {StateArchived, StateArchiveFailed},
	StateArchived:       {StateJobInitiated, StateInitiateFailed},
	StateJobInitiated:   {StateCleaned},
	StateArchiveFailed:  {StateCleanupAttempted},
	StateInitiateFailed: {StateCleanupAttempted},
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Determine whether the upload may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Determine whether no further transition leaves the state.
func (s State) IsTerminal() bool { return len(transitions[s]) == 0 }

// Determine whether the state ends an upload that succeeded.
func (s State) IsSuccess() bool { return s == StateCleaned }
