// Package bot owns the bot state machine: the closed state set, the
// immutable transition graph, and the single serialized mutation point
// every other component must go through to change state.
package bot

// State is the bot's execution state. Exactly one is current at any
// instant; it changes only through Machine.RequestTransition.
type State string

const (
	// Core states
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateStopping State = "stopping"

	// Menu and lobby states
	StateMainMenu        State = "main_menu"
	StateCharacterSelect State = "character_select"
	StateLobby           State = "lobby"
	StateCreatingGame    State = "creating_game"
	StateJoiningGame     State = "joining_game"
	StateLoading         State = "loading"

	// In-game states
	StateInTown          State = "in_town"
	StateRunning         State = "running"
	StateFighting        State = "fighting"
	StateLooting         State = "looting"
	StateReturningToTown State = "returning_to_town"

	// Town activities
	StateStashing  State = "stashing"
	StateShopping  State = "shopping"
	StateHealing   State = "healing"
	StateRepairing State = "repairing"

	// Special states
	StateLevelingUp State = "leveling_up"
	StateDead       State = "dead"
	StateChickened  State = "chickened"

	// Error states
	StateStuck        State = "stuck"
	StateError        State = "error"
	StateDisconnected State = "disconnected"
)

func (s State) String() string { return string(s) }

// Terminal reports whether the state ends the session once stop is
// requested.
func (s State) Terminal() bool { return s == StateIdle }

// InGame reports whether the character is inside a game session (town or
// field), as opposed to menus, loading screens, or terminal states.
func (s State) InGame() bool {
	switch s {
	case StateInTown, StateRunning, StateFighting, StateLooting,
		StateReturningToTown, StateStashing, StateShopping,
		StateHealing, StateRepairing, StateLevelingUp, StateStuck:
		return true
	}
	return false
}

// Priority is the class of a transition request.
type Priority int

const (
	// PriorityNormal is the default request class used by the
	// orchestration loop and domain handlers.
	PriorityNormal Priority = iota

	// PriorityPreemptive supersedes any in-flight normal request. Only
	// the health controller and the recovery coordinator issue these.
	PriorityPreemptive
)

func (p Priority) String() string {
	if p == PriorityPreemptive {
		return "preemptive"
	}
	return "normal"
}
