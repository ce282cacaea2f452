package bot

import (
	"fmt"

	"github.com/d2herder/d2herder/pkg/game"
)

// Guard is an optional predicate on a transition edge, evaluated against
// the machine's latest observation. A nil guard always passes.
type Guard func(obs game.Observation) bool

type edge struct {
	from State
	to   State
}

// Graph is the set of valid transitions. It is built once at engine
// construction and never mutated afterwards, so the machine reads it
// without locking. A (from, to) pair absent from the graph is rejected,
// never coerced.
type Graph struct {
	edges  map[State]map[State]struct{}
	guards map[edge]Guard
}

// NewGraph builds a transition graph from an adjacency list.
func NewGraph(transitions map[State][]State) *Graph {
	g := &Graph{
		edges:  make(map[State]map[State]struct{}, len(transitions)),
		guards: make(map[edge]Guard),
	}
	for from, targets := range transitions {
		set := make(map[State]struct{}, len(targets))
		for _, to := range targets {
			set[to] = struct{}{}
		}
		g.edges[from] = set
	}
	return g
}

// WithGuard attaches a guard predicate to an existing edge. Meant to be
// called during construction, before the graph is handed to a Machine.
func (g *Graph) WithGuard(from, to State, guard Guard) *Graph {
	if _, ok := g.edges[from][to]; !ok {
		panic(fmt.Sprintf("bot: guard on unknown edge %s -> %s", from, to))
	}
	g.guards[edge{from, to}] = guard
	return g
}

// Allowed reports whether the (from, to) pair is an edge of the graph.
// Guards are not consulted here; the machine evaluates them against the
// latest observation at request time.
func (g *Graph) Allowed(from, to State) bool {
	_, ok := g.edges[from][to]
	return ok
}

// Guard returns the guard attached to an edge, or nil.
func (g *Graph) Guard(from, to State) Guard {
	return g.guards[edge{from, to}]
}

// Targets returns the valid targets from a state.
func (g *Graph) Targets(from State) []State {
	set := g.edges[from]
	out := make([]State, 0, len(set))
	for to := range set {
		out = append(out, to)
	}
	return out
}

// DefaultTransitions is the production transition table. Every state can
// additionally reach StateStopping on shutdown, folded in below rather
// than repeated per entry.
func DefaultTransitions() map[State][]State {
	t := map[State][]State{
		StateIdle:     {StateStarting},
		StateStarting: {StateMainMenu, StateCharacterSelect, StateInTown, StateError},

		StateMainMenu:        {StateCharacterSelect, StateError},
		StateCharacterSelect: {StateLobby, StateCreatingGame, StateMainMenu, StateError},
		StateLobby:           {StateCreatingGame, StateJoiningGame, StateCharacterSelect, StateError},
		StateCreatingGame:    {StateLoading, StateLobby, StateError},
		StateJoiningGame:     {StateLoading, StateLobby, StateError},
		StateLoading:         {StateInTown, StateMainMenu, StateError},

		StateInTown: {
			StateRunning, StateStashing, StateShopping, StateHealing,
			StateRepairing, StateLevelingUp, StateLoading, StateMainMenu,
			StateDisconnected, StateError,
		},
		StateRunning: {
			StateFighting, StateLooting, StateReturningToTown, StateInTown,
			StateDead, StateChickened, StateStuck, StateDisconnected, StateError,
		},
		StateFighting: {
			StateRunning, StateLooting, StateDead, StateChickened,
			StateStuck, StateDisconnected, StateError,
		},
		StateLooting: {
			StateRunning, StateFighting, StateReturningToTown, StateDead,
			StateChickened, StateDisconnected, StateError,
		},
		StateReturningToTown: {
			StateInTown, StateLoading, StateDead, StateChickened,
			StateDisconnected, StateError,
		},

		StateStashing:  {StateInTown, StateError},
		StateShopping:  {StateInTown, StateError},
		StateHealing:   {StateInTown, StateError},
		StateRepairing: {StateInTown, StateError},

		StateLevelingUp: {StateInTown, StateRunning, StateError},
		StateDead:       {StateInTown, StateMainMenu, StateError},
		StateChickened:  {StateMainMenu, StateCharacterSelect, StateInTown, StateError},
		StateStuck:      {StateRunning, StateInTown, StateChickened, StateError},

		StateError:        {StateIdle, StateMainMenu},
		StateDisconnected: {StateMainMenu, StateStarting, StateError},
		StateStopping:     {StateIdle},
	}

	for from := range t {
		if from != StateStopping {
			t[from] = append(t[from], StateStopping)
		}
	}
	return t
}

// DefaultGraph returns the production graph with its standard guards: a
// game may only be (re)entered from the menus when the observation port
// actually sees a menu, which keeps a misfiring classifier from driving
// the machine back into a game that is not there.
func DefaultGraph() *Graph {
	g := NewGraph(DefaultTransitions())

	menuSeen := func(obs game.Observation) bool {
		switch obs.Label {
		case game.LabelMainMenu, game.LabelCharacterSelect, game.LabelLobby, game.LabelCreateGame:
			return true
		}
		return false
	}
	g.WithGuard(StateChickened, StateMainMenu, menuSeen)
	g.WithGuard(StateDisconnected, StateMainMenu, menuSeen)

	return g
}
