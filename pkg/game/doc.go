// Package game defines the boundary between the control engine and the
// game client: the observation port (screen-derived state snapshots), the
// action port (emulated input), and the run contract implemented by the
// domain handlers in pkg/game/runs.
//
// The engine never talks to the client directly. Everything it knows
// arrives through Observer and everything it does leaves through Actor,
// both of which are at-most-once and bounded-latency by contract.
package game
