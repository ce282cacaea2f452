package bot

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/d2herder/d2herder/pkg/game"
	"github.com/d2herder/d2herder/pkg/telemetry"
)

// ErrSuperseded is returned to a normal-priority caller whose request was
// discarded because a preemptive request arrived while it was in flight.
// The normal request is not queued or retried.
var ErrSuperseded = errors.New("transition superseded by preemptive request")

// InvalidTransitionError reports a (from, to) pair absent from the graph
// or blocked by its guard. The machine's state is unchanged.
type InvalidTransitionError struct {
	From    State
	To      State
	Guarded bool
}

func (e *InvalidTransitionError) Error() string {
	if e.Guarded {
		return fmt.Sprintf("transition %s -> %s blocked by guard", e.From, e.To)
	}
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}

// Hook runs on state entry or exit, inside the transition. Hooks must be
// short and non-blocking; multi-step work belongs in domain handlers that
// report back a RunResult.
type Hook func(from, to State)

// TransitionRecord describes one applied transition.
type TransitionRecord struct {
	From     State
	To       State
	Priority Priority
	At       time.Time
}

// Machine is the single authority over the current bot state. All writes
// are serialized through RequestTransition; every other component holds
// at most a read-only view via Current.
//
// Priority semantics: a preemptive request registers itself before taking
// the lock, and a normal request checks for registered preemptors both on
// entry and immediately before committing. A normal request that loses
// either check is discarded with ErrSuperseded rather than applied behind
// the preemptor's back. Among equal-priority contenders, lock order
// decides: first received wins, and the loser is then rejected by graph
// validation from the new state.
type Machine struct {
	mu      sync.Mutex
	graph   *Graph
	current State
	prev    State
	since   time.Time
	lastObs game.Observation

	preemptors atomic.Int32

	entry   map[State]Hook
	exit    map[State]Hook
	onTrans []func(TransitionRecord)

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.Publisher
}

// NewMachine creates a machine in StateIdle over an immutable graph.
func NewMachine(graph *Graph, log *telemetry.Logger, metrics *telemetry.Metrics, events *telemetry.Publisher) *Machine {
	return &Machine{
		graph:   graph,
		current: StateIdle,
		since:   time.Now(),
		entry:   make(map[State]Hook),
		exit:    make(map[State]Hook),
		log:     log.Component("bot"),
		metrics: metrics,
		events:  events,
	}
}

// Current returns the current state. Pure read; repeated calls without an
// intervening transition return the same value.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Previous returns the state before the last applied transition.
func (m *Machine) Previous() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prev
}

// InStateFor returns how long the machine has been in the current state.
func (m *Machine) InStateFor() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.since)
}

// SetObservation stores the latest normalized observation for guard
// evaluation. Called once per tick by the orchestration loop.
func (m *Machine) SetObservation(obs game.Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastObs = obs
}

// Observation returns the latest stored observation.
func (m *Machine) Observation() game.Observation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastObs
}

// OnEnter registers the entry hook for a state. Registration is not
// synchronized with transitions; wire hooks before the engine starts.
func (m *Machine) OnEnter(state State, hook Hook) { m.entry[state] = hook }

// OnExit registers the exit hook for a state.
func (m *Machine) OnExit(state State, hook Hook) { m.exit[state] = hook }

// OnTransition registers a listener for applied transitions. Listeners
// run inside the transition and must not block.
func (m *Machine) OnTransition(fn func(TransitionRecord)) {
	m.onTrans = append(m.onTrans, fn)
}

// RequestTransition asks the machine to move to a new state. It is the
// only mutation point; the health controller and the orchestration loop
// both come through here, which is what makes preemption race-free.
//
// A request to the current state is a no-op success. An absent edge or a
// failing guard rejects the request and leaves the state unchanged.
func (m *Machine) RequestTransition(to State, priority Priority) error {
	if priority == PriorityPreemptive {
		m.preemptors.Add(1)
		defer m.preemptors.Add(-1)
	} else if m.preemptors.Load() > 0 {
		m.reject(m.Current(), to, "superseded")
		return ErrSuperseded
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}

	if !m.graph.Allowed(m.current, to) {
		m.rejectLocked(m.current, to, "invalid")
		return &InvalidTransitionError{From: m.current, To: to}
	}
	if guard := m.graph.Guard(m.current, to); guard != nil && !guard(m.lastObs) {
		m.rejectLocked(m.current, to, "guarded")
		return &InvalidTransitionError{From: m.current, To: to, Guarded: true}
	}

	// Re-check after validation: a preemptor that registered while this
	// normal request held or waited for the lock wins, and this request
	// is discarded rather than committed.
	if priority == PriorityNormal && m.preemptors.Load() > 0 {
		m.rejectLocked(m.current, to, "superseded")
		return ErrSuperseded
	}

	from := m.current
	if hook := m.exit[from]; hook != nil {
		hook(from, to)
	}

	m.prev = from
	m.current = to
	m.since = time.Now()

	if hook := m.entry[to]; hook != nil {
		hook(from, to)
	}

	rec := TransitionRecord{From: from, To: to, Priority: priority, At: m.since}
	for _, fn := range m.onTrans {
		fn(rec)
	}

	m.log.Zerolog().Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("priority", priority.String()).
		Msg("state transition")
	m.metrics.RecordTransition(from.String(), to.String(), priority.String())
	_ = m.events.Publish(telemetry.StateChanged(from.String(), to.String(), priority.String()))

	return nil
}

// Force moves the machine to a state without graph validation. Reserved
// for lifecycle bootstrapping (start, shutdown); never used mid-session.
func (m *Machine) Force(to State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == to {
		return
	}
	from := m.current
	m.prev = from
	m.current = to
	m.since = time.Now()
	m.log.Zerolog().Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("state forced")
}

func (m *Machine) reject(from, to State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectLocked(from, to, reason)
}

func (m *Machine) rejectLocked(from, to State, reason string) {
	m.log.Zerolog().Warn().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("reason", reason).
		Msg("transition rejected")
	m.metrics.RecordTransitionRejection(reason)
	_ = m.events.Publish(telemetry.TransitionRejected(from.String(), to.String(), reason))
}
