package game

import (
	"context"
	"sync"
	"time"
)

// ScriptedObserver replays a fixed sequence of observations, then keeps
// returning the last one (or Hold, if set). It backs tests and --dry-run
// sessions where no game client is attached.
type ScriptedObserver struct {
	mu     sync.Mutex
	script []Observation
	pos    int

	// Hold, when non-nil, is returned after the script is exhausted
	// instead of repeating the final entry.
	Hold *Observation

	// Err, when non-nil, is returned instead of an observation once the
	// script is exhausted. Used to simulate a dead observation port.
	Err error
}

// NewScriptedObserver builds an observer over the given sequence.
func NewScriptedObserver(script ...Observation) *ScriptedObserver {
	return &ScriptedObserver{script: script}
}

// Observe returns the next scripted observation.
func (s *ScriptedObserver) Observe(ctx context.Context) (Observation, error) {
	if err := ctx.Err(); err != nil {
		return Observation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.script) {
		if s.Err != nil {
			return Observation{}, s.Err
		}
		if s.Hold != nil {
			return stamped(*s.Hold), nil
		}
		if len(s.script) == 0 {
			return Observation{Label: LabelUnknown, At: time.Now()}, nil
		}
		return stamped(s.script[len(s.script)-1]), nil
	}

	obs := s.script[s.pos]
	s.pos++
	return stamped(obs), nil
}

// Append extends the script while the observer is live.
func (s *ScriptedObserver) Append(obs ...Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, obs...)
}

func stamped(o Observation) Observation {
	if o.At.IsZero() {
		o.At = time.Now()
	}
	return o
}

// RecordingActor records every performed action and optionally fails
// selected kinds, simulating an input layer that emulates but cannot
// guarantee effect.
type RecordingActor struct {
	mu       sync.Mutex
	actions  []Action
	failures map[ActionKind]error

	// Delay, when non-zero, is how long Perform blocks before returning.
	// Lets tests exercise the bounded-timeout contract.
	Delay time.Duration
}

// NewRecordingActor builds an actor that accepts everything.
func NewRecordingActor() *RecordingActor {
	return &RecordingActor{failures: make(map[ActionKind]error)}
}

// FailKind makes every action of the given kind return err.
func (r *RecordingActor) FailKind(kind ActionKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[kind] = err
}

// Perform records the action and applies any configured failure.
func (r *RecordingActor) Perform(ctx context.Context, action Action) error {
	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	if err, ok := r.failures[action.Kind]; ok {
		return err
	}
	return nil
}

// Actions returns a copy of everything performed so far.
func (r *RecordingActor) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}

// Performed reports how many actions of the given kind were recorded.
func (r *RecordingActor) Performed(kind ActionKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}
