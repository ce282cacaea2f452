package recovery

import (
	"sync"
	"time"
)

// RetryBudget tracks consecutive failed recoveries for one error kind.
// The counter never goes negative, resets on any successful recovery of
// the kind, and crossing the threshold escalates exactly once (the reset
// after escalation is what makes it exactly once).
type RetryBudget struct {
	Kind                Kind
	ConsecutiveFailures int
	Threshold           int
	LastReset           time.Time
}

// Budgets owns every per-kind retry budget. Only the coordinator mutates
// it, from its own goroutine context; the mutex exists for the engine's
// read-side helpers.
type Budgets struct {
	mu        sync.Mutex
	threshold int
	byKind    map[Kind]*RetryBudget
}

// NewBudgets creates a budget set with a shared threshold per kind.
func NewBudgets(threshold int) *Budgets {
	if threshold <= 0 {
		threshold = 3
	}
	return &Budgets{
		threshold: threshold,
		byKind:    make(map[Kind]*RetryBudget),
	}
}

func (b *Budgets) get(kind Kind) *RetryBudget {
	budget, ok := b.byKind[kind]
	if !ok {
		budget = &RetryBudget{Kind: kind, Threshold: b.threshold, LastReset: time.Now()}
		b.byKind[kind] = budget
	}
	return budget
}

// Fail records a failed (or not-yet-confirmed) recovery for the kind and
// reports whether the budget crossed its threshold. On escalation the
// counter resets, so the caller sees true exactly once per streak.
func (b *Budgets) Fail(kind Kind) (escalated bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	budget := b.get(kind)
	budget.ConsecutiveFailures++
	if budget.ConsecutiveFailures >= budget.Threshold {
		budget.ConsecutiveFailures = 0
		budget.LastReset = time.Now()
		return true
	}
	return false
}

// Reset clears the counter for a kind after a confirmed recovery.
func (b *Budgets) Reset(kind Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	budget := b.get(kind)
	budget.ConsecutiveFailures = 0
	budget.LastReset = time.Now()
}

// ResetAll clears every counter, called after a fully successful run.
func (b *Budgets) ResetAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	for _, budget := range b.byKind {
		budget.ConsecutiveFailures = 0
		budget.LastReset = now
	}
}

// Consecutive returns the current failure streak for a kind.
func (b *Budgets) Consecutive(kind Kind) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if budget, ok := b.byKind[kind]; ok {
		return budget.ConsecutiveFailures
	}
	return 0
}
