// Package recovery normalizes every fault in the system into a single
// taxonomy and routes it through one coordinator: classification by kind,
// bounded auto-recovery with per-kind retry budgets, and monotonic
// escalation. No component handles its own faults silently.
package recovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/d2herder/d2herder/pkg/bot"
	"github.com/google/uuid"
)

// Severity is the error tier that decides the recovery path.
type Severity string

const (
	// SeverityRecoverable errors are auto-retried up to the kind's budget.
	SeverityRecoverable Severity = "recoverable"

	// SeverityRunEnding errors terminate the current run; a fresh one is
	// started afterwards.
	SeverityRunEnding Severity = "run_ending"

	// SeverityCritical errors pause the whole engine and require an
	// external resume.
	SeverityCritical Severity = "critical"
)

// rank orders severities for same-tick processing, highest first.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityRunEnding:
		return 1
	default:
		return 0
	}
}

// Kind identifies what went wrong, independent of where it was detected.
type Kind string

const (
	KindStuck              Kind = "stuck"
	KindObservationTimeout Kind = "observation-timeout"
	KindActionTimeout      Kind = "action-timeout"
	KindTemplateFail       Kind = "template-fail"
	KindInventoryFull      Kind = "inventory-full"
	KindCharacterDeath     Kind = "character-death"
	KindDisconnect         Kind = "disconnect"
	KindProcessCrash       Kind = "process-crash"
	KindUnknownState       Kind = "unknown-state"
)

// DefaultClassification maps each kind to its severity. This table is the
// classification policy: adding a kind means adding a row, not touching
// control flow. Kinds absent from the table classify as Critical.
func DefaultClassification() map[Kind]Severity {
	return map[Kind]Severity{
		KindStuck:              SeverityRecoverable,
		KindObservationTimeout: SeverityRecoverable,
		KindActionTimeout:      SeverityRecoverable,
		KindTemplateFail:       SeverityRecoverable,
		KindInventoryFull:      SeverityRecoverable,
		KindCharacterDeath:     SeverityRunEnding,
		KindDisconnect:         SeverityRunEnding,
		KindUnknownState:       SeverityRunEnding,
		KindProcessCrash:       SeverityCritical,
	}
}

// ErrorEvent is the normalized fault record. Any component may create
// one; the coordinator consumes each exactly once.
type ErrorEvent struct {
	ID       string
	Kind     Kind
	Severity Severity
	Origin   bot.State
	Message  string
	At       time.Time
}

// NewEvent builds an ErrorEvent with the severity looked up from the
// default classification table.
func NewEvent(kind Kind, origin bot.State, message string) ErrorEvent {
	return ErrorEvent{
		ID:       uuid.New().String(),
		Kind:     kind,
		Severity: Classify(kind),
		Origin:   origin,
		Message:  message,
		At:       time.Now(),
	}
}

// Classify returns the severity for a kind under the default table.
func Classify(kind Kind) Severity {
	if sev, ok := DefaultClassification()[kind]; ok {
		return sev
	}
	return SeverityCritical
}

// BotError is a classified error for call sites that propagate faults as
// Go errors before they reach the coordinator.
type BotError struct {
	Kind     Kind
	Severity Severity
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *BotError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *BotError) Unwrap() error { return e.Err }

// Is matches on kind, letting callers use errors.Is with sentinel kinds.
func (e *BotError) Is(target error) bool {
	t, ok := target.(*BotError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError wraps err as a classified BotError.
func NewError(kind Kind, message string, err error) *BotError {
	return &BotError{
		Kind:     kind,
		Severity: Classify(kind),
		Message:  message,
		Err:      err,
	}
}

// KindOf extracts the kind from a classified error, or KindUnknownState
// when the error carries no classification.
func KindOf(err error) Kind {
	var e *BotError
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknownState
}
