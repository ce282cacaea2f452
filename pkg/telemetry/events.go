package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a structured record emitted by the engine: state transitions,
// run lifecycle, errors, chickens. Consumers (stats store, alerting) are
// external; the engine publishes and moves on.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies the component that emitted the event.
	Source string `json:"source"`

	// GameID is the associated game session, if applicable.
	GameID string `json:"game_id,omitempty"`

	// Run is the associated run name, if applicable.
	Run string `json:"run,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeStateChanged       = "state.changed"
	EventTypeTransitionRejected = "state.transition_rejected"
	EventTypeRunStarted         = "run.started"
	EventTypeRunFinished        = "run.finished"
	EventTypeErrorDetected      = "error.detected"
	EventTypeErrorRecovered     = "error.recovered"
	EventTypeErrorEscalated     = "error.escalated"
	EventTypeChicken            = "health.chicken"
	EventTypeAlert              = "alert"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// Subscriber is a function that handles published events.
type Subscriber func(event Event)

// Publisher fans events out to subscribers through a bounded buffer.
// Publish never blocks: when the buffer is full the event is dropped and
// counted, which keeps a slow subscriber from stalling the tick loop.
type Publisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []Subscriber
	dropped     int64
	mu          sync.RWMutex
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewPublisher creates a publisher with the given configuration.
func NewPublisher(cfg EventsConfig) *Publisher {
	p := &Publisher{config: cfg}
	if !cfg.Enabled {
		return p
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 256
		p.config = cfg
	}

	p.buffer = make(chan Event, cfg.BufferSize)
	p.done = make(chan struct{})
	p.wg.Add(1)
	go p.deliver()
	return p
}

// Subscribe registers a subscriber for all future events.
func (p *Publisher) Subscribe(sub Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscribers = append(p.subscribers, sub)
}

// Publish enqueues an event for delivery. Returns an error if the buffer
// was full and the event dropped.
func (p *Publisher) Publish(event Event) error {
	if !p.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case p.buffer <- event:
		return nil
	case <-p.done:
		return fmt.Errorf("event publisher closed")
	default:
		p.mu.Lock()
		p.dropped++
		p.mu.Unlock()
		return fmt.Errorf("event buffer full, event dropped")
	}
}

// Dropped reports how many events were dropped due to a full buffer.
func (p *Publisher) Dropped() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.dropped
}

// Close stops delivery after draining the buffer.
func (p *Publisher) Close() {
	if !p.config.Enabled {
		return
	}
	close(p.done)
	p.wg.Wait()
}

func (p *Publisher) deliver() {
	defer p.wg.Done()
	for {
		select {
		case event := <-p.buffer:
			p.fanout(event)
		case <-p.done:
			// Drain what is already buffered, then stop.
			for {
				select {
				case event := <-p.buffer:
					p.fanout(event)
				default:
					return
				}
			}
		}
	}
}

func (p *Publisher) fanout(event Event) {
	p.mu.RLock()
	subs := p.subscribers
	p.mu.RUnlock()
	for _, sub := range subs {
		sub(event)
	}
}

// StateChanged builds a transition record event.
func StateChanged(from, to, priority string) Event {
	return Event{
		Type:    EventTypeStateChanged,
		Source:  "bot",
		Message: fmt.Sprintf("state %s -> %s", from, to),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"from":     from,
			"to":       to,
			"priority": priority,
		},
	}
}

// TransitionRejected builds a rejected-transition event.
func TransitionRejected(from, to, reason string) Event {
	return Event{
		Type:    EventTypeTransitionRejected,
		Source:  "bot",
		Message: fmt.Sprintf("rejected transition %s -> %s: %s", from, to, reason),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"from":   from,
			"to":     to,
			"reason": reason,
		},
	}
}

// RunStarted builds a run lifecycle event.
func RunStarted(gameID, run string) Event {
	return Event{
		Type:    EventTypeRunStarted,
		Source:  "engine",
		GameID:  gameID,
		Run:     run,
		Message: fmt.Sprintf("run %s started", run),
		Level:   EventLevelInfo,
	}
}

// RunFinished builds a run completion event.
func RunFinished(gameID, run, status string, duration time.Duration) Event {
	return Event{
		Type:    EventTypeRunFinished,
		Source:  "engine",
		GameID:  gameID,
		Run:     run,
		Message: fmt.Sprintf("run %s finished: %s", run, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	}
}

// Alert builds a user-visible alert event for critical conditions.
func Alert(message string) Event {
	return Event{
		Type:    EventTypeAlert,
		Source:  "recovery",
		Message: message,
		Level:   EventLevelError,
	}
}
