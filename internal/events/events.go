// Package events publishes run and task lifecycle events so that other systems
// can follow a briefing run without reading the ledger.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type identifies an event. It doubles as the AMQP routing key.
type Type string

// Event types
const (
	RunStarted    Type = "run.started"
	RunFinished   Type = "run.finished"
	TaskStarted   Type = "task.started"
	TaskFinished  Type = "task.finished"
	ReviewPending Type = "review.pending"
	ReviewDecided Type = "review.decided"
)

// Event is one lifecycle notification.
type Event struct {
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	RunID        string    `json:"run_id"`
	Workflow     string    `json:"workflow"`
	Task         string    `json:"task,omitempty"`
	Status       string    `json:"status,omitempty"`
	ErrorClass   string    `json:"error_class,omitempty"`
	Error        string    `json:"error,omitempty"`
	CheckpointID string    `json:"checkpoint_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// New fills in the id and timestamp of an event.
func New(t Type, runID, workflow string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		RunID:     runID,
		Workflow:  workflow,
		Timestamp: time.Now().UTC(),
	}
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

func encode(e Event) ([]byte, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", e.Type, err)
	}
	return body, nil
}

// NoOpPublisher discards events.
type NoOpPublisher struct{}

// Publish does nothing.
func (NoOpPublisher) Publish(context.Context, Event) error { return nil }

// Close does nothing.
func (NoOpPublisher) Close() error { return nil }

// MemoryPublisher keeps events in memory, in publish order.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// Publish appends e.
func (m *MemoryPublisher) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

// Close does nothing.
func (m *MemoryPublisher) Close() error { return nil }

// Events returns a copy of the recorded events.
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types returns the recorded event types, optionally only those for one task.
func (m *MemoryPublisher) Types(task string) []Type {
	var out []Type
	for _, e := range m.Events() {
		if task == "" || e.Task == task {
			out = append(out, e.Type)
		}
	}
	return out
}
