// Package events carries orchestration state changes to dashboards and downstream consumers.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind names a state change
type Kind string

const (
	BaselineLoaded     Kind = "baseline_loaded"
	WeatherChanged     Kind = "weather_changed"
	ForecastUpdated    Kind = "forecast_updated"
	SimulationFallback Kind = "simulation_fallback"
	PolicyChanged      Kind = "policy_changed"
	AggregateUpdated   Kind = "aggregate_updated"
	SnapshotTaken      Kind = "snapshot_taken"
	SnapshotCleared    Kind = "snapshot_cleared"
)

// Event is a single notification
type Event struct {
	ID      string    `json:"id"`
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload,omitempty"`
}

// New stamps an event with an id and the current time
func New(kind Kind, payload any) Event {
	return Event{
		ID:      uuid.NewString(),
		Kind:    kind,
		At:      time.Now().UTC(),
		Payload: payload,
	}
}

// JSON serializes the event
func (e Event) JSON() ([]byte, error) {
	return json.Marshal(e)
}

// Notifier receives state changes
type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

// Nop discards every event
var Nop Notifier = NotifierFunc(func(Event) {})

// Bus fans an event out to every subscriber in registration order
type Bus struct {
	mu   sync.RWMutex
	subs []Notifier
}

// NewBus creates an empty bus
func NewBus(subs ...Notifier) *Bus {
	return &Bus{subs: subs}
}

// Subscribe adds a notifier
func (b *Bus) Subscribe(n Notifier) {
	b.mu.Lock()
	b.subs = append(b.subs, n)
	b.mu.Unlock()
}

// Notify delivers the event to all subscribers
func (b *Bus) Notify(e Event) {
	b.mu.RLock()
	subs := make([]Notifier, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, s := range subs {
		s.Notify(e)
	}
}
