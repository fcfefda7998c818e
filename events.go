package phaseline

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Lifecycle event names emitted by the framework. Delivery is best effort
// at the point of emission; emitter errors never fail a migration.
const (
	EventMigrationStarted   = "migration:started"
	EventMigrationCompleted = "migration:completed"
	EventMigrationFailed    = "migration:failed"
	EventPhaseStarted       = "migration:phase_started"
	EventPhaseCompleted     = "migration:phase_completed"
	EventPhaseRegistered    = "migration:phase_registered"
	EventStepStarted        = "migration:step_started"
	EventStepCompleted      = "migration:step_completed"
	EventStepFailed         = "migration:step_failed"
	EventStepRegistered     = "migration:step_registered"
	EventRollbackStarted    = "migration:rollback_started"
	EventRollbackCompleted  = "migration:rollback_completed"
)

// Emitter receives lifecycle events.
type Emitter interface {
	Emit(ctx context.Context, name string, payload map[string]any)
}

// NopEmitter discards all events. It is the default.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, map[string]any) {}

// LogEmitter writes every event to a zap logger at info level.
type LogEmitter struct {
	Logger *zap.Logger
}

// NewLogEmitter creates an emitter backed by the given logger.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{Logger: logger}
}

func (e *LogEmitter) Emit(_ context.Context, name string, payload map[string]any) {
	e.Logger.Info(name, zap.Any("payload", payload))
}

// Event is one delivered lifecycle notification.
type Event struct {
	Name    string
	Payload map[string]any
}

// Bus is an in-memory Emitter that fans events out to subscribers. Handy in
// tests and for embedding consumers that want to observe migrations.
type Bus struct {
	mu   sync.Mutex
	subs []func(Event)
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events. Handlers run
// synchronously on the emitting goroutine.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

func (b *Bus) Emit(_ context.Context, name string, payload map[string]any) {
	b.mu.Lock()
	subs := make([]func(Event), len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, fn := range subs {
		fn(Event{Name: name, Payload: payload})
	}
}

// MultiEmitter forwards every event to each wrapped emitter in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(ctx context.Context, name string, payload map[string]any) {
	for _, e := range m {
		e.Emit(ctx, name, payload)
	}
}
