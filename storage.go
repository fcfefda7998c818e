package phaseline

import "context"

// Record is what Storage implementations hold: a free-form document keyed
// by collection and id.
type Record map[string]any

// Storage is the abstract CRUD store steps may use through Context.Storage.
// The framework never reads or writes through it; it only threads the
// reference. A migration that needs persistence must be handed a real
// implementation, and steps must tolerate Storage being nil.
type Storage interface {
	Create(ctx context.Context, collection, id string, data Record) error
	Read(ctx context.Context, collection, id string) (Record, error)
	Update(ctx context.Context, collection, id string, data Record) error
	Delete(ctx context.Context, collection, id string) error

	// Query returns the records in a collection matching all fields of the
	// filter; a nil filter returns everything.
	Query(ctx context.Context, collection string, filter Record) ([]Record, error)
}
