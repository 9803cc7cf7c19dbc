// Package event defines the domain event contract used by the
// transactional outbox. Services publish events inside their
// transaction; the background worker delivers them later.
package event

import (
	"context"

	"pharmapos/internal/core/id"
)

// Event is a domain event headed for the outbox.
type Event struct {
	// AggregateType names the entity kind, e.g. "Invoice"
	AggregateType string

	// AggregateID is the entity the event is about
	AggregateID id.ID

	// Type is the event name, e.g. "sale.completed"
	Type string

	// Payload is JSON-marshalled on publish
	Payload any
}

// Publisher writes events to the outbox. Implementations require an
// active transaction in the context so the event commits or rolls back
// with the business write.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}
