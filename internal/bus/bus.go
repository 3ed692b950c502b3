// Package bus defines the typed pub/sub contract every pipeline component
// talks to. The production implementation (internal/bus/redisbus) is a thin
// wrapper over Redis Streams; internal/testsupport.MemBus provides a
// dependency-free in-memory stand-in for tests (its Read ignores the from
// cursor and always starts at the beginning of the stream).
package bus

import (
	"context"
	"time"

	"github.com/orion-sre/orion/internal/contracts"
)

// Message is one envelope read off a stream: the broker-assigned entry ID
// plus the JSON-encoded contract payload.
type Message struct {
	ID        string
	Kind      contracts.Kind
	Data      []byte
	Timestamp time.Time
}

// Handler processes one Message. Its return value is logged but never
// causes redelivery — Bus acknowledges regardless of handler outcome, per
// the amplification guard in §4.1.
type Handler func(ctx context.Context, msg Message) error

// Bus is the three-operation contract every component depends on.
type Bus interface {
	// Publish validates v against its kind's schema and, on success,
	// appends it to the kind's stream. On validation failure, Publish
	// returns the error synchronously and has no side effect.
	Publish(ctx context.Context, kind contracts.Kind, v interface{}) error

	// Subscribe creates the named consumer group if it does not already
	// exist (idempotent — a pre-existing group is not an error), then
	// blocks, dispatching messages to handler as (group, consumer) until
	// ctx is cancelled. Transient read errors are logged and the loop
	// continues.
	Subscribe(ctx context.Context, kind contracts.Kind, group, consumer string, handler Handler) error

	// Read returns up to limit messages from kind's stream starting at
	// from ("-" for the beginning, "$" is not a valid Read cursor — use
	// Subscribe for live tailing). Used by tests and inspection tooling.
	Read(ctx context.Context, kind contracts.Kind, from string, limit int64) ([]Message, error)

	// Close releases the underlying transport connection.
	Close() error
}
