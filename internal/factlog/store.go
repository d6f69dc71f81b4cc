package factlog

import (
	"context"
	"iter"
)

// EnabledKey is the flag-store key under which the log gate is persisted.
const EnabledKey = "factlog.enabled"

// FlagStore is a durable keyed boolean setting. An absent key reads as
// false; absence is indistinguishable from an explicit false.
type FlagStore interface {
	// Get returns the value stored under key, or false when absent.
	Get(ctx context.Context, key string) (bool, error)

	// Set writes the value unconditionally.
	Set(ctx context.Context, key string, value bool) error
}

// SequenceStore is a durable, ordered, append-only sequence of opaque
// serialized records. Records are never updated, removed, or reordered.
type SequenceStore interface {
	// Append adds a record at the end of the sequence.
	Append(ctx context.Context, record []byte) error

	// Seq iterates the sequence in insertion order. Each range over the
	// returned iterator starts a fresh pass. A non-nil error terminates
	// the iteration.
	Seq(ctx context.Context) iter.Seq2[[]byte, error]

	// SeqReverse iterates the sequence in reverse insertion order, with
	// the same restart and error semantics as Seq.
	SeqReverse(ctx context.Context) iter.Seq2[[]byte, error]

	// Len returns the number of stored records.
	Len(ctx context.Context) (int, error)
}

// Store combines both collaborator interfaces; every backend in this
// package implements it.
type Store interface {
	FlagStore
	SequenceStore
}
