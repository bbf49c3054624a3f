// Package driver defines the minimum external driver surface the
// core consumes. The real CQL driver is an external, interfaced-only
// collaborator; this package defines only the contract plus failure
// classification, and internal/driver/memdriver provides a
// reference/test implementation.
package driver

import (
	"context"
	"errors"
	"time"

	"bulkcore/internal/statement"
)

// PreparedStatement is an opaque handle returned by Prepare.
type PreparedStatement struct {
	CQL string
}

// Node identifies a cluster member in a Token's replica set.
type Node struct {
	HostID string
}

// Token is the 64-bit routing token for a partition key.
type Token int64

// Row is a single returned row, used for conditional-update (CAS)
// application checks.
type Row struct {
	Values map[string]any
}

// ExecMeta carries execution metadata for a successful Result:
// server-side warnings and, for conditional updates, the rows
// indicating whether the condition applied.
type ExecMeta struct {
	Warnings    []string
	WasApplied  bool // the log manager treats false on a successful multi-statement batch as a CAS failure, so non-conditional results report true
	AppliedRows []Row
	Latency     time.Duration
	Attempts    int
}

// Result is the outcome of executing one Statement or Batch.
type Result struct {
	Statement statement.Statement
	Batch     *statement.Batch // non-nil when this result is for a batch
	Meta      ExecMeta
	Err       error // non-nil on failure; classify with Classify
}

// Succeeded reports whether this result represents a successful
// execution (Err == nil). A successful batch whose Meta.WasApplied is
// false is still "succeeded" at the driver level — it is the log
// manager's job to treat that as a CAS failure.
func (r Result) Succeeded() bool { return r.Err == nil }

// Classification distinguishes recoverable driver failures (logged
// and counted) from unrecoverable ones (propagated synchronously,
// bypassing the error threshold).
type Classification int

const (
	Recoverable Classification = iota
	Unrecoverable
)

// Sentinel recoverable causes the reference driver and tests use.
// A real driver adapter would classify its own native error types
// into these same buckets.
var (
	ErrTimeout     = errors.New("driver: operation timed out")
	ErrUnavailable = errors.New("driver: not enough replicas available")
	ErrWriteTimeout = errors.New("driver: write timeout")
	ErrReadTimeout  = errors.New("driver: read timeout")

	ErrIllegalArgument = errors.New("driver: illegal argument")
	ErrProtocol        = errors.New("driver: protocol error")
)

// Classify inspects err and returns its recoverability. Unknown
// errors are treated conservatively as Unrecoverable: a driver failure
// aborts the run unless it can be positively identified as one of the
// recoverable kinds (timeout, unavailable, write-timeout, read-timeout).
func Classify(err error) Classification {
	switch {
	case err == nil:
		return Recoverable
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrWriteTimeout), errors.Is(err, ErrReadTimeout):
		return Recoverable
	default:
		return Unrecoverable
	}
}

// Driver is the minimum surface the core requires from the CQL
// driver. Timeouts are enforced by the driver; the core neither
// adds nor shortens them.
type Driver interface {
	Prepare(ctx context.Context, cql string) (PreparedStatement, error)
	ExecuteAsync(ctx context.Context, stmt statement.Statement) (<-chan Result, error)
	ExecuteBatchAsync(ctx context.Context, batch statement.Batch) (<-chan Result, error)
	TokenFor(routingKey []byte) Token
	Replicas(t Token) []Node
	Close() error
}
