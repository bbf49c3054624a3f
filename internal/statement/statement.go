// Package statement defines the Statement and Batch data model shared
// between the mapper, batcher, and executor.
package statement

import "bulkcore/internal/record"

// BatchType mirrors CQL's LOGGED/UNLOGGED batch distinction.
type BatchType int

const (
	Unlogged BatchType = iota
	Logged
)

// RoutingInfo carries what the batcher needs to group statements by
// partition affinity, without the core depending on any concrete
// driver's key/token types.
type RoutingInfo struct {
	RoutingKey []byte // raw partition key bytes, driver-computed
	Token      int64  // 64-bit routing token for PartitionKey mode
	ReplicaSet string // canonicalized, sorted replica-set id for ReplicaSet mode
}

// Statement is a single database-bound command, prepared or simple.
// A mapped statement keeps a back-reference to its originating
// Record so a downstream failure can be logged against the original
// source line; a simple statement has no such back-reference.
type Statement struct {
	CQL    string
	Values []any
	Size   int // byte-size estimate used by the batcher's size bound

	Routing RoutingInfo

	record   record.Record
	isMapped bool
}

// NewMapped builds a statement with a back-reference to rec.
func NewMapped(cql string, values []any, size int, routing RoutingInfo, rec record.Record) Statement {
	return Statement{CQL: cql, Values: values, Size: size, Routing: routing, record: rec, isMapped: true}
}

// NewSimple builds a statement with no back-reference.
func NewSimple(cql string, values []any, size int, routing RoutingInfo) Statement {
	return Statement{CQL: cql, Values: values, Size: size, Routing: routing}
}

// IsMapped reports whether this statement has a back-reference.
func (s Statement) IsMapped() bool { return s.isMapped }

// Record returns the back-referenced record. Callers must check
// IsMapped first; Record returns the zero Record for simple
// statements.
func (s Statement) Record() record.Record { return s.record }

// Batch is an ordered collection of up to N statements sharing a
// routing affinity. Each constituent statement retains its own
// record back-reference so a batch failure can be unwound into
// per-record error entries.
type Batch struct {
	Type       BatchType
	Statements []Statement
}

// TotalSize sums the declared Size of every constituent statement.
func (b Batch) TotalSize() int {
	total := 0
	for _, s := range b.Statements {
		total += s.Size
	}
	return total
}

// Unwrap returns the lone statement in a singleton batch. Callers
// must check len(b.Statements) == 1 first. The batcher hands a
// singleton group downstream as a one-statement Batch (see
// batcher.Flush); the executor runs such a Batch as its bare
// statement.
func (b Batch) Unwrap() Statement { return b.Statements[0] }
