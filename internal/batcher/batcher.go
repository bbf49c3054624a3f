// Package batcher groups statements by routing affinity into Batch
// values. It has no dependency on any other core package besides
// statement.
//
// The flush-on-full-or-close shape buffers per routing key and flushes
// a group once it is full or once the caller signals completion,
// generalized from a single flat buffer to one buffer per routing
// group.
package batcher

import "bulkcore/internal/statement"

// Mode selects how statements are grouped.
type Mode int

const (
	// PartitionKey groups statements sharing the same routing token.
	PartitionKey Mode = iota
	// ReplicaSet groups statements sharing the same replica-set id,
	// allowing cross-partition batches to reduce coordinator hops.
	ReplicaSet
)

// Config bounds a Batcher's output.
type Config struct {
	Mode              Mode
	MaxBatchStatements int
	MaxBatchSizeBytes  int
}

// DefaultConfig returns the default batching shape.
func DefaultConfig() Config {
	return Config{Mode: PartitionKey, MaxBatchStatements: 32, MaxBatchSizeBytes: 65536}
}

type group struct {
	key   string
	stmts []statement.Statement
	size  int
}

// Batcher maintains per-group buffers and flushes them once a bound
// is hit, on upstream completion, or on an explicit window close. It
// is not safe for concurrent use by multiple goroutines — each
// pipeline worker owns its own Batcher instance.
type Batcher struct {
	cfg    Config
	order  []string // insertion order of first-seen group keys, for deterministic flush tie-break
	groups map[string]*group
}

// New returns an empty Batcher.
func New(cfg Config) *Batcher {
	if cfg.MaxBatchStatements <= 0 {
		cfg.MaxBatchStatements = 32
	}
	if cfg.MaxBatchSizeBytes <= 0 {
		cfg.MaxBatchSizeBytes = 65536
	}
	return &Batcher{cfg: cfg, groups: make(map[string]*group)}
}

// tokenKey renders a routing token as a fixed-width byte string so
// equal tokens always map to equal map keys.
func tokenKey(token int64) string {
	buf := make([]byte, 8)
	for i := 0; i < 8; i++ {
		buf[i] = byte(token >> (8 * i))
	}
	return string(buf)
}

func (b *Batcher) keyFor(s statement.Statement) string {
	if b.cfg.Mode == ReplicaSet {
		return s.Routing.ReplicaSet
	}
	return tokenKey(s.Routing.Token)
}

// Add feeds one statement into its routing group, returning any
// batches that became full as a result (normally zero or one).
func (b *Batcher) Add(s statement.Statement) []statement.Batch {
	key := b.keyFor(s)
	g, ok := b.groups[key]
	if !ok {
		g = &group{key: key}
		b.groups[key] = g
		b.order = append(b.order, key)
	}
	g.stmts = append(g.stmts, s)
	g.size += s.Size

	if len(g.stmts) >= b.cfg.MaxBatchStatements || g.size >= b.cfg.MaxBatchSizeBytes {
		return []statement.Batch{b.flushGroup(key)}
	}
	return nil
}

// flushGroup builds and removes the batch for key. Caller must hold
// no other reference to b.groups[key] afterward.
func (b *Batcher) flushGroup(key string) statement.Batch {
	g := b.groups[key]
	delete(b.groups, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return statement.Batch{Type: statement.Unlogged, Statements: g.stmts}
}

// Flush drains all partial groups, in the insertion order of each
// group's first element (a deterministic tie-break).
// Singleton batches are unwrapped: callers receive them through the
// same []statement.Batch slice but with exactly one statement, and
// should treat a single-statement Batch as the bare underlying
// statement when routing to ExecuteAsync versus ExecuteBatchAsync.
func (b *Batcher) Flush() []statement.Batch {
	keys := append([]string(nil), b.order...)
	out := make([]statement.Batch, 0, len(keys))
	for _, key := range keys {
		out = append(out, b.flushGroup(key))
	}
	return out
}

// Pending reports how many routing groups currently hold buffered,
// unflushed statements.
func (b *Batcher) Pending() int { return len(b.groups) }
