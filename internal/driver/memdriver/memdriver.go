// Package memdriver is a reference driver implementation used by
// tests and the dry-run path's routing calls. It computes routing
// tokens with xxhash and assigns replica sets with rendezvous
// (highest random weight) hashing.
package memdriver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"bulkcore/internal/driver"
	"bulkcore/internal/statement"
)

// Driver is an in-memory stand-in for a real CQL driver: it "applies"
// statements to an in-memory table keyed by routing key, and always
// succeeds unless a configured failure injector says otherwise. It
// exists to exercise the pipeline end to end in tests without a live
// cluster.
type Driver struct {
	nodes []string
	rdv   *rendezvous.Rendezvous

	mu    sync.Mutex
	rows  map[string][]driver.Row
	fail  func(stmt statement.Statement) error // optional failure injector
	calls atomic.Int64
}

// New builds a memdriver with the given node names forming the ring.
func New(nodes ...string) *Driver {
	if len(nodes) == 0 {
		nodes = []string{"node-1", "node-2", "node-3"}
	}
	d := &Driver{
		nodes: nodes,
		rows:  make(map[string][]driver.Row),
	}
	d.rdv = rendezvous.New(nodes, xxhash.Sum64String)
	return d
}

// WithFailureInjector installs a hook invoked before every execute;
// a non-nil returned error is classified and surfaces as the Result's
// Err. Used by tests to exercise the recoverable/unrecoverable and
// threshold paths deterministically.
func (d *Driver) WithFailureInjector(fn func(statement.Statement) error) *Driver {
	d.fail = fn
	return d
}

// CallCount reports how many ExecuteAsync/ExecuteBatchAsync calls
// have been issued; dry-run tests assert this stays at zero.
func (d *Driver) CallCount() int64 { return d.calls.Load() }

func (d *Driver) Prepare(ctx context.Context, cql string) (driver.PreparedStatement, error) {
	return driver.PreparedStatement{CQL: cql}, nil
}

func (d *Driver) TokenFor(routingKey []byte) driver.Token {
	return driver.Token(int64(xxhash.Sum64(routingKey)))
}

func (d *Driver) Replicas(t driver.Token) []driver.Node {
	key := fmt.Sprintf("%d", t)
	primary := d.rdv.Lookup(key)
	out := []driver.Node{{HostID: primary}}
	for _, n := range d.nodes {
		if n != primary {
			out = append(out, driver.Node{HostID: n})
		}
	}
	sort.Slice(out[1:], func(i, j int) bool { return out[i+1].HostID < out[j+1].HostID })
	return out
}

func (d *Driver) ExecuteAsync(ctx context.Context, stmt statement.Statement) (<-chan driver.Result, error) {
	d.calls.Add(1)
	ch := make(chan driver.Result, 1)
	go func() {
		start := time.Now()
		var err error
		if d.fail != nil {
			err = d.fail(stmt)
		}
		if err == nil {
			d.mu.Lock()
			key := string(stmt.Routing.RoutingKey)
			d.rows[key] = append(d.rows[key], driver.Row{Values: map[string]any{"cql": stmt.CQL}})
			d.mu.Unlock()
		}
		select {
		case ch <- driver.Result{Statement: stmt, Err: err, Meta: driver.ExecMeta{Latency: time.Since(start), Attempts: 1, WasApplied: err == nil}}:
		case <-ctx.Done():
		}
		close(ch)
	}()
	return ch, nil
}

func (d *Driver) ExecuteBatchAsync(ctx context.Context, batch statement.Batch) (<-chan driver.Result, error) {
	d.calls.Add(1)
	ch := make(chan driver.Result, 1)
	go func() {
		start := time.Now()
		var err error
		if d.fail != nil {
			for _, s := range batch.Statements {
				if e := d.fail(s); e != nil {
					err = e
					break
				}
			}
		}
		if err == nil {
			d.mu.Lock()
			for _, s := range batch.Statements {
				key := string(s.Routing.RoutingKey)
				d.rows[key] = append(d.rows[key], driver.Row{Values: map[string]any{"cql": s.CQL}})
			}
			d.mu.Unlock()
		}
		b := batch
		select {
		case ch <- driver.Result{Batch: &b, Err: err, Meta: driver.ExecMeta{Latency: time.Since(start), Attempts: 1, WasApplied: err == nil}}:
		case <-ctx.Done():
		}
		close(ch)
	}()
	return ch, nil
}

func (d *Driver) Close() error { return nil }
